package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source answers the read-only consistency queries.
type Source interface {
	CompletedPaymentsWithInvalidEntries(ctx context.Context) ([]uuid.UUID, error)
	FailedPaymentsWithEntries(ctx context.Context) ([]uuid.UUID, error)
	CountStuckOutbox(ctx context.Context, createdBefore time.Time) (int, error)
}

type Report struct {
	CheckedAt         time.Time
	InvalidCompleted  []uuid.UUID
	FailedWithEntries []uuid.UUID
	StuckOutbox       int
}

// OK reports whether no check failed. Stuck outbox messages are a warning
// and do not count.
func (r Report) OK() bool {
	return len(r.InvalidCompleted) == 0 && len(r.FailedWithEntries) == 0
}

type Reconciler struct {
	source     Source
	stuckAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(source Source, stuckAfter time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		source:     source,
		stuckAfter: stuckAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{CheckedAt: r.now()}

	invalid, err := r.source.CompletedPaymentsWithInvalidEntries(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to check completed payments: %w", err)
	}
	report.InvalidCompleted = invalid
	if len(invalid) > 0 {
		r.logger.Error("Reconciliation failed: completed payments with invalid ledger entry pairs", zap.Stringers("payment_ids", invalid))
	} else {
		r.logger.Info("Reconciliation: completed payments OK")
	}

	failed, err := r.source.FailedPaymentsWithEntries(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to check failed payments: %w", err)
	}
	report.FailedWithEntries = failed
	if len(failed) > 0 {
		r.logger.Error("Reconciliation failed: failed payments with ledger entries present", zap.Stringers("payment_ids", failed))
	} else {
		r.logger.Info("Reconciliation: failed payments OK")
	}

	stuck, err := r.source.CountStuckOutbox(ctx, report.CheckedAt.Add(-r.stuckAfter))
	if err != nil {
		return report, fmt.Errorf("failed to check outbox backlog: %w", err)
	}
	report.StuckOutbox = stuck
	if stuck > 0 {
		r.logger.Warn("Reconciliation warning: outbox messages stuck", zap.Int("count", stuck), zap.Duration("older_than", r.stuckAfter))
	} else {
		r.logger.Info("Reconciliation: outbox backlog OK")
	}

	return report, nil
}
