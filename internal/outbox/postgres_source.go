package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
	"github.com/djamrezki/instant-payment-service/internal/repository/outbox_repo"
)

type postgresSource struct {
	db   *sql.DB
	repo outbox_repo.OutboxRepository
}

// NewPostgresSource claims pending rows with FOR UPDATE SKIP LOCKED, so
// several relays can share one table.
func NewPostgresSource(db *sql.DB, repo outbox_repo.OutboxRepository) Source {
	return &postgresSource{db: db, repo: repo}
}

func (s *postgresSource) ClaimPending(ctx context.Context, limit int) (Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	messages, err := s.repo.GetPendingMessagesTx(ctx, tx, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &postgresBatch{tx: tx, repo: s.repo, messages: messages}, nil
}

type postgresBatch struct {
	tx       *sql.Tx
	repo     outbox_repo.OutboxRepository
	messages []domain.OutboxMessage
}

func (b *postgresBatch) Messages() []domain.OutboxMessage {
	return b.messages
}

func (b *postgresBatch) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	if !b.contains(id) {
		return ErrMessageNotInBatch
	}
	return b.repo.MarkSentTx(ctx, b.tx, id, sentAt)
}

func (b *postgresBatch) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, status domain.OutboxMessageStatus) error {
	if !b.contains(id) {
		return ErrMessageNotInBatch
	}
	return b.repo.MarkAttemptFailedTx(ctx, b.tx, id, attempts, lastErr, status)
}

func (b *postgresBatch) Commit() error {
	return b.tx.Commit()
}

func (b *postgresBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (b *postgresBatch) contains(id uuid.UUID) bool {
	return slices.ContainsFunc(b.messages, func(m domain.OutboxMessage) bool { return m.ID == id })
}
