package reconcile

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/repository/ledger_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/outbox_repo"
)

type postgresSource struct {
	db     *sql.DB
	ledger ledger_repo.LedgerRepository
	outbox outbox_repo.OutboxRepository
}

func NewPostgresSource(db *sql.DB, ledger ledger_repo.LedgerRepository, outbox outbox_repo.OutboxRepository) Source {
	return &postgresSource{db: db, ledger: ledger, outbox: outbox}
}

func (s *postgresSource) CompletedPaymentsWithInvalidEntries(ctx context.Context) ([]uuid.UUID, error) {
	return s.ledger.CompletedPaymentsWithInvalidEntries(ctx, s.db)
}

func (s *postgresSource) FailedPaymentsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	return s.ledger.FailedPaymentsWithEntries(ctx, s.db)
}

func (s *postgresSource) CountStuckOutbox(ctx context.Context, createdBefore time.Time) (int, error) {
	return s.outbox.CountStuckPending(ctx, s.db, createdBefore)
}
