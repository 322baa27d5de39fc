package ledger_repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type LedgerRepository interface {
	AppendTx(ctx context.Context, querier domain.Querier, entry domain.LedgerEntry) error
	ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID uuid.UUID) ([]domain.LedgerEntry, error)
	CompletedPaymentsWithInvalidEntries(ctx context.Context, querier domain.Querier) ([]uuid.UUID, error)
	FailedPaymentsWithEntries(ctx context.Context, querier domain.Querier) ([]uuid.UUID, error)
}
