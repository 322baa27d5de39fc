package payments_repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment domain.Payment) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id uuid.UUID) (domain.Payment, error)
	GetByIdempotencyKeyTx(ctx context.Context, querier domain.Querier, key string) (domain.Payment, error)
	UpdateTx(ctx context.Context, querier domain.Querier, payment domain.Payment) error
}
