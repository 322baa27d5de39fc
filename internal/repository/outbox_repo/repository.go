package outbox_repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg domain.OutboxMessage) error
	GetPendingMessagesTx(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkSentTx(ctx context.Context, querier domain.Querier, id uuid.UUID, sentAt time.Time) error
	MarkAttemptFailedTx(ctx context.Context, querier domain.Querier, id uuid.UUID, attempts int, lastErr string, status domain.OutboxMessageStatus) error
	CountStuckPending(ctx context.Context, querier domain.Querier, createdBefore time.Time) (int, error)
}
