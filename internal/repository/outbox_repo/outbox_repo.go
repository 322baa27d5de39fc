package outbox_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type outboxRepository struct{}

func NewOutboxRepository() OutboxRepository {
	return &outboxRepository{}
}

func (r *outboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, aggregate_id, aggregate_type, message_type, message_key, payload,
		                             status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.AggregateID,
		msg.AggregateType,
		msg.MessageType,
		msg.Key,
		msg.Payload,
		string(msg.Status),
		msg.Attempts,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// GetPendingMessagesTx locks the returned rows for the surrounding
// transaction and skips rows another relay already holds.
func (r *outboxRepository) GetPendingMessagesTx(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, message_type, message_key, payload,
		       status, attempts, last_error, created_at, sent_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := querier.QueryContext(ctx, query, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		var (
			msg       domain.OutboxMessage
			status    string
			lastError sql.NullString
			sentAt    sql.NullTime
		)
		err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.AggregateType,
			&msg.MessageType,
			&msg.Key,
			&msg.Payload,
			&status,
			&msg.Attempts,
			&lastError,
			&msg.CreatedAt,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msg.Status = domain.OutboxMessageStatus(status)
		msg.LastError = lastError.String
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *outboxRepository) MarkSentTx(ctx context.Context, querier domain.Querier, id uuid.UUID, sentAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, sent_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, querier, id, query, string(domain.OutboxStatusSent), sentAt, id)
}

func (r *outboxRepository) MarkAttemptFailedTx(ctx context.Context, querier domain.Querier, id uuid.UUID, attempts int, lastErr string, status domain.OutboxMessageStatus) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, attempts = $2, last_error = $3
		WHERE id = $4
	`
	return r.exec(ctx, querier, id, query, string(status), attempts, lastErr, id)
}

func (r *outboxRepository) CountStuckPending(ctx context.Context, querier domain.Querier, createdBefore time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM outbox_messages
		WHERE status = $1 AND created_at < $2
	`
	var count int
	if err := querier.QueryRowContext(ctx, query, string(domain.OutboxStatusPending), createdBefore).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stuck outbox messages: %w", err)
	}
	return count, nil
}

func (r *outboxRepository) exec(ctx context.Context, querier domain.Querier, id uuid.UUID, query string, args ...any) error {
	res, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox message %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox update (id %s): %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no outbox message found with id %s to update", id)
	}
	return nil
}
