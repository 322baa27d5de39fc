package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
	"github.com/djamrezki/instant-payment-service/internal/outbox"
)

// ClaimPending hands out pending outbox messages in creation order, skipping
// those already claimed by another relay batch.
func (s *Store) ClaimPending(ctx context.Context, limit int) (outbox.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &relayBatch{store: s, updates: make(map[uuid.UUID]domain.OutboxMessage)}
	for _, msg := range s.outbox {
		if len(b.messages) >= limit {
			break
		}
		if msg.Status != domain.OutboxStatusPending {
			continue
		}
		if _, claimed := s.relaying[msg.ID]; claimed {
			continue
		}
		s.relaying[msg.ID] = struct{}{}
		b.messages = append(b.messages, msg)
	}
	return b, nil
}

type relayBatch struct {
	store    *Store
	messages []domain.OutboxMessage
	updates  map[uuid.UUID]domain.OutboxMessage
	done     bool
}

func (b *relayBatch) Messages() []domain.OutboxMessage {
	return b.messages
}

func (b *relayBatch) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	msg, err := b.find(id)
	if err != nil {
		return err
	}
	msg.Status = domain.OutboxStatusSent
	msg.SentAt = &sentAt
	b.updates[id] = msg
	return nil
}

func (b *relayBatch) MarkAttemptFailed(_ context.Context, id uuid.UUID, attempts int, lastErr string, status domain.OutboxMessageStatus) error {
	msg, err := b.find(id)
	if err != nil {
		return err
	}
	msg.Attempts = attempts
	msg.LastError = lastErr
	msg.Status = status
	b.updates[id] = msg
	return nil
}

func (b *relayBatch) find(id uuid.UUID) (domain.OutboxMessage, error) {
	if b.done {
		return domain.OutboxMessage{}, ErrUnitOfWorkDone
	}
	for _, msg := range b.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return domain.OutboxMessage{}, outbox.ErrMessageNotInBatch
}

func (b *relayBatch) Commit() error {
	if b.done {
		return ErrUnitOfWorkDone
	}
	b.done = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for i, msg := range b.store.outbox {
		if updated, ok := b.updates[msg.ID]; ok {
			b.store.outbox[i] = updated
		}
	}
	b.unclaim()
	return nil
}

func (b *relayBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.unclaim()
	return nil
}

func (b *relayBatch) unclaim() {
	for _, msg := range b.messages {
		delete(b.store.relaying, msg.ID)
	}
}
