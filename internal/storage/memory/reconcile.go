package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

func (s *Store) CompletedPaymentsWithInvalidEntries(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPayment := s.entriesByPayment()
	var bad []uuid.UUID
	for id, p := range s.payments {
		if p.Status == domain.PaymentStatusCompleted && !domain.EntriesBalanced(byPayment[id]) {
			bad = append(bad, id)
		}
	}
	return bad, nil
}

func (s *Store) FailedPaymentsWithEntries(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPayment := s.entriesByPayment()
	var bad []uuid.UUID
	for id, p := range s.payments {
		if p.Status == domain.PaymentStatusFailed && len(byPayment[id]) > 0 {
			bad = append(bad, id)
		}
	}
	return bad, nil
}

func (s *Store) CountStuckOutbox(_ context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stuck := 0
	for _, msg := range s.outbox {
		if msg.Status == domain.OutboxStatusPending && msg.CreatedAt.Before(createdBefore) {
			stuck++
		}
	}
	return stuck, nil
}

func (s *Store) entriesByPayment() map[uuid.UUID][]domain.LedgerEntry {
	byPayment := make(map[uuid.UUID][]domain.LedgerEntry)
	for _, e := range s.entries {
		byPayment[e.PaymentID] = append(byPayment[e.PaymentID], e)
	}
	return byPayment
}
