package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
)

// Store keeps committed state in maps and gives each unit of work the
// guarantees of a transactional database: per-account exclusive locks held
// until commit or rollback, a unique idempotency key whose concurrent
// inserter waits for the first claimer to finish, and writes that become
// visible to others only on commit.
type Store struct {
	mu sync.Mutex

	accounts map[string]domain.Account
	payments map[uuid.UUID]domain.Payment
	keys     map[string]uuid.UUID
	entries  []domain.LedgerEntry
	outbox   []domain.OutboxMessage

	locks    map[string]chan struct{}
	claims   map[string]*keyClaim
	relaying map[uuid.UUID]struct{}

	now func() time.Time
}

type keyClaim struct {
	owner *unitOfWork
	done  chan struct{}
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		payments: make(map[uuid.UUID]domain.Payment),
		keys:     make(map[string]uuid.UUID),
		locks:    make(map[string]chan struct{}),
		claims:   make(map[string]*keyClaim),
		relaying: make(map[uuid.UUID]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Begin(ctx context.Context) (transfers.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newUnitOfWork(s), nil
}

// SeedAccount provisions an account. It fails if the IBAN already exists.
func (s *Store) SeedAccount(iban string, balance decimal.Decimal) (domain.Account, error) {
	if balance.IsNegative() {
		return domain.Account{}, fmt.Errorf("seed balance for %s must not be negative", iban)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[iban]; exists {
		return domain.Account{}, fmt.Errorf("account %s: %w", iban, domain.ErrAccountAlreadyExists)
	}
	account := domain.NewAccount(iban, balance, s.now())
	s.accounts[iban] = account
	return account, nil
}

func (s *Store) Account(iban string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[iban]
	return account, ok
}

func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	payments := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return payments
}

func (s *Store) Entries() []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

func (s *Store) OutboxMessages() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *Store) lockChan(iban string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[iban]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[iban] = ch
	}
	return ch
}

func (s *Store) commit(u *unitOfWork) {
	s.mu.Lock()
	for iban, account := range u.accounts {
		s.accounts[iban] = account
	}
	for id, payment := range u.payments {
		s.payments[id] = payment
	}
	for key, id := range u.keys {
		s.keys[key] = id
	}
	s.entries = append(s.entries, u.entries...)
	s.outbox = append(s.outbox, u.outbox...)
	s.mu.Unlock()

	s.release(u)
}

func (s *Store) release(u *unitOfWork) {
	s.mu.Lock()
	for _, key := range u.claimed {
		if claim, ok := s.claims[key]; ok && claim.owner == u {
			close(claim.done)
			delete(s.claims, key)
		}
	}
	s.mu.Unlock()

	for _, iban := range u.held {
		<-s.lockChan(iban)
	}
	u.held = nil
}
