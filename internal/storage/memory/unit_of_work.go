package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
)

var ErrUnitOfWorkDone = errors.New("unit of work already committed or rolled back")

type unitOfWork struct {
	store *Store

	held    []string
	claimed []string

	accounts map[string]domain.Account
	payments map[uuid.UUID]domain.Payment
	keys     map[string]uuid.UUID
	entries  []domain.LedgerEntry
	outbox   []domain.OutboxMessage

	done bool
}

func newUnitOfWork(s *Store) *unitOfWork {
	return &unitOfWork{
		store:    s,
		accounts: make(map[string]domain.Account),
		payments: make(map[uuid.UUID]domain.Payment),
		keys:     make(map[string]uuid.UUID),
	}
}

func (u *unitOfWork) Accounts() transfers.AccountStore { return accountStore{u} }
func (u *unitOfWork) Payments() transfers.PaymentStore { return paymentStore{u} }
func (u *unitOfWork) Ledger() transfers.LedgerStore { return ledgerStore{u} }
func (u *unitOfWork) Events() transfers.EventPublisher { return outboxPublisher{u} }

func (u *unitOfWork) Commit() error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	u.store.commit(u)
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.release(u)
	return nil
}

func (u *unitOfWork) holds(iban string) bool {
	return slices.Contains(u.held, iban)
}

func (u *unitOfWork) account(iban string) (domain.Account, bool) {
	if account, ok := u.accounts[iban]; ok {
		return account, true
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	account, ok := u.store.accounts[iban]
	return account, ok
}

func (u *unitOfWork) payment(id uuid.UUID) (domain.Payment, bool) {
	if payment, ok := u.payments[id]; ok {
		return payment, true
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	payment, ok := u.store.payments[id]
	return payment, ok
}

type accountStore struct{ u *unitOfWork }

func (a accountStore) LockForUpdate(ctx context.Context, iban string) (domain.Account, error) {
	if a.u.done {
		return domain.Account{}, ErrUnitOfWorkDone
	}
	if !a.u.holds(iban) {
		select {
		case a.u.store.lockChan(iban) <- struct{}{}:
		case <-ctx.Done():
			return domain.Account{}, fmt.Errorf("waiting for lock on account %s: %w", iban, ctx.Err())
		}
		a.u.held = append(a.u.held, iban)
	}

	account, ok := a.u.account(iban)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (a accountStore) FindByIBAN(_ context.Context, iban string) (domain.Account, error) {
	account, ok := a.u.account(iban)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (a accountStore) Save(_ context.Context, account domain.Account) (domain.Account, error) {
	if a.u.done {
		return domain.Account{}, ErrUnitOfWorkDone
	}
	current, ok := a.u.account(account.IBAN)
	if !ok || current.ID != account.ID {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return domain.Account{}, fmt.Errorf("%w: account %s at version %d, snapshot at %d",
			domain.ErrVersionConflict, account.IBAN, current.Version, account.Version)
	}
	if account.Balance.IsNegative() {
		return domain.Account{}, fmt.Errorf("account %s balance would become negative: %w", account.IBAN, domain.ErrInsufficientFunds)
	}

	saved := account
	saved.Version++
	saved.UpdatedAt = a.u.store.now()
	a.u.accounts[account.IBAN] = saved
	return saved, nil
}

type paymentStore struct{ u *unitOfWork }

func (p paymentStore) FindByIdempotencyKey(_ context.Context, key string) (domain.Payment, error) {
	if id, ok := p.u.keys[key]; ok {
		return p.u.payments[id], nil
	}
	p.u.store.mu.Lock()
	id, ok := p.u.store.keys[key]
	p.u.store.mu.Unlock()
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	payment, _ := p.u.payment(id)
	return payment, nil
}

func (p paymentStore) FindByID(_ context.Context, id uuid.UUID) (domain.Payment, error) {
	payment, ok := p.u.payment(id)
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// Insert claims the idempotency key. A second inserter of a key that is
// claimed but not yet committed waits for the claimer to finish.
func (p paymentStore) Insert(ctx context.Context, payment domain.Payment) error {
	if p.u.done {
		return ErrUnitOfWorkDone
	}
	key := payment.IdempotencyKey
	if _, ok := p.u.keys[key]; ok {
		return domain.ErrDuplicateIdempotencyKey
	}

	s := p.u.store
	for {
		s.mu.Lock()
		if _, ok := s.keys[key]; ok {
			s.mu.Unlock()
			return domain.ErrDuplicateIdempotencyKey
		}
		claim, inFlight := s.claims[key]
		if !inFlight {
			s.claims[key] = &keyClaim{owner: p.u, done: make(chan struct{})}
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()

		select {
		case <-claim.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for idempotency key %s: %w", key, ctx.Err())
		}
	}

	p.u.claimed = append(p.u.claimed, key)
	p.u.keys[key] = payment.ID
	p.u.payments[payment.ID] = payment
	return nil
}

func (p paymentStore) Update(_ context.Context, payment domain.Payment) error {
	if p.u.done {
		return ErrUnitOfWorkDone
	}
	if _, ok := p.u.payment(payment.ID); !ok {
		return domain.ErrPaymentNotFound
	}
	p.u.payments[payment.ID] = payment
	return nil
}

type ledgerStore struct{ u *unitOfWork }

func (l ledgerStore) Append(_ context.Context, entry domain.LedgerEntry) error {
	if l.u.done {
		return ErrUnitOfWorkDone
	}
	if entry.Amount.IsZero() {
		return fmt.Errorf("ledger entry %s has zero amount", entry.ID)
	}
	l.u.entries = append(l.u.entries, entry)
	return nil
}

func (l ledgerStore) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	var result []domain.LedgerEntry
	l.u.store.mu.Lock()
	for _, e := range l.u.store.entries {
		if e.PaymentID == paymentID {
			result = append(result, e)
		}
	}
	l.u.store.mu.Unlock()
	for _, e := range l.u.entries {
		if e.PaymentID == paymentID {
			result = append(result, e)
		}
	}
	return result, nil
}

type outboxPublisher struct{ u *unitOfWork }

func (o outboxPublisher) Publish(_ context.Context, event domain.PaymentEvent) error {
	if o.u.done {
		return ErrUnitOfWorkDone
	}
	msg, err := domain.NewPaymentEventMessage(event)
	if err != nil {
		return err
	}
	o.u.outbox = append(o.u.outbox, msg)
	return nil
}
