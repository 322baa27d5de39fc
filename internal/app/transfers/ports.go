package transfers

import (
	"context"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

// AccountStore reads and writes account snapshots inside a unit of work.
type AccountStore interface {
	// LockForUpdate returns the account and holds an exclusive lock on it
	// until the unit of work ends. It blocks while another unit of work
	// holds the lock.
	LockForUpdate(ctx context.Context, iban string) (domain.Account, error)
	FindByIBAN(ctx context.Context, iban string) (domain.Account, error)
	// Save persists the snapshot if the stored version still matches and
	// returns it with the bumped version.
	Save(ctx context.Context, account domain.Account) (domain.Account, error)
}

type PaymentStore interface {
	FindByIdempotencyKey(ctx context.Context, key string) (domain.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	// Insert fails with domain.ErrDuplicateIdempotencyKey when the key is taken.
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
}

type LedgerStore interface {
	Append(ctx context.Context, entry domain.LedgerEntry) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.PaymentEvent) error
}

// UnitOfWork groups the stores over one atomic transaction.
type UnitOfWork interface {
	Accounts() AccountStore
	Payments() PaymentStore
	Ledger() LedgerStore
	Events() EventPublisher
	Commit() error
	Rollback() error
}

type Transactor interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
