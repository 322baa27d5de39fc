package unitofwork

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
	"github.com/djamrezki/instant-payment-service/internal/repository/accounts_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/ledger_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/outbox_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/payments_repo"
)

// Transactor opens units of work backed by one PostgreSQL transaction each.
type Transactor struct {
	db       *sql.DB
	accounts accounts_repo.AccountRepository
	payments payments_repo.PaymentRepository
	ledger   ledger_repo.LedgerRepository
	outbox   outbox_repo.OutboxRepository
}

func NewTransactor(
	db *sql.DB,
	accounts accounts_repo.AccountRepository,
	payments payments_repo.PaymentRepository,
	ledger ledger_repo.LedgerRepository,
	outbox outbox_repo.OutboxRepository,
) *Transactor {
	return &Transactor{db: db, accounts: accounts, payments: payments, ledger: ledger, outbox: outbox}
}

func (t *Transactor) Begin(ctx context.Context) (transfers.UnitOfWork, error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &unitOfWork{tx: tx, t: t}, nil
}

type unitOfWork struct {
	tx *sql.Tx
	t  *Transactor
}

func (u *unitOfWork) Accounts() transfers.AccountStore { return accountStore{u} }
func (u *unitOfWork) Payments() transfers.PaymentStore { return paymentStore{u} }
func (u *unitOfWork) Ledger() transfers.LedgerStore    { return ledgerStore{u} }
func (u *unitOfWork) Events() transfers.EventPublisher { return outboxPublisher{u} }

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op once the transaction has finished.
func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

type accountStore struct{ u *unitOfWork }

func (a accountStore) LockForUpdate(ctx context.Context, iban string) (domain.Account, error) {
	return a.u.t.accounts.GetByIBANForUpdateTx(ctx, a.u.tx, iban)
}

func (a accountStore) FindByIBAN(ctx context.Context, iban string) (domain.Account, error) {
	return a.u.t.accounts.GetByIBANTx(ctx, a.u.tx, iban)
}

func (a accountStore) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	return a.u.t.accounts.UpdateTx(ctx, a.u.tx, account)
}

type paymentStore struct{ u *unitOfWork }

func (p paymentStore) FindByIdempotencyKey(ctx context.Context, key string) (domain.Payment, error) {
	return p.u.t.payments.GetByIdempotencyKeyTx(ctx, p.u.tx, key)
}

func (p paymentStore) FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	return p.u.t.payments.GetByIDTx(ctx, p.u.tx, id)
}

func (p paymentStore) Insert(ctx context.Context, payment domain.Payment) error {
	return p.u.t.payments.CreateTx(ctx, p.u.tx, payment)
}

func (p paymentStore) Update(ctx context.Context, payment domain.Payment) error {
	return p.u.t.payments.UpdateTx(ctx, p.u.tx, payment)
}

type ledgerStore struct{ u *unitOfWork }

func (l ledgerStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	return l.u.t.ledger.AppendTx(ctx, l.u.tx, entry)
}

func (l ledgerStore) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	return l.u.t.ledger.ListByPaymentTx(ctx, l.u.tx, paymentID)
}

type outboxPublisher struct{ u *unitOfWork }

func (o outboxPublisher) Publish(ctx context.Context, event domain.PaymentEvent) error {
	msg, err := domain.NewPaymentEventMessage(event)
	if err != nil {
		return err
	}
	return o.u.t.outbox.CreateMessageTx(ctx, o.u.tx, msg)
}
