package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type TransferService interface {
	// Send executes the transfer at most once per idempotency key.
	Send(ctx context.Context, cmd SendCommand) (Result, error)
	GetPayment(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	GetAccount(ctx context.Context, iban string) (domain.Account, error)
	LedgerEntries(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error)
}

type Option func(*transferService)

func WithClock(now func() time.Time) Option {
	return func(s *transferService) {
		s.now = now
	}
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *transferService) {
		s.newID = newID
	}
}

type transferService struct {
	tx     Transactor
	logger *zap.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

func NewTransferService(tx Transactor, logger *zap.Logger, opts ...Option) TransferService {
	s := &transferService{
		tx:     tx,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *transferService) Send(ctx context.Context, cmd SendCommand) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	// The transfer either completes or fails atomically once started, even if
	// the caller goes away.
	workCtx := context.WithoutCancel(ctx)

	uow, err := s.tx.Begin(workCtx)
	if err != nil {
		s.logger.Error("Failed to begin unit of work for transfer", zap.String("idempotency_key", cmd.IdempotencyKey), zap.Error(err))
		return Result{}, fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic during transfer, rolling back", zap.String("idempotency_key", cmd.IdempotencyKey), zap.Any("panic", r))
			_ = uow.Rollback()
			panic(r)
		}
	}()

	result, err := s.sendTx(workCtx, uow, cmd)
	if err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transfer", zap.String("idempotency_key", cmd.IdempotencyKey), zap.Error(rbErr))
			return Result{}, fmt.Errorf("rollback failed after transfer error %v: %w", err, rbErr)
		}

		var rejection *domain.RejectionError
		if errors.As(err, &rejection) {
			s.logger.Warn("Transfer rejected",
				zap.String("idempotency_key", cmd.IdempotencyKey),
				zap.String("debtor_iban", cmd.DebtorIBAN),
				zap.String("creditor_iban", cmd.CreditorIBAN),
				zap.String("amount", cmd.Amount.String()),
				zap.String("reason", string(rejection.Reason)),
			)
			return rejectedResult(rejection), err
		}

		s.logger.Error("Transfer failed, unit of work rolled back", zap.String("idempotency_key", cmd.IdempotencyKey), zap.Error(err))
		return Result{}, fmt.Errorf("failed to execute transfer: %w", err)
	}

	if err := uow.Commit(); err != nil {
		s.logger.Error("Failed to commit transfer", zap.String("idempotency_key", cmd.IdempotencyKey), zap.Error(err))
		return Result{}, fmt.Errorf("failed to commit transfer: %w", err)
	}

	if result.Replayed {
		s.logger.Info("Idempotent replay",
			zap.String("idempotency_key", cmd.IdempotencyKey),
			zap.Stringer("payment_id", result.PaymentID),
			zap.String("status", string(result.Status)),
		)
		return result, nil
	}

	s.logger.Info("Transfer completed",
		zap.String("idempotency_key", cmd.IdempotencyKey),
		zap.Stringer("payment_id", result.PaymentID),
		zap.String("debtor_iban", cmd.DebtorIBAN),
		zap.String("creditor_iban", cmd.CreditorIBAN),
		zap.String("amount", cmd.Amount.String()),
		zap.String("currency", cmd.Currency),
	)
	return result, nil
}

func (s *transferService) sendTx(ctx context.Context, uow UnitOfWork, cmd SendCommand) (Result, error) {
	existing, err := uow.Payments().FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err == nil {
		return replayResult(existing), nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return Result{}, fmt.Errorf("failed to look up idempotency key %s: %w", cmd.IdempotencyKey, err)
	}

	if cmd.DebtorIBAN == cmd.CreditorIBAN {
		return Result{}, domain.Reject(domain.FailureSelfTransfer, "Self transfer is not allowed.")
	}
	if !cmd.Amount.IsPositive() {
		return Result{}, domain.Reject(domain.FailureInvalidAmount, "Amount must be greater than zero.")
	}

	debtor, creditor, err := lockAccounts(ctx, uow.Accounts(), cmd.DebtorIBAN, cmd.CreditorIBAN)
	if err != nil {
		return Result{}, err
	}

	// A same-key caller that committed while this one waited for the locks
	// is visible now; its outcome wins over checks against the moved balances.
	existing, err = uow.Payments().FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err == nil {
		return replayResult(existing), nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return Result{}, fmt.Errorf("failed to look up idempotency key %s: %w", cmd.IdempotencyKey, err)
	}

	if !debtor.CanCover(cmd.Amount) {
		return Result{}, domain.Reject(domain.FailureInsufficientFunds, "Insufficient balance on source account.")
	}

	payment := domain.NewPayment(s.newID(), cmd.IdempotencyKey, cmd.DebtorIBAN, cmd.CreditorIBAN, cmd.Currency, cmd.Amount, cmd.Memo, s.now())
	if err := uow.Payments().Insert(ctx, payment); err != nil {
		if !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			return Result{}, fmt.Errorf("failed to insert payment: %w", err)
		}
		winner, lookupErr := uow.Payments().FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
		if lookupErr != nil {
			return Result{}, fmt.Errorf("failed to re-resolve idempotency key %s after duplicate insert: %w", cmd.IdempotencyKey, lookupErr)
		}
		return replayResult(winner), nil
	}

	if err := uow.Events().Publish(ctx, domain.NewPaymentEvent(domain.PaymentCreated, payment, s.now())); err != nil {
		return Result{}, fmt.Errorf("failed to publish %s for payment %s: %w", domain.PaymentCreated, payment.ID, err)
	}

	if err := s.applyTransfer(ctx, uow, payment, debtor, creditor); err != nil {
		return Result{}, err
	}

	completed, err := payment.Complete(s.now())
	if err != nil {
		return Result{}, err
	}
	if err := uow.Payments().Update(ctx, completed); err != nil {
		return Result{}, fmt.Errorf("failed to mark payment %s completed: %w", payment.ID, err)
	}
	if err := uow.Events().Publish(ctx, domain.NewPaymentEvent(domain.PaymentCompleted, completed, s.now())); err != nil {
		return Result{}, fmt.Errorf("failed to publish %s for payment %s: %w", domain.PaymentCompleted, payment.ID, err)
	}

	return Result{
		PaymentID: &completed.ID,
		Status:    completed.Status,
		Message:   "Payment completed",
	}, nil
}

// applyTransfer moves the amount between the locked snapshots and records the
// two ledger entries.
func (s *transferService) applyTransfer(ctx context.Context, uow UnitOfWork, payment domain.Payment, debtor, creditor domain.Account) error {
	sameAccount := debtor.ID == creditor.ID

	debited, err := debtor.Debit(payment.Amount)
	if err != nil {
		return fmt.Errorf("failed to debit account %s: %w", debtor.IBAN, err)
	}
	if sameAccount {
		creditor = debited
	}
	credited, err := creditor.Credit(payment.Amount)
	if err != nil {
		return fmt.Errorf("failed to credit account %s: %w", creditor.IBAN, err)
	}

	if sameAccount {
		if _, err := uow.Accounts().Save(ctx, credited); err != nil {
			return fmt.Errorf("failed to save account %s: %w", credited.IBAN, err)
		}
	} else {
		if _, err := uow.Accounts().Save(ctx, debited); err != nil {
			return fmt.Errorf("failed to save debtor account %s: %w", debited.IBAN, err)
		}
		if _, err := uow.Accounts().Save(ctx, credited); err != nil {
			return fmt.Errorf("failed to save creditor account %s: %w", credited.IBAN, err)
		}
	}

	now := s.now()
	entries := []domain.LedgerEntry{
		domain.NewDebitEntry(payment.ID, debited.ID, payment.Amount, debited.Balance, now),
		domain.NewCreditEntry(payment.ID, credited.ID, payment.Amount, credited.Balance, now),
	}
	for _, entry := range entries {
		if err := uow.Ledger().Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append ledger entry for payment %s: %w", payment.ID, err)
		}
	}
	return nil
}

func (s *transferService) GetPayment(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	var payment domain.Payment
	err := s.read(ctx, func(uow UnitOfWork) error {
		var err error
		payment, err = uow.Payments().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return payment, nil
}

func (s *transferService) GetAccount(ctx context.Context, iban string) (domain.Account, error) {
	var account domain.Account
	err := s.read(ctx, func(uow UnitOfWork) error {
		var err error
		account, err = uow.Accounts().FindByIBAN(ctx, iban)
		return err
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to get account %s: %w", iban, err)
	}
	return account, nil
}

func (s *transferService) LedgerEntries(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := s.read(ctx, func(uow UnitOfWork) error {
		if _, err := uow.Payments().FindByID(ctx, paymentID); err != nil {
			return err
		}
		var err error
		entries, err = uow.Ledger().ListByPayment(ctx, paymentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for payment %s: %w", paymentID, err)
	}
	return entries, nil
}

// read runs fn in a unit of work that is always rolled back.
func (s *transferService) read(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin unit of work: %w", err)
	}
	defer func() {
		if rbErr := uow.Rollback(); rbErr != nil {
			s.logger.Warn("Failed to roll back read-only unit of work", zap.Error(rbErr))
		}
	}()
	return fn(uow)
}
