package payments_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

const uniqueViolation = "23505"

const selectPayment = `
	SELECT id, idempotency_key, debtor_iban, creditor_iban, currency, amount, memo,
	       status, created_at, completed_at, failure_reason
	FROM payments
`

type paymentRepository struct{}

func NewPaymentRepository() PaymentRepository {
	return &paymentRepository{}
}

// CreateTx inserts the payment inside a savepoint so that a duplicate
// idempotency key leaves the surrounding transaction usable.
func (r *paymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment domain.Payment) error {
	if _, err := querier.ExecContext(ctx, "SAVEPOINT payment_insert"); err != nil {
		return fmt.Errorf("failed to create savepoint for payment insert: %w", err)
	}

	query := `
		INSERT INTO payments (id, idempotency_key, debtor_iban, creditor_iban, currency, amount, memo,
		                      status, created_at, completed_at, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.IdempotencyKey,
		payment.DebtorIBAN,
		payment.CreditorIBAN,
		payment.Currency,
		payment.Amount,
		nullString(payment.Memo),
		string(payment.Status),
		payment.CreatedAt,
		nullTime(payment.CompletedAt),
		nullString(string(payment.FailureReason)),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if _, rbErr := querier.ExecContext(ctx, "ROLLBACK TO SAVEPOINT payment_insert"); rbErr != nil {
				return fmt.Errorf("failed to roll back to savepoint after duplicate key: %w", rbErr)
			}
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if _, err := querier.ExecContext(ctx, "RELEASE SAVEPOINT payment_insert"); err != nil {
		return fmt.Errorf("failed to release savepoint for payment insert: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id uuid.UUID) (domain.Payment, error) {
	payment, err := scanPayment(querier.QueryRowContext(ctx, selectPayment+" WHERE id = $1", id))
	if err != nil {
		return domain.Payment{}, fmt.Errorf("failed to get payment by id %s: %w", id, err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByIdempotencyKeyTx(ctx context.Context, querier domain.Querier, key string) (domain.Payment, error) {
	payment, err := scanPayment(querier.QueryRowContext(ctx, selectPayment+" WHERE idempotency_key = $1", key))
	if err != nil {
		return domain.Payment{}, fmt.Errorf("failed to get payment by idempotency key %s: %w", key, err)
	}
	return payment, nil
}

func (r *paymentRepository) UpdateTx(ctx context.Context, querier domain.Querier, payment domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, completed_at = $2, failure_reason = $3
		WHERE id = $4
	`
	res, err := querier.ExecContext(ctx, query,
		string(payment.Status),
		nullTime(payment.CompletedAt),
		nullString(string(payment.FailureReason)),
		payment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrPaymentNotFound)
	}
	return nil
}

func scanPayment(row *sql.Row) (domain.Payment, error) {
	var (
		payment       domain.Payment
		status        string
		memo          sql.NullString
		completedAt   sql.NullTime
		failureReason sql.NullString
	)
	err := row.Scan(
		&payment.ID,
		&payment.IdempotencyKey,
		&payment.DebtorIBAN,
		&payment.CreditorIBAN,
		&payment.Currency,
		&payment.Amount,
		&memo,
		&status,
		&payment.CreatedAt,
		&completedAt,
		&failureReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, err
	}
	payment.Status = domain.PaymentStatus(status)
	payment.Memo = memo.String
	payment.FailureReason = domain.FailureReason(failureReason.String)
	if completedAt.Valid {
		payment.CompletedAt = &completedAt.Time
	}
	return payment, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
