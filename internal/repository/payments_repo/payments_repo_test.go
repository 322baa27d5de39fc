package payments_repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

var paymentColumns = []string{
	"id", "idempotency_key", "debtor_iban", "creditor_iban", "currency", "amount", "memo",
	"status", "created_at", "completed_at", "failure_reason",
}

func newPayment() domain.Payment {
	return domain.NewPayment(uuid.New(), "key-1", "DE89370400440532013000", "GB82WEST12345698765432", "EUR",
		decimal.RequireFromString("25.00"), "rent", time.Now().UTC())
}

func TestCreateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := newPayment()
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT payment_insert")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(sqlmock.AnyArg(), "key-1", p.DebtorIBAN, p.CreditorIBAN, "EUR", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"CREATED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT payment_insert")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPaymentRepository().CreateTx(context.Background(), db, p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTx_DuplicateKeyRollsBackToSavepoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT payment_insert")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "payments_idempotency_key_key"})
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT payment_insert")).WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPaymentRepository().CreateTx(context.Background(), db, newPayment())

	assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTx_OtherErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cause := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT payment_insert")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).WillReturnError(cause)

	err = NewPaymentRepository().CreateTx(context.Background(), db, newPayment())

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
}

func TestGetByIdempotencyKeyTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	created := time.Now().UTC()
	completed := created.Add(time.Millisecond)
	mock.ExpectQuery(`WHERE idempotency_key = \$1`).
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).AddRow(
			id.String(), "key-1", "DE89370400440532013000", "GB82WEST12345698765432", "EUR", "25.0000", nil,
			"COMPLETED", created, completed, nil,
		))

	p, err := NewPaymentRepository().GetByIdempotencyKeyTx(context.Background(), db, "key-1")

	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Empty(t, p.Memo)
	assert.Empty(t, p.FailureReason)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.CompletedAt.Equal(completed))
}

func TestGetByIDTx_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(paymentColumns))

	_, err = NewPaymentRepository().GetByIDTx(context.Background(), db, uuid.New())

	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestUpdateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p, err := newPayment().Complete(time.Now())
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WithArgs("COMPLETED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPaymentRepository()
	require.NoError(t, repo.UpdateTx(context.Background(), db, p))
	assert.ErrorIs(t, repo.UpdateTx(context.Background(), db, p), domain.ErrPaymentNotFound)
}
