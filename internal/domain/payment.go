package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "CREATED"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusCreated && next.IsTerminal()
}

type FailureReason string

const (
	FailureSelfTransfer      FailureReason = "SELF_TRANSFER_NOT_ALLOWED"
	FailureInvalidAmount     FailureReason = "INVALID_AMOUNT"
	FailureAccountNotFound   FailureReason = "ACCOUNT_NOT_FOUND"
	FailureInsufficientFunds FailureReason = "INSUFFICIENT_FUNDS"
)

func (r FailureReason) Valid() bool {
	switch r {
	case FailureSelfTransfer, FailureInvalidAmount, FailureAccountNotFound, FailureInsufficientFunds:
		return true
	}
	return false
}

// Payment is one transfer attempt, unique per idempotency key.
type Payment struct {
	ID             uuid.UUID
	IdempotencyKey string
	DebtorIBAN     string
	CreditorIBAN   string
	Currency       string
	Amount         decimal.Decimal
	Memo           string
	Status         PaymentStatus
	CreatedAt      time.Time
	CompletedAt    *time.Time
	FailureReason  FailureReason
}

func NewPayment(id uuid.UUID, idempotencyKey, debtorIBAN, creditorIBAN, currency string, amount decimal.Decimal, memo string, now time.Time) Payment {
	return Payment{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		DebtorIBAN:     debtorIBAN,
		CreditorIBAN:   creditorIBAN,
		Currency:       currency,
		Amount:         amount,
		Memo:           memo,
		Status:         PaymentStatusCreated,
		CreatedAt:      now,
	}
}

func (p Payment) Complete(now time.Time) (Payment, error) {
	if !p.Status.CanTransitionTo(PaymentStatusCompleted) {
		return Payment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, PaymentStatusCompleted)
	}
	next := p
	next.Status = PaymentStatusCompleted
	next.CompletedAt = &now
	return next, nil
}

func (p Payment) Fail(reason FailureReason, now time.Time) (Payment, error) {
	if !p.Status.CanTransitionTo(PaymentStatusFailed) {
		return Payment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, PaymentStatusFailed)
	}
	if !reason.Valid() {
		return Payment{}, fmt.Errorf("unknown failure reason %q", reason)
	}
	next := p
	next.Status = PaymentStatusFailed
	next.CompletedAt = &now
	next.FailureReason = reason
	return next, nil
}
