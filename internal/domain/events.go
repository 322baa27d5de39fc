package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentEventType string

const (
	PaymentCreated   PaymentEventType = "PaymentCreated"
	PaymentCompleted PaymentEventType = "PaymentCompleted"
	PaymentFailed    PaymentEventType = "PaymentFailed"
)

// PaymentEvent is published once per payment status transition.
type PaymentEvent struct {
	Type         PaymentEventType `json:"type"`
	PaymentID    uuid.UUID        `json:"payment_id"`
	DebtorIBAN   string           `json:"debtor_iban"`
	CreditorIBAN string           `json:"creditor_iban"`
	Currency     string           `json:"currency"`
	Amount       decimal.Decimal  `json:"amount"`
	Memo         string           `json:"memo,omitempty"`
	Status       PaymentStatus    `json:"status"`
	Reason       FailureReason    `json:"reason,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

func NewPaymentEvent(eventType PaymentEventType, p Payment, now time.Time) PaymentEvent {
	return PaymentEvent{
		Type:         eventType,
		PaymentID:    p.ID,
		DebtorIBAN:   p.DebtorIBAN,
		CreditorIBAN: p.CreditorIBAN,
		Currency:     p.Currency,
		Amount:       p.Amount,
		Memo:         p.Memo,
		Status:       p.Status,
		Reason:       p.FailureReason,
		OccurredAt:   now,
	}
}

// TransferRequestedEvent is consumed from the transfer requests topic.
type TransferRequestedEvent struct {
	IdempotencyKey string          `json:"idempotency_key"`
	DebtorIBAN     string          `json:"debtor_iban"`
	CreditorIBAN   string          `json:"creditor_iban"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo,omitempty"`
}
