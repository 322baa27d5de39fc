package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

const AggregateTypePayment = "payment"

// OutboxMessage holds an event written in the same transaction as the state
// it describes, waiting to be relayed to Kafka.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	MessageType   string
	Key           string
	Payload       []byte
	Status        OutboxMessageStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	SentAt        *time.Time
}

func NewPaymentEventMessage(event PaymentEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("failed to marshal %s event for payment %s: %w", event.Type, event.PaymentID, err)
	}
	return OutboxMessage{
		ID:            uuid.New(),
		AggregateID:   event.PaymentID,
		AggregateType: AggregateTypePayment,
		MessageType:   string(event.Type),
		Key:           event.PaymentID.String(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     event.OccurredAt,
	}, nil
}
