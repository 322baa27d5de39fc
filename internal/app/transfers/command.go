package transfers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

const (
	MaxIdempotencyKeyLength = 255
	MaxMemoLength           = 140
	MaxIBANLength           = 34

	maxAmountScale = 4
	// NUMERIC(19,4) leaves 15 integer digits.
	maxAmountIntegerDigits = 15
)

var maxAmount = decimal.New(1, maxAmountIntegerDigits)

type SendCommand struct {
	IdempotencyKey string
	DebtorIBAN     string
	CreditorIBAN   string
	Currency       string
	Amount         decimal.Decimal
	Memo           string
}

// Validate checks that the command is structurally complete and fits the
// stored column widths. Business rules such as positive amounts are enforced
// by the service.
func (c SendCommand) Validate() error {
	var missing []string
	if strings.TrimSpace(c.IdempotencyKey) == "" {
		missing = append(missing, "idempotency key")
	}
	if strings.TrimSpace(c.DebtorIBAN) == "" {
		missing = append(missing, "debtor IBAN")
	}
	if strings.TrimSpace(c.CreditorIBAN) == "" {
		missing = append(missing, "creditor IBAN")
	}
	if strings.TrimSpace(c.Currency) == "" {
		missing = append(missing, "currency")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidCommand, strings.Join(missing, ", "))
	}
	if n := utf8.RuneCountInString(c.IdempotencyKey); n > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: idempotency key has %d characters, at most %d allowed", domain.ErrInvalidCommand, n, MaxIdempotencyKeyLength)
	}
	if len(c.DebtorIBAN) > MaxIBANLength || len(c.CreditorIBAN) > MaxIBANLength {
		return fmt.Errorf("%w: IBAN longer than %d characters", domain.ErrInvalidCommand, MaxIBANLength)
	}
	if !IsCurrencyCode(c.Currency) {
		return fmt.Errorf("%w: currency %q is not a 3-letter ISO 4217 code", domain.ErrInvalidCommand, c.Currency)
	}
	if !c.Amount.Equal(c.Amount.Truncate(maxAmountScale)) {
		return fmt.Errorf("%w: amount %s has more than %d fractional digits", domain.ErrInvalidCommand, c.Amount, maxAmountScale)
	}
	if c.Amount.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: amount %s has more than %d integer digits", domain.ErrInvalidCommand, c.Amount, maxAmountIntegerDigits)
	}
	if n := utf8.RuneCountInString(c.Memo); n > MaxMemoLength {
		return fmt.Errorf("%w: memo has %d characters, at most %d allowed", domain.ErrInvalidCommand, n, MaxMemoLength)
	}
	return nil
}

// IsCurrencyCode reports whether s is three upper-case ASCII letters.
func IsCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

type Result struct {
	// PaymentID is nil when the transfer was rejected before a payment was recorded.
	PaymentID *uuid.UUID
	Status    domain.PaymentStatus
	Reason    domain.FailureReason
	Message   string
	Replayed  bool
}

func replayResult(p domain.Payment) Result {
	id := p.ID
	return Result{
		PaymentID: &id,
		Status:    p.Status,
		Reason:    p.FailureReason,
		Message:   "Idempotent replay",
		Replayed:  true,
	}
}

func rejectedResult(rejection *domain.RejectionError) Result {
	return Result{
		Status:  domain.PaymentStatusFailed,
		Reason:  rejection.Reason,
		Message: rejection.Detail,
	}
}
