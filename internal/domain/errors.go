package domain

import (
	"errors"
	"fmt"
)

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountAlreadyExists = errors.New("account already exists")
var ErrPaymentNotFound = errors.New("payment not found")
var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrSelfTransfer = errors.New("self transfer is not allowed")
var ErrInvalidAmount = errors.New("amount must be greater than zero")
var ErrDuplicateIdempotencyKey = errors.New("payment with this idempotency key already exists")
var ErrVersionConflict = errors.New("account version conflict")
var ErrInvalidTransition = errors.New("invalid payment status transition")
var ErrInvalidCommand = errors.New("invalid transfer command")

// RejectionError is returned when a transfer is refused for one of the closed
// set of business reasons. It unwraps to the matching sentinel error.
type RejectionError struct {
	Reason FailureReason
	Detail string
}

func Reject(reason FailureReason, detail string) *RejectionError {
	return &RejectionError{Reason: reason, Detail: detail}
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("payment rejected: %s", e.Reason)
	}
	return fmt.Sprintf("payment rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case FailureSelfTransfer:
		return ErrSelfTransfer
	case FailureInvalidAmount:
		return ErrInvalidAmount
	case FailureAccountNotFound:
		return ErrAccountNotFound
	case FailureInsufficientFunds:
		return ErrInsufficientFunds
	default:
		return nil
	}
}

// ReasonOf extracts the failure reason carried by err, if any.
func ReasonOf(err error) (FailureReason, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}
