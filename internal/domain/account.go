package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a balance holder addressed externally by its IBAN. Debit and
// Credit return new values; the receiver is never modified.
type Account struct {
	ID        uuid.UUID
	IBAN      string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAccount(iban string, balance decimal.Decimal, now time.Time) Account {
	return Account{
		ID:        uuid.New(),
		IBAN:      iban,
		Balance:   balance,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

func (a Account) Debit(amount decimal.Decimal) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, ErrInvalidAmount
	}
	if !a.CanCover(amount) {
		return Account{}, ErrInsufficientFunds
	}
	next := a
	next.Balance = a.Balance.Sub(amount)
	return next, nil
}

func (a Account) Credit(amount decimal.Decimal) (Account, error) {
	if !amount.IsPositive() {
		return Account{}, ErrInvalidAmount
	}
	next := a
	next.Balance = a.Balance.Add(amount)
	return next, nil
}
