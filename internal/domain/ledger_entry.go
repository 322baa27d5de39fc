package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is an append-only signed balance change. Debits are negative,
// credits positive.
type LedgerEntry struct {
	ID           uuid.UUID
	PaymentID    uuid.UUID
	AccountID    uuid.UUID
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

func NewDebitEntry(paymentID, accountID uuid.UUID, amount, balanceAfter decimal.Decimal, now time.Time) LedgerEntry {
	return LedgerEntry{
		ID:           uuid.New(),
		PaymentID:    paymentID,
		AccountID:    accountID,
		Amount:       amount.Abs().Neg(),
		BalanceAfter: balanceAfter,
		CreatedAt:    now,
	}
}

func NewCreditEntry(paymentID, accountID uuid.UUID, amount, balanceAfter decimal.Decimal, now time.Time) LedgerEntry {
	return LedgerEntry{
		ID:           uuid.New(),
		PaymentID:    paymentID,
		AccountID:    accountID,
		Amount:       amount.Abs(),
		BalanceAfter: balanceAfter,
		CreatedAt:    now,
	}
}

func (e LedgerEntry) IsDebit() bool {
	return e.Amount.IsNegative()
}

// EntriesBalanced reports whether entries form one debit and one credit that
// net to zero.
func EntriesBalanced(entries []LedgerEntry) bool {
	if len(entries) != 2 {
		return false
	}
	if entries[0].IsDebit() == entries[1].IsDebit() {
		return false
	}
	return entries[0].Amount.Add(entries[1].Amount).IsZero()
}
