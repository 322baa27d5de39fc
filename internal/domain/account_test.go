package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccount_Debit(t *testing.T) {
	acc := NewAccount("DE89370400440532013000", decimal.RequireFromString("100.00"), time.Now())

	tests := []struct {
		name    string
		amount  string
		want    string
		wantErr error
	}{
		{name: "partial", amount: "25.00", want: "75.00"},
		{name: "whole balance", amount: "100.00", want: "0"},
		{name: "more than balance", amount: "100.01", wantErr: ErrInsufficientFunds},
		{name: "zero", amount: "0", wantErr: ErrInvalidAmount},
		{name: "negative", amount: "-1", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := acc.Debit(decimal.RequireFromString(tt.amount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Balance.Equal(decimal.RequireFromString(tt.want)), "balance %s", got.Balance)
			assert.True(t, acc.Balance.Equal(decimal.RequireFromString("100.00")), "receiver must not change")
			assert.Equal(t, acc.Version, got.Version)
		})
	}
}

func TestAccount_Credit(t *testing.T) {
	acc := NewAccount("DE89370400440532013000", decimal.RequireFromString("5.00"), time.Now())

	got, err := acc.Credit(decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("5.00")))

	_, err = acc.Credit(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccount_CanCover(t *testing.T) {
	acc := Account{Balance: decimal.RequireFromString("10.00")}

	assert.True(t, acc.CanCover(decimal.RequireFromString("10")))
	assert.True(t, acc.CanCover(decimal.RequireFromString("9.99")))
	assert.False(t, acc.CanCover(decimal.RequireFromString("25.00")))
}
