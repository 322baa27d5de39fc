package transfers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
	"github.com/djamrezki/instant-payment-service/internal/storage/memory"
)

const (
	ibanX = "DE89370400440532013000"
	ibanY = "GB82WEST12345698765432"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setup(t *testing.T, balances map[string]string) (*memory.Store, transfers.TransferService) {
	t.Helper()
	store := memory.NewStore()
	for iban, balance := range balances {
		_, err := store.SeedAccount(iban, dec(balance))
		require.NoError(t, err)
	}
	return store, transfers.NewTransferService(store, zap.NewNop())
}

func command(key, debtor, creditor, amount string) transfers.SendCommand {
	return transfers.SendCommand{
		IdempotencyKey: key,
		DebtorIBAN:     debtor,
		CreditorIBAN:   creditor,
		Currency:       "EUR",
		Amount:         dec(amount),
		Memo:           "invoice 42",
	}
}

func balanceOf(t *testing.T, store *memory.Store, iban string) decimal.Decimal {
	t.Helper()
	account, ok := store.Account(iban)
	require.True(t, ok)
	return account.Balance
}

func eventTypes(t *testing.T, store *memory.Store) []string {
	t.Helper()
	var types []string
	for _, msg := range store.OutboxMessages() {
		var event domain.PaymentEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, msg.MessageType, string(event.Type))
		types = append(types, string(event.Type))
	}
	return types
}

func TestSend_CompletesTransfer(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})

	res, err := svc.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))

	require.NoError(t, err)
	require.NotNil(t, res.PaymentID)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Status)
	assert.False(t, res.Replayed)
	assert.Equal(t, "Payment completed", res.Message)

	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("75.00")))
	assert.True(t, balanceOf(t, store, ibanY).Equal(dec("30.00")))

	x, _ := store.Account(ibanX)
	y, _ := store.Account(ibanY)
	assert.Equal(t, int64(2), x.Version)
	assert.Equal(t, int64(2), y.Version)

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.True(t, domain.EntriesBalanced(entries))
	for _, e := range entries {
		assert.Equal(t, *res.PaymentID, e.PaymentID)
		switch e.AccountID {
		case x.ID:
			assert.True(t, e.Amount.Equal(dec("-25.00")))
			assert.True(t, e.BalanceAfter.Equal(dec("75.00")))
		case y.ID:
			assert.True(t, e.Amount.Equal(dec("25.00")))
			assert.True(t, e.BalanceAfter.Equal(dec("30.00")))
		default:
			t.Fatalf("unexpected account %s", e.AccountID)
		}
	}

	payments := store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusCompleted, payments[0].Status)
	assert.NotNil(t, payments[0].CompletedAt)
	assert.Equal(t, "invoice 42", payments[0].Memo)

	assert.Equal(t, []string{"PaymentCreated", "PaymentCompleted"}, eventTypes(t, store))
}

func TestSend_InsufficientFunds(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "10.00", ibanY: "0.00"})

	res, err := svc.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Nil(t, res.PaymentID)
	assert.Equal(t, domain.PaymentStatusFailed, res.Status)
	assert.Equal(t, domain.FailureInsufficientFunds, res.Reason)

	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("10.00")))
	assert.True(t, balanceOf(t, store, ibanY).Equal(dec("0.00")))
	assert.Empty(t, store.Entries())
	assert.Empty(t, store.Payments())
	assert.Empty(t, store.OutboxMessages())
}

func TestSend_InsufficientFundsRetryCanSucceedAfterTopUp(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "10.00", ibanY: "0.00", "FR1420041010050500013M02606": "100.00"})

	_, err := svc.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = svc.Send(context.Background(), command("top-up", "FR1420041010050500013M02606", ibanX, "50.00"))
	require.NoError(t, err)

	res, err := svc.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Status)
	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("35.00")))
}

func TestSend_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		cmd    transfers.SendCommand
		reason domain.FailureReason
		target error
	}{
		{
			name:   "self transfer",
			cmd:    command("k1", ibanX, ibanX, "10.00"),
			reason: domain.FailureSelfTransfer,
			target: domain.ErrSelfTransfer,
		},
		{
			name:   "zero amount",
			cmd:    command("k2", ibanX, ibanY, "0"),
			reason: domain.FailureInvalidAmount,
			target: domain.ErrInvalidAmount,
		},
		{
			name:   "negative amount",
			cmd:    command("k3", ibanX, ibanY, "-5.00"),
			reason: domain.FailureInvalidAmount,
			target: domain.ErrInvalidAmount,
		},
		{
			name:   "unknown creditor",
			cmd:    command("k4", ibanX, "CH9300762011623852957", "10.00"),
			reason: domain.FailureAccountNotFound,
			target: domain.ErrAccountNotFound,
		},
		{
			name:   "unknown debtor",
			cmd:    command("k5", "CH9300762011623852957", ibanY, "10.00"),
			reason: domain.FailureAccountNotFound,
			target: domain.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})

			res, err := svc.Send(context.Background(), tt.cmd)

			require.ErrorIs(t, err, tt.target)
			var rejection *domain.RejectionError
			require.ErrorAs(t, err, &rejection)
			assert.Equal(t, tt.reason, rejection.Reason)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.PaymentID)

			assert.Empty(t, store.Payments())
			assert.Empty(t, store.Entries())
			assert.Empty(t, store.OutboxMessages())
			assert.True(t, balanceOf(t, store, ibanX).Equal(dec("100.00")))
			assert.True(t, balanceOf(t, store, ibanY).Equal(dec("5.00")))
		})
	}
}

func TestSend_AccountNotFoundNamesTheIBAN(t *testing.T) {
	_, svc := setup(t, map[string]string{ibanX: "100.00"})

	_, err := svc.Send(context.Background(), command("k", ibanX, ibanY, "1.00"))

	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Contains(t, err.Error(), ibanY)
}

func TestSend_InvalidCommand(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})

	tests := []struct {
		name string
		cmd  transfers.SendCommand
	}{
		{name: "missing key", cmd: command("", ibanX, ibanY, "1.00")},
		{name: "missing debtor", cmd: command("k", "", ibanY, "1.00")},
		{name: "missing creditor", cmd: command("k", ibanX, " ", "1.00")},
		{name: "missing currency", cmd: func() transfers.SendCommand {
			c := command("k", ibanX, ibanY, "1.00")
			c.Currency = ""
			return c
		}()},
		{name: "too many fractional digits", cmd: command("k", ibanX, ibanY, "1.00001")},
		{name: "too many integer digits", cmd: command("k", ibanX, ibanY, "1000000000000000")},
		{name: "key too long", cmd: command(strings.Repeat("k", transfers.MaxIdempotencyKeyLength+1), ibanX, ibanY, "1.00")},
		{name: "iban too long", cmd: command("k", ibanX+"0000000000000", ibanY, "1.00")},
		{name: "lower-case currency", cmd: func() transfers.SendCommand {
			c := command("k", ibanX, ibanY, "1.00")
			c.Currency = "eur"
			return c
		}()},
		{name: "four-letter currency", cmd: func() transfers.SendCommand {
			c := command("k", ibanX, ibanY, "1.00")
			c.Currency = "EURO"
			return c
		}()},
		{name: "memo too long", cmd: func() transfers.SendCommand {
			c := command("k", ibanX, ibanY, "1.00")
			c.Memo = strings.Repeat("ü", transfers.MaxMemoLength+1)
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, domain.ErrInvalidCommand)
		})
	}
	assert.Empty(t, store.Payments())
}

func TestSendCommand_AcceptsValuesAtTheLimits(t *testing.T) {
	cmd := command(strings.Repeat("k", transfers.MaxIdempotencyKeyLength), ibanX, ibanY, "999999999999999.9999")
	cmd.Memo = strings.Repeat("ü", transfers.MaxMemoLength)

	assert.NoError(t, cmd.Validate())
}

func TestSend_IdempotentReplay(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})
	ctx := context.Background()

	first, err := svc.Send(ctx, command("idem-1", ibanX, ibanY, "25.00"))
	require.NoError(t, err)

	// Any payload under the same key replays the original outcome.
	for _, cmd := range []transfers.SendCommand{
		command("idem-1", ibanX, ibanY, "25.00"),
		command("idem-1", ibanY, ibanX, "99.00"),
		command("idem-1", ibanX, ibanX, "-1"),
	} {
		again, err := svc.Send(ctx, cmd)
		require.NoError(t, err)
		assert.True(t, again.Replayed)
		assert.Equal(t, "Idempotent replay", again.Message)
		assert.Equal(t, *first.PaymentID, *again.PaymentID)
		assert.Equal(t, first.Status, again.Status)
	}

	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("75.00")))
	assert.True(t, balanceOf(t, store, ibanY).Equal(dec("30.00")))
	assert.Len(t, store.Entries(), 2)
	assert.Len(t, store.OutboxMessages(), 2)
}

func TestSend_ConcurrentSameKey(t *testing.T) {
	tests := []struct {
		name         string
		amount       string
		wantDebtor   string
		wantCreditor string
	}{
		{name: "amount leaves funds for a second debit", amount: "25.00", wantDebtor: "75.00", wantCreditor: "30.00"},
		{name: "amount drains the debtor", amount: "60.00", wantDebtor: "40.00", wantCreditor: "65.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})

			const callers = 8
			results := make([]transfers.Result, callers)
			errs := make([]error, callers)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i], errs[i] = svc.Send(context.Background(), command("same-key", ibanX, ibanY, tt.amount))
				}(i)
			}
			close(start)
			wg.Wait()

			for i := 0; i < callers; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, domain.PaymentStatusCompleted, results[i].Status)
				require.NotNil(t, results[i].PaymentID)
				assert.Equal(t, *results[0].PaymentID, *results[i].PaymentID)
			}

			assert.True(t, balanceOf(t, store, ibanX).Equal(dec(tt.wantDebtor)))
			assert.True(t, balanceOf(t, store, ibanY).Equal(dec(tt.wantCreditor)))
			assert.Len(t, store.Payments(), 1)
			assert.Len(t, store.Entries(), 2)
			assert.Equal(t, []string{"PaymentCreated", "PaymentCompleted"}, eventTypes(t, store))
		})
	}
}

// raceTransactor reports the key as unknown for the first hidden lookups of
// every unit of work, as if another caller committed it right after them.
type raceTransactor struct {
	inner  transfers.Transactor
	hidden int
}

func (r raceTransactor) Begin(ctx context.Context) (transfers.UnitOfWork, error) {
	uow, err := r.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &raceUnitOfWork{UnitOfWork: uow, hidden: r.hidden}, nil
}

type raceUnitOfWork struct {
	transfers.UnitOfWork
	hidden  int
	lookups int
}

func (u *raceUnitOfWork) Payments() transfers.PaymentStore {
	return &racePayments{PaymentStore: u.UnitOfWork.Payments(), uow: u}
}

type racePayments struct {
	transfers.PaymentStore
	uow *raceUnitOfWork
}

func (p *racePayments) FindByIdempotencyKey(ctx context.Context, key string) (domain.Payment, error) {
	p.uow.lookups++
	if p.uow.lookups <= p.uow.hidden {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p.PaymentStore.FindByIdempotencyKey(ctx, key)
}

func TestSend_DuplicateKeyOnInsertResolvesToReplay(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})
	first, err := svc.Send(context.Background(), command("race-key", ibanX, ibanY, "25.00"))
	require.NoError(t, err)

	racing := transfers.NewTransferService(raceTransactor{inner: store, hidden: 2}, zap.NewNop())
	second, err := racing.Send(context.Background(), command("race-key", ibanX, ibanY, "25.00"))

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)
	assert.Equal(t, first.Status, second.Status)

	assert.Len(t, store.Payments(), 1)
	assert.Len(t, store.Entries(), 2)
	assert.Equal(t, []string{"PaymentCreated", "PaymentCompleted"}, eventTypes(t, store))
	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("75.00")))
}

// The key is committed while the caller waits for the account locks. The
// drained balance must not turn the replay into an insufficient funds rejection.
func TestSend_KeyCommittedWhileWaitingForLocksReplays(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})
	first, err := svc.Send(context.Background(), command("drain-key", ibanX, ibanY, "60.00"))
	require.NoError(t, err)

	racing := transfers.NewTransferService(raceTransactor{inner: store, hidden: 1}, zap.NewNop())
	second, err := racing.Send(context.Background(), command("drain-key", ibanX, ibanY, "60.00"))

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	require.NotNil(t, second.PaymentID)
	assert.Equal(t, *first.PaymentID, *second.PaymentID)
	assert.Equal(t, domain.PaymentStatusCompleted, second.Status)
	assert.Empty(t, second.Reason)

	assert.Len(t, store.Payments(), 1)
	assert.Len(t, store.Entries(), 2)
	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("40.00")))
}

func TestSend_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "1000.00", ibanY: "1000.00"})

	const rounds = 50
	var wg sync.WaitGroup
	errCh := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Send(context.Background(), command(fmt.Sprintf("xy-%d", i), ibanX, ibanY, "1.00"))
			errCh <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Send(context.Background(), command(fmt.Sprintf("yx-%d", i), ibanY, ibanX, "2.00"))
			errCh <- err
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposite-direction transfers did not finish, possible deadlock")
	}
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("1050.00")))
	assert.True(t, balanceOf(t, store, ibanY).Equal(dec("950.00")))
	assert.Len(t, store.Entries(), 4*rounds)
}

func TestSend_CallerCancellationDoesNotAbortTransfer(t *testing.T) {
	store, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Send(ctx, command("idem-1", ibanX, ibanY, "25.00"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, res.Status)
	assert.True(t, balanceOf(t, store, ibanY).Equal(dec("30.00")))
}

type failingTransactor struct {
	inner transfers.Transactor
	err   error
}

func (f failingTransactor) Begin(ctx context.Context) (transfers.UnitOfWork, error) {
	uow, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingUnitOfWork{UnitOfWork: uow, err: f.err}, nil
}

type failingUnitOfWork struct {
	transfers.UnitOfWork
	err error
}

func (u failingUnitOfWork) Ledger() transfers.LedgerStore {
	return failingLedger{LedgerStore: u.UnitOfWork.Ledger(), err: u.err}
}

type failingLedger struct {
	transfers.LedgerStore
	err error
}

func (l failingLedger) Append(context.Context, domain.LedgerEntry) error {
	return l.err
}

func TestSend_StoreFailureRollsBackEverything(t *testing.T) {
	store := memory.NewStore()
	_, err := store.SeedAccount(ibanX, dec("100.00"))
	require.NoError(t, err)
	_, err = store.SeedAccount(ibanY, dec("5.00"))
	require.NoError(t, err)

	boom := errors.New("disk full")
	svc := transfers.NewTransferService(failingTransactor{inner: store, err: boom}, zap.NewNop())

	res, err := svc.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))

	require.ErrorIs(t, err, boom)
	_, isRejection := domain.ReasonOf(err)
	assert.False(t, isRejection)
	assert.Nil(t, res.PaymentID)
	assert.Empty(t, store.Payments())
	assert.Empty(t, store.OutboxMessages())
	assert.True(t, balanceOf(t, store, ibanX).Equal(dec("100.00")))

	// Locks were released by the rollback.
	healthy := transfers.NewTransferService(store, zap.NewNop())
	_, err = healthy.Send(context.Background(), command("idem-1", ibanX, ibanY, "25.00"))
	require.NoError(t, err)
}

func TestQueries(t *testing.T) {
	_, svc := setup(t, map[string]string{ibanX: "100.00", ibanY: "5.00"})
	ctx := context.Background()

	res, err := svc.Send(ctx, command("idem-1", ibanX, ibanY, "25.00"))
	require.NoError(t, err)

	payment, err := svc.GetPayment(ctx, *res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "idem-1", payment.IdempotencyKey)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	entries, err := svc.LedgerEntries(ctx, *res.PaymentID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	account, err := svc.GetAccount(ctx, ibanY)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("30.00")))

	_, err = svc.GetAccount(ctx, "CH9300762011623852957")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
