package ledger_repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type ledgerRepository struct{}

func NewLedgerRepository() LedgerRepository {
	return &ledgerRepository{}
}

func (r *ledgerRepository) AppendTx(ctx context.Context, querier domain.Querier, entry domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, payment_id, account_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier.ExecContext(ctx, query,
		entry.ID,
		entry.PaymentID,
		entry.AccountID,
		entry.Amount,
		entry.BalanceAfter,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry for payment %s: %w", entry.PaymentID, err)
	}
	return nil
}

// ListByPaymentTx returns the debit before the credit.
func (r *ledgerRepository) ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, payment_id, account_id, amount, balance_after, created_at
		FROM ledger_entries
		WHERE payment_id = $1
		ORDER BY amount ASC
	`
	rows, err := querier.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for payment %s: %w", paymentID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.AccountID, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) CompletedPaymentsWithInvalidEntries(ctx context.Context, querier domain.Querier) ([]uuid.UUID, error) {
	query := `
		SELECT p.id
		FROM payments p
		LEFT JOIN ledger_entries e ON e.payment_id = p.id
		WHERE p.status = 'COMPLETED'
		GROUP BY p.id
		HAVING COUNT(e.id) <> 2
		    OR COUNT(e.id) FILTER (WHERE e.amount < 0) <> 1
		    OR COALESCE(SUM(e.amount), 0) <> 0
	`
	return queryIDs(ctx, querier, query)
}

func (r *ledgerRepository) FailedPaymentsWithEntries(ctx context.Context, querier domain.Querier) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT p.id
		FROM payments p
		JOIN ledger_entries e ON e.payment_id = p.id
		WHERE p.status = 'FAILED'
	`
	return queryIDs(ctx, querier, query)
}

func queryIDs(ctx context.Context, querier domain.Querier, query string) ([]uuid.UUID, error) {
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run reconciliation query: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan payment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment ids: %w", err)
	}
	return ids, nil
}
