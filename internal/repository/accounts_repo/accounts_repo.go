package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

const uniqueViolation = "23505"

const selectAccount = `
	SELECT id, iban, balance, version, created_at, updated_at
	FROM accounts
	WHERE iban = $1
`

type accountRepository struct{}

func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

func (r *accountRepository) CreateTx(ctx context.Context, querier domain.Querier, account domain.Account) error {
	query := `
		INSERT INTO accounts (id, iban, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier.ExecContext(ctx, query,
		account.ID, account.IBAN, account.Balance, account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.IBAN, err)
	}
	return nil
}

func (r *accountRepository) GetByIBANTx(ctx context.Context, querier domain.Querier, iban string) (domain.Account, error) {
	return r.get(ctx, querier, selectAccount, iban)
}

// GetByIBANForUpdateTx takes a row lock held until the surrounding
// transaction ends.
func (r *accountRepository) GetByIBANForUpdateTx(ctx context.Context, querier domain.Querier, iban string) (domain.Account, error) {
	return r.get(ctx, querier, selectAccount+" FOR UPDATE", iban)
}

func (r *accountRepository) get(ctx context.Context, querier domain.Querier, query, iban string) (domain.Account, error) {
	var account domain.Account
	err := querier.QueryRowContext(ctx, query, iban).Scan(
		&account.ID,
		&account.IBAN,
		&account.Balance,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("failed to get account %s: %w", iban, err)
	}
	return account, nil
}

// UpdateTx writes the balance only if the stored version still matches the
// snapshot, and returns the snapshot with the new version.
func (r *accountRepository) UpdateTx(ctx context.Context, querier domain.Querier, account domain.Account) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING version, updated_at
	`
	updated := account
	err := querier.QueryRowContext(ctx, query, account.Balance, time.Now().UTC(), account.ID, account.Version).
		Scan(&updated.Version, &updated.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("%w: account %s at version %d", domain.ErrVersionConflict, account.IBAN, account.Version)
		}
		return domain.Account{}, fmt.Errorf("failed to update account %s: %w", account.IBAN, err)
	}
	return updated, nil
}
