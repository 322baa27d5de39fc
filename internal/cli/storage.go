package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/config"
	"github.com/djamrezki/instant-payment-service/internal/domain"
	"github.com/djamrezki/instant-payment-service/internal/infrastructure/database"
	"github.com/djamrezki/instant-payment-service/internal/outbox"
	"github.com/djamrezki/instant-payment-service/internal/reconcile"
	"github.com/djamrezki/instant-payment-service/internal/repository/accounts_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/ledger_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/outbox_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/payments_repo"
	"github.com/djamrezki/instant-payment-service/internal/repository/unitofwork"
	"github.com/djamrezki/instant-payment-service/internal/storage/memory"
)

type accountSeed struct {
	IBAN    string
	Balance decimal.Decimal
}

// parseSeeds reads IBAN=amount pairs.
func parseSeeds(values []string) ([]accountSeed, error) {
	seeds := make([]accountSeed, 0, len(values))
	for _, v := range values {
		ibanPart, amountPart, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid seed %q: expected IBAN=amount", v)
		}
		iban := domain.NormalizeIBAN(ibanPart)
		if !domain.ValidIBAN(iban) {
			return nil, fmt.Errorf("invalid seed %q: %s is not a valid IBAN", v, iban)
		}
		balance, err := decimal.NewFromString(strings.TrimSpace(amountPart))
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", v, err)
		}
		if balance.IsNegative() {
			return nil, fmt.Errorf("invalid seed %q: balance must not be negative", v)
		}
		seeds = append(seeds, accountSeed{IBAN: iban, Balance: balance})
	}
	return seeds, nil
}

// storage is the persistence backend chosen by STORAGE_DRIVER.
type storage struct {
	transactor transfers.Transactor
	outbox     outbox.Source
	reconcile  reconcile.Source
	provision  func(ctx context.Context, seed accountSeed) (domain.Account, error)
	close      func() error
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, state is lost on exit")
		return newMemoryStorage(memory.NewStore()), nil
	case config.StorageDriverPostgres:
		return openPostgresStorage(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryStorage(store *memory.Store) *storage {
	return &storage{
		transactor: store,
		outbox:     store,
		reconcile:  store,
		provision: func(_ context.Context, seed accountSeed) (domain.Account, error) {
			return store.SeedAccount(seed.IBAN, seed.Balance)
		},
		close: func() error { return nil },
	}
}

func openPostgresStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	logger.Info("Waiting for database to be available...")
	db, err := database.NewPostgresDB(ctx, cfg, logger.With(zap.String("component", "Database")))
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		logger.Info("Running database migrations...")
		if err := database.RunMigrations(cfg, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	accountRepository := accounts_repo.NewAccountRepository()
	paymentRepository := payments_repo.NewPaymentRepository()
	ledgerRepository := ledger_repo.NewLedgerRepository()
	outboxRepository := outbox_repo.NewOutboxRepository()

	return &storage{
		transactor: unitofwork.NewTransactor(db, accountRepository, paymentRepository, ledgerRepository, outboxRepository),
		outbox:     outbox.NewPostgresSource(db, outboxRepository),
		reconcile:  reconcile.NewPostgresSource(db, ledgerRepository, outboxRepository),
		provision:  postgresProvisioner(db, accountRepository),
		close: func() error {
			if err := db.Close(); err != nil {
				return fmt.Errorf("error closing database connection: %w", err)
			}
			logger.Info("Database connection closed.")
			return nil
		},
	}, nil
}

func postgresProvisioner(db *sql.DB, repo accounts_repo.AccountRepository) func(context.Context, accountSeed) (domain.Account, error) {
	return func(ctx context.Context, seed accountSeed) (domain.Account, error) {
		account := domain.NewAccount(seed.IBAN, seed.Balance, time.Now().UTC())
		if err := repo.CreateTx(ctx, db, account); err != nil {
			return domain.Account{}, err
		}
		return account, nil
	}
}

// provisionAll creates the seeded accounts, skipping those that already exist.
func (s *storage) provisionAll(ctx context.Context, seeds []accountSeed, logger *zap.Logger) error {
	for _, seed := range seeds {
		account, err := s.provision(ctx, seed)
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			logger.Info("Seed account already exists, skipping", zap.String("iban", seed.IBAN))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to seed account %s: %w", seed.IBAN, err)
		}
		logger.Info("Seeded account", zap.String("iban", account.IBAN), zap.String("balance", account.Balance.String()))
	}
	return nil
}
