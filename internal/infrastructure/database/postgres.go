package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/config"
)

var openDB = sql.Open

// NewPostgresDB opens the pool and retries until the database answers a
// ping or the retries run out.
func NewPostgresDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	retries := max(cfg.DBConfig.ConnectRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := connect(ctx, cfg)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database!")
			return db, nil
		}
		lastErr = err
		if attempt == retries {
			break
		}
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retries),
			zap.Duration("retry_in", cfg.DBConfig.ConnectRetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.DBConfig.ConnectRetryDelay):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", retries, lastErr)
}

func connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := openDB("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DBConfig.MaxOpenConns / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func RunMigrations(cfg *config.Config, logger *zap.Logger) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No new migrations found. Skipping...")
			return nil
		}
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully.")
	return nil
}

// RollbackMigrations undoes the given number of migrations.
func RollbackMigrations(cfg *config.Config, steps int, logger *zap.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back %d migrations: %w", steps, err)
	}
	logger.Info("Database migrations rolled back.", zap.Int("steps", steps))
	return nil
}

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
