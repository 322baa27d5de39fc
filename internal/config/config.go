package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type DBConfig struct {
	Host              string        `env:"PAYMENTS_DB_HOST"`
	Port              int           `env:"PAYMENTS_DB_PORT"`
	User              string        `env:"PAYMENTS_DB_USER"`
	Password          string        `env:"PAYMENTS_DB_PASSWORD"`
	Name              string        `env:"PAYMENTS_DB_NAME"`
	SSLMode           string        `env:"PAYMENTS_DB_SSLMODE"`
	MaxOpenConns      int           `env:"DB_MAX_OPEN_CONNS"`
	ConnectRetries    int           `env:"DB_CONNECT_RETRIES"`
	ConnectRetryDelay time.Duration `env:"DB_CONNECT_RETRY_DELAY"`
}

type Config struct {
	StorageDriver  string `env:"STORAGE_DRIVER"`
	DBConfig       DBConfig
	MigrationsPath string `env:"MIGRATIONS_PATH"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS"`

	HTTPPort           int      `env:"HTTP_PORT"`
	HTTPAllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS"`

	KafkaBrokerURL             string `env:"KAFKA_BROKER_URL"`
	KafkaPaymentEventsTopic    string `env:"KAFKA_PAYMENT_EVENTS_TOPIC"`
	KafkaTransferRequestsTopic string `env:"KAFKA_TRANSFER_REQUESTS_TOPIC"`
	KafkaConsumerGroup         string `env:"KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS"`

	BreakerConsecutiveFailures int           `env:"BREAKER_CONSECUTIVE_FAILURES"`
	BreakerOpenTimeout         time.Duration `env:"BREAKER_OPEN_TIMEOUT"`
	BreakerHalfOpenRequests    int           `env:"BREAKER_HALF_OPEN_REQUESTS"`

	ReconStuckAfter time.Duration `env:"RECON_STUCK_AFTER"`

	LogLevel string `env:"LOG_LEVEL"`
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	cfg.StorageDriver = strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", StorageDriverPostgres))
	cfg.DBConfig.Host = getEnvOrDefault("PAYMENTS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("PAYMENTS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("PAYMENTS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("PAYMENTS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("PAYMENTS_DB_NAME", "instantpay")
	cfg.DBConfig.SSLMode = getEnvOrDefault("PAYMENTS_DB_SSLMODE", "disable")
	cfg.DBConfig.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBConfig.ConnectRetries = getEnvAsInt("DB_CONNECT_RETRIES", 10)
	cfg.DBConfig.ConnectRetryDelay = getEnvAsDuration("DB_CONNECT_RETRY_DELAY", 5*time.Second)
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")
	cfg.RunMigrations = getEnvAsBool("RUN_MIGRATIONS", true)

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8082)
	cfg.HTTPAllowedOrigins = getEnvAsList("HTTP_ALLOWED_ORIGINS", []string{"http://localhost:5173"})

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "")
	cfg.KafkaPaymentEventsTopic = getEnvOrDefault("KAFKA_PAYMENT_EVENTS_TOPIC", "payment_events")
	cfg.KafkaTransferRequestsTopic = getEnvOrDefault("KAFKA_TRANSFER_REQUESTS_TOPIC", "transfer_requests")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "instantpay-transfers-group")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 15*time.Second)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)
	cfg.OutboxMaxAttempts = getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10)

	cfg.BreakerConsecutiveFailures = getEnvAsInt("BREAKER_CONSECUTIVE_FAILURES", 5)
	cfg.BreakerOpenTimeout = getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second)
	cfg.BreakerHalfOpenRequests = getEnvAsInt("BREAKER_HALF_OPEN_REQUESTS", 1)

	cfg.ReconStuckAfter = getEnvAsDuration("RECON_STUCK_AFTER", 15*time.Minute)

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval)
	}
	if c.BreakerConsecutiveFailures <= 0 {
		return fmt.Errorf("BREAKER_CONSECUTIVE_FAILURES must be positive, got %d", c.BreakerConsecutiveFailures)
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

// KafkaEnabled reports whether brokers are configured. Without them events
// are relayed to the log and no transfer requests are consumed.
func (c *Config) KafkaEnabled() bool {
	return len(c.GetKafkaBrokers()) > 0
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		return splitList(value)
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
