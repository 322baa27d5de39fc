package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 5432, cfg.DBConfig.Port)
	assert.Equal(t, 8082, cfg.HTTPPort)
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 15*time.Minute, cfg.ReconStuckAfter)
	assert.False(t, cfg.KafkaEnabled())
	assert.True(t, cfg.RunMigrations)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("PAYMENTS_DB_PORT", "6543")
	t.Setenv("KAFKA_BROKER_URL", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, 6543, cfg.DBConfig.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.GetKafkaBrokers())
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTPAllowedOrigins)
	assert.Equal(t, 10, cfg.OutboxBatchSize, "unparsable values fall back to the default")
}

func TestLoadConfig_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PAYMENTS_DB_NAME=from_file\nHTTP_PORT=9000\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PAYMENTS_DB_NAME") })
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.DBConfig.Name)
	assert.Equal(t, 9100, cfg.HTTPPort)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := LoadConfig()

	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestConnectionStrings(t *testing.T) {
	cfg := &Config{DBConfig: DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "require"}}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=require", cfg.GetDBConnectionString())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=require", cfg.GetDBMigrationConnectionString())
}
