package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Outbox.ErrorCooldown)
	assert.Equal(t, 5, cfg.Sequence.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Sequence.BaseDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, IntegrationsModeMock, cfg.Integrations.Mode)
	assert.Contains(t, cfg.Database.URL, "secret@localhost:5432")
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "BOLT")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_MAX_RETRIES", "3")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "7")
	t.Setenv("IDEMPOTENCY_BACKEND", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverBolt, cfg.Storage.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 3, cfg.Outbox.MaxRetries)
	assert.Equal(t, 7*time.Second, cfg.Context.ShutdownTimeout)
	assert.Equal(t, IdempotencyBackendRedis, cfg.Idempotency.Backend)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORAGE_DRIVER", "bolt")
	t.Setenv("INTEGRATIONS_MODE", "carrier-pigeon")
	_, err = Load()
	assert.Error(t, err)
}
