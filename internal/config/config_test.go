package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// Save current env and restore later
	origHost := os.Getenv("DB_HOST")
	defer os.Setenv("DB_HOST", origHost)

	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_MAX_OPEN_CONNS", "20")
	os.Setenv("MINIO_USE_SSL", "true")
	os.Setenv("RECONCILE_TOLERANCE_PCT", "0.10")
	os.Setenv("SWEEPER_STALE_AFTER_HOURS", "72")
	defer func() {
		os.Unsetenv("DB_MAX_OPEN_CONNS")
		os.Unsetenv("MINIO_USE_SSL")
		os.Unsetenv("RECONCILE_TOLERANCE_PCT")
		os.Unsetenv("SWEEPER_STALE_AFTER_HOURS")
	}()

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 0.10, cfg.Reconcile.TolerancePct)
	assert.Equal(t, 72, cfg.Sweeper.StaleAfterHours)
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("RECONCILE_TOLERANCE_PCT")
	os.Unsetenv("SWEEPER_INTERVAL_MIN")
	os.Unsetenv("EXTRACTION_TIMEOUT_SEC")

	cfg := Load()

	assert.Equal(t, 0.05, cfg.Reconcile.TolerancePct)
	assert.Equal(t, 60, cfg.Sweeper.IntervalMin)
	assert.Equal(t, 30, cfg.Extraction.TimeoutSec)
	assert.Equal(t, "invoices", cfg.MinIO.Bucket)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_FLOAT_VAR"

	os.Setenv(key, "0.25")
	assert.Equal(t, 0.25, getEnvFloat(key, 0.05))

	os.Setenv(key, "invalid")
	assert.Equal(t, 0.05, getEnvFloat(key, 0.05))

	os.Unsetenv(key)
	assert.Equal(t, 0.05, getEnvFloat(key, 0.05))
}
