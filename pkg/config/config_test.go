package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siglalabs/sigla/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
		"DATA_DIR", "REDIS_ADDR", "PROFILES_DIR",
		"SWEEP_BATCH_SIZE", "SWEEP_REMINDER_LEAD_HOURS", "SWEEP_PER_SECOND",
	} {
		t.Setenv(name, "")
	}

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "data/sigla.db", cfg.SQLitePath)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, 72, cfg.SweepReminderLead)
	assert.Zero(t, cfg.SweepPerSecond)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://dilg-region4a:5432/sigla")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SWEEP_BATCH_SIZE", "500")
	t.Setenv("SWEEP_PER_SECOND", "12.5")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://dilg-region4a:5432/sigla", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 500, cfg.SweepBatchSize)
	assert.Equal(t, 12.5, cfg.SweepPerSecond)
}

func TestLoadIgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("SWEEP_BATCH_SIZE", "many")

	cfg := config.Load()
	assert.Equal(t, 100, cfg.SweepBatchSize)
}
