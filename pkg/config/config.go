// Package config loads runtime settings from the environment and assessment
// cycle profiles from YAML.
package config

import (
	"os"
	"strconv"
)

// Config holds process configuration.
type Config struct {
	LogLevel    string
	StoreDriver string // memory | postgres | sqlite
	DatabaseURL string
	SQLitePath  string
	DataDir     string
	RedisAddr   string
	ProfilesDir string

	SweepBatchSize    int
	SweepReminderLead int // hours
	SweepPerSecond    float64
}

// Load reads configuration from environment variables, falling back to
// defaults that boot against local infrastructure.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://sigla@localhost:5432/sigla?sslmode=disable"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "data/sigla.db"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	return &Config{
		LogLevel:          logLevel,
		StoreDriver:       driver,
		DatabaseURL:       dbURL,
		SQLitePath:        sqlitePath,
		DataDir:           dataDir,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		ProfilesDir:       profilesDir,
		SweepBatchSize:    envInt("SWEEP_BATCH_SIZE", 100),
		SweepReminderLead: envInt("SWEEP_REMINDER_LEAD_HOURS", 72),
		SweepPerSecond:    envFloat("SWEEP_PER_SECOND", 0),
	}
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
