// Package config loads ActaSync runtime configuration from the
// environment, with optional .env file support.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/jhamf/actasync/internal/errors"
)

// Config holds all runtime settings for the sync daemon.
type Config struct {
	// DataDir is where the SQLite database lives.
	DataDir string
	// MigrationsDir holds the versioned schema files.
	MigrationsDir string

	// GLPI REST endpoint and tokens for the submission adapter.
	GLPIAPIURL    string
	GLPIAppToken  string
	GLPIUserToken string

	// SyncURL is the remote record source used by reconciliation.
	SyncURL string

	// ProbeTarget is the host:port the connectivity watcher dials.
	ProbeTarget   string
	ProbeInterval time.Duration

	// PullInterval drives the periodic reconciliation pull. Zero
	// disables periodic pulls; the start-up and connectivity-restore
	// triggers still run.
	PullInterval time.Duration
	PullLimit    int

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	// Ignore the error: a missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:       getEnv("ACTASYNC_DATA_DIR", "./data"),
		MigrationsDir: getEnv("ACTASYNC_MIGRATIONS_DIR", "./migrations"),
		GLPIAPIURL:    os.Getenv("GLPI_API_URL"),
		GLPIAppToken:  os.Getenv("GLPI_APP_TOKEN"),
		GLPIUserToken: os.Getenv("GLPI_USER_TOKEN"),
		SyncURL:       os.Getenv("ACTASYNC_SYNC_URL"),
		ProbeTarget:   getEnv("ACTASYNC_PROBE_TARGET", "1.1.1.1:443"),
		ProbeInterval: getDuration("ACTASYNC_PROBE_INTERVAL", 30*time.Second),
		PullInterval:  getDuration("ACTASYNC_PULL_INTERVAL", 15*time.Minute),
		PullLimit:     getInt("ACTASYNC_PULL_LIMIT", 50),
		LogLevel:      getEnv("ACTASYNC_LOG_LEVEL", "info"),
	}

	if cfg.GLPIAPIURL == "" {
		return nil, apperrors.New(apperrors.ErrConfig, "GLPI_API_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
