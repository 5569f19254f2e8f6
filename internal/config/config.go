// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultDatasetURL is the FAA releasable-aircraft download used when no
// override is configured.
const DefaultDatasetURL = "https://registry.faa.gov/database/ReleasableAircraft.zip"

// Config holds the full service configuration.
type Config struct {
	// Database connection. Driver is "sqlite" or "postgres".
	DatabaseDriver string
	DatabaseURL    string

	// Dataset download.
	DatasetURL string

	// HTTP API.
	Port int

	// Scheduler.
	SchedulerEnabled bool
	RefreshInterval  time.Duration
	RefreshOnStartup bool

	// Optional ClickHouse telemetry. Enabled when Host is set.
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// Optional NATS event publishing. Enabled when URL is set.
	NATSURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDriver:     strings.ToLower(envOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:        envOrDefault("DATABASE_URL", "registry.db"),
		DatasetURL:         envOrDefault("DATASET_URL", DefaultDatasetURL),
		ClickHouseHost:     os.Getenv("CLICKHOUSE_HOST"),
		ClickHouseDatabase: envOrDefault("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     envOrDefault("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		NATSURL:            os.Getenv("NATS_URL"),
	}

	var err error
	if cfg.Port, err = envOrDefaultInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ClickHousePort, err = envOrDefaultInt("CLICKHOUSE_PORT", 9000); err != nil {
		return nil, err
	}
	if cfg.SchedulerEnabled, err = envOrDefaultBool("REFRESH_SCHEDULE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.RefreshOnStartup, err = envOrDefaultBool("REFRESH_ON_STARTUP", false); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = envOrDefaultDuration("REFRESH_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDriver != "postgres" {
		return nil, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func envOrDefaultBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func envOrDefaultDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 6h or 30m, got %q", key, v)
	}
	return d, nil
}
