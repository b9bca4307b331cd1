// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Sweep    SweepConfig
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file path
	URL    string // postgres DSN
}

type ServerConfig struct {
	Port int
}

type SweepConfig struct {
	// Schedule is a 5-field cron expression; empty disables the periodic
	// sweeper.
	Schedule string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is merged in when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("SP_DB_DRIVER", DriverSQLite),
			Path:   getEnvOrDefault("SP_DB_PATH", "./splitpilot.db"),
			URL:    os.Getenv("SP_DATABASE_URL"),
		},
		Server: ServerConfig{
			Port: getEnvIntOrDefault("SP_PORT", 8080),
		},
		Sweep: SweepConfig{
			Schedule: os.Getenv("SP_SWEEP_SCHEDULE"),
		},
	}

	switch cfg.Database.Driver {
	case DriverSQLite:
		if cfg.Database.Path == "" {
			return nil, fmt.Errorf("SP_DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("SP_DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
