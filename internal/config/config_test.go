package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "./splitpilot.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Sweep.Schedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SP_DB_DRIVER", config.DriverPostgres)
	t.Setenv("SP_DATABASE_URL", "postgres://localhost/splitpilot?sslmode=disable")
	t.Setenv("SP_PORT", "9090")
	t.Setenv("SP_SWEEP_SCHEDULE", "*/5 * * * *")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/splitpilot?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "*/5 * * * *", cfg.Sweep.Schedule)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SP_DB_DRIVER", "oracle")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("SP_DB_DRIVER", config.DriverPostgres)
	t.Setenv("SP_DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SP_DATABASE_URL")
}

func TestLoadIgnoresBadPort(t *testing.T) {
	t.Setenv("SP_PORT", "not-a-port")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
