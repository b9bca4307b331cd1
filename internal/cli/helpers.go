package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/config"
	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

// loadConfig merges the environment configuration with any global flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return store.OpenPostgres(cfg.Database.URL)
	case config.DriverSQLite:
		return store.Open(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// withEngine opens the configured store, builds an engine on it, executes fn
// and handles cleanup.
func withEngine(fn func(ctx context.Context, eng *engine.Engine, s store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	logger := newLogger()
	defer logger.Sync()

	eng := engine.New(s, logger, analytics.NewLogSink(logger))
	return fn(context.Background(), eng, s)
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
