package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/server"
	"github.com/splitpilot/splitpilot/internal/sweep"
)

var (
	servePort     int
	sweepSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the splitpilot HTTP API.

The server provides:
  - POST /api/assign and /api/convert for visitor traffic
  - POST /api/tests/{id}/decide and GET results/list endpoints for operators
  - /health and /metrics

With --sweep-schedule, a background sweeper periodically runs the decision
engine over every running test.

Example:
  splitpilot serve --port 8080 --sweep-schedule "*/10 * * * *"`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default SP_PORT or 8080)")
	serveCmd.Flags().StringVar(&sweepSchedule, "sweep-schedule", "", "cron expression for periodic decision sweeps (default SP_SWEEP_SCHEDULE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if sweepSchedule != "" {
		cfg.Sweep.Schedule = sweepSchedule
	}

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	logger := newLogger()
	defer logger.Sync()

	eng := engine.New(s, logger, analytics.NewLogSink(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Schedule != "" {
		scheduler, err := sweep.NewScheduler(cfg.Sweep.Schedule, eng, s, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := server.New(eng, s, logger, cfg.Server.Port)
	return srv.Start(ctx)
}
