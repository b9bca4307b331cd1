// Package sweep periodically runs the decision engine over every running
// test, so experiments conclude without an operator watching them.
package sweep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

// maxConcurrent bounds in-flight decisions per sweep so a large test table
// doesn't flood the store.
const maxConcurrent = 4

// Run evaluates every running test once and returns how many were completed
// this pass. A failed evaluation of one test is logged and skipped; it never
// aborts the rest of the sweep.
func Run(ctx context.Context, eng *engine.Engine, s store.Store, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tests, err := s.ListTests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tests: %w", err)
	}

	var completed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, t := range tests {
		t := t
		if t.Status != store.StatusRunning {
			continue
		}
		g.Go(func() error {
			d, err := eng.DecideWinner(ctx, t.ID)
			if err != nil {
				logger.Warn("sweep: decision failed",
					zap.String("test_id", t.ID),
					zap.Error(err),
				)
				return nil
			}
			if d.Winner != nil {
				completed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(completed.Load()), err
	}
	return int(completed.Load()), nil
}

// Scheduler runs sweeps on a cron schedule.
type Scheduler struct {
	cron   *cronlib.Cron
	logger *zap.Logger
}

// NewScheduler builds a scheduler from a standard 5-field cron expression.
func NewScheduler(schedule string, eng *engine.Engine, s store.Store, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cronlib.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := Run(ctx, eng, s, logger)
		if err != nil {
			logger.Error("sweep failed", zap.Error(err))
			return
		}
		logger.Info("sweep finished", zap.Int("tests_completed", n))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduler started")
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}
