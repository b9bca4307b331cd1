package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
	"github.com/splitpilot/splitpilot/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the decision engine over every running test",
	Long: `Evaluate every running test once. Intended for cron or one-off operator
use; 'serve --sweep-schedule' runs the same sweep on a timer.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng *engine.Engine, s store.Store) error {
		completed, err := sweep.Run(ctx, eng, s, newLogger())
		if err != nil {
			return err
		}
		fmt.Printf("Sweep finished: %d test(s) completed.\n", completed)
		return nil
	})
}
