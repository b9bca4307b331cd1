package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

var decideCmd = &cobra.Command{
	Use:   "decide <test-id>",
	Short: "Run the decision engine on a test",
	Long: `Evaluate the stopping rule for one test: apply the minimum-sample gates,
run the two-proportion z-test and complete the test if confidence reaches 95%.

Safe to run repeatedly; a completed test returns its stored decision.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	testID := args[0]

	return withEngine(func(ctx context.Context, eng *engine.Engine, _ store.Store) error {
		d, err := eng.DecideWinner(ctx, testID)
		if err != nil {
			return err
		}

		fmt.Printf("A: %d assignments, %d conversions (%.2f%%)\n",
			d.Counts.AssignmentsA, d.Counts.ConversionsA, d.Outcome.RateA*100)
		fmt.Printf("B: %d assignments, %d conversions (%.2f%%)\n",
			d.Counts.AssignmentsB, d.Counts.ConversionsB, d.Outcome.RateB*100)
		fmt.Println()

		if d.Winner != nil {
			fmt.Printf("Winner: variant %s at %.0f%% confidence. Test is completed.\n", *d.Winner, d.Confidence*100)
			return nil
		}
		if d.Confidence > 0 {
			fmt.Printf("Confidence %.0f%%, below the 95%% threshold. Keep the test running.\n", d.Confidence*100)
		} else {
			fmt.Println("Not enough data yet (need 100 assignments and 5 conversions per variant).")
		}
		return nil
	})
}
