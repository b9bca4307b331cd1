package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	mstats "github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <test-id>",
	Short: "Show detailed results for a test",
	Long:  `Show per-variant counts, conversion rates, the current z-test read and conversion value summaries.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	testID := args[0]

	return withEngine(func(ctx context.Context, eng *engine.Engine, s store.Store) error {
		res, err := eng.Results(ctx, testID)
		if err != nil {
			return err
		}

		fmt.Printf("TEST: %s\n", res.Test.ID)
		fmt.Printf("ENTITY: %s\n", res.Test.Entity)
		fmt.Printf("CONTEXT: %s\n", res.Test.ContextKey)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(res.Test.Status)))
		if res.Test.Winner != nil {
			fmt.Printf("WINNER: %s\n", *res.Test.Winner)
		}
		fmt.Printf("CREATED: %s\n", time.Unix(res.Test.CreatedAt, 0).Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT  ASSIGNMENTS  CONVERSIONS  RATE")
		fmt.Println(strings.Repeat("─", 44))
		fmt.Printf("A        %-11d  %-11d  %s\n", res.Counts.AssignmentsA, res.Counts.ConversionsA, formatPercent(res.Outcome.RateA))
		fmt.Printf("B        %-11d  %-11d  %s\n", res.Counts.AssignmentsB, res.Counts.ConversionsB, formatPercent(res.Outcome.RateB))
		fmt.Println()

		if res.Outcome.ZScore > 0 {
			fmt.Printf("z = %.3f  p = %.4f  confidence = %.0f%%\n", res.Outcome.ZScore, res.Outcome.PValue, res.Outcome.Confidence*100)
		}
		switch {
		case res.Test.Status == store.StatusCompleted:
			fmt.Println("Test is completed.")
		case res.Outcome.HasWinner:
			fmt.Printf("Significant: variant %s is winning. Run 'splitpilot decide %s' to complete the test.\n", res.Outcome.Winner, res.Test.ID)
		default:
			fmt.Println("Not enough evidence yet; keep the test running.")
		}

		printValueSummary(ctx, s, res.Test.ID)
		return nil
	})
}

// printValueSummary reports mean/median conversion values per variant, for
// tests whose conversions carry a monetary or numeric value.
func printValueSummary(ctx context.Context, s store.Store, testID string) {
	conversions, err := s.ListConversions(ctx, testID)
	if err != nil {
		return
	}

	values := map[store.Variant][]float64{}
	for _, c := range conversions {
		if c.Value != nil {
			values[c.Variant] = append(values[c.Variant], *c.Value)
		}
	}
	if len(values) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("CONVERSION VALUES")
	for _, v := range []store.Variant{store.VariantA, store.VariantB} {
		data := values[v]
		if len(data) == 0 {
			continue
		}
		mean, err := mstats.Mean(data)
		if err != nil {
			continue
		}
		median, err := mstats.Median(data)
		if err != nil {
			continue
		}
		fmt.Printf("%s: n=%d mean=%.2f median=%.2f\n", v, len(data), mean, median)
	}
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
