package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tests",
	Long:  `List all A/B tests with per-variant assignment and conversion counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng *engine.Engine, _ store.Store) error {
		summaries, err := eng.ListSummaries(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tests: %w", err)
		}

		if len(summaries) == 0 {
			fmt.Println("No tests yet.")
			fmt.Println()
			fmt.Println("Tests auto-create on the first assignment request for a new entity:")
			fmt.Println(`  curl -X POST :8080/api/assign -d '{"entity":"checkout_button","anon_id":"v1"}'`)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENTITY\tSTATUS\tWINNER\tASSIGN A/B\tCONVERT A/B\tCREATED")

		for _, sum := range summaries {
			winner := "-"
			if sum.Test.Winner != nil {
				winner = string(*sum.Test.Winner)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d/%d\t%s\n",
				shortID(sum.Test.ID),
				sum.Test.Entity,
				strings.ToUpper(string(sum.Test.Status)),
				winner,
				sum.Counts.AssignmentsA, sum.Counts.AssignmentsB,
				sum.Counts.ConversionsA, sum.Counts.ConversionsB,
				time.Unix(sum.Test.CreatedAt, 0).Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
