package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <test-id>",
	Short: "Export raw conversion data",
	Long: `Export a test's conversions in CSV or JSON format.

Examples:
  splitpilot export 6b69... --format csv > conversions.csv
  splitpilot export 6b69... --format json > conversions.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	testID := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withEngine(func(ctx context.Context, eng *engine.Engine, s store.Store) error {
		// Verify the test exists before streaming anything.
		if _, err := eng.Results(ctx, testID); err != nil {
			return err
		}

		conversions, err := s.ListConversions(ctx, testID)
		if err != nil {
			return err
		}

		if exportFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(conversions)
		}

		w := csv.NewWriter(os.Stdout)
		if err := w.Write([]string{"id", "test_id", "assignment_id", "variant", "conversion_type", "value", "created_at"}); err != nil {
			return err
		}
		for _, c := range conversions {
			value := ""
			if c.Value != nil {
				value = strconv.FormatFloat(*c.Value, 'f', -1, 64)
			}
			record := []string{
				c.ID,
				c.TestID,
				c.AssignmentID,
				string(c.Variant),
				c.Type,
				value,
				time.Unix(c.CreatedAt, 0).UTC().Format(time.RFC3339),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}
