package cli

import (
	"github.com/spf13/cobra"
)

var (
	dbDriver string
	dbPath   string
	dbURL    string
)

var rootCmd = &cobra.Command{
	Use:   "splitpilot",
	Short: "Splitpilot - deterministic A/B test assignment and statistical decisions",
	Long: `Splitpilot buckets visitors into A/B test variants deterministically,
records conversions with duplicate and fraud protection, and decides winners
with a two-proportion z-test once enough data has accumulated.

Run 'splitpilot serve' to start the HTTP API.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Empty values fall back to the environment (SP_DB_DRIVER, SP_DB_PATH,
	// SP_DATABASE_URL).
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "dsn", "", "postgres connection string")
}
