package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "advisory-pipeline",
	Short: "Reconcile multi-source vulnerability signals into versioned advisory decisions",
	Long: `advisory-pipeline merges per-source vulnerability observations about
CVE/package pairs into one enriched record per advisory, runs a
deterministic priority-ordered rule chain over it, and records the
resulting state in an append-only SCD2 history ledger.

Sources disagree; the pipeline resolves conflicts by source priority
(analyst overrides beat the authoritative CVE database, which beats the
fix tracker, which beats the base corpus) and explains every decision
with a reason code and evidence.

Examples:
  # Run the pipeline with the default config
  advisory-pipeline run

  # Run with an explicit config and JSON report
  advisory-pipeline run --config pipeline.toml --format json

  # Show the current state of one advisory
  advisory-pipeline history pkg-a:CVE-2024-0001

  # Show what the state was at a point in time
  advisory-pipeline history pkg-a:CVE-2024-0001 --at 2024-06-01T00:00:00Z`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to TOML config file")
}
