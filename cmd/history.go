package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/echosec/advisory-pipeline/internal/ledger"
)

var flagAt string

var historyCmd = &cobra.Command{
	Use:   "history <advisory-id>",
	Short: "Show an advisory's state history, or its state at a point in time",
	Args:  cobra.ExactArgs(1),
	RunE:  showHistory,
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print every advisory's current ledger entry",
	RunE:  showCurrent,
}

func init() {
	historyCmd.Flags().StringVar(&flagAt, "at", "", "RFC3339 timestamp for a point-in-time query")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(currentCmd)
}

func openLedger() (*ledger.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.OpenFileStore(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	return ledger.New(store, nil), nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	advisoryID := args[0]

	if flagAt != "" {
		t, err := time.Parse(time.RFC3339, flagAt)
		if err != nil {
			return fmt.Errorf("invalid --at timestamp: %w", err)
		}
		entry, ok := l.StateAt(advisoryID, t)
		if !ok {
			return fmt.Errorf("no state for %s at %s", advisoryID, flagAt)
		}
		return printJSON(entry)
	}

	history := l.History(advisoryID)
	if len(history) == 0 {
		return fmt.Errorf("no history for %s", advisoryID)
	}
	return printJSON(history)
}

func showCurrent(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	return printJSON(l.AllCurrent())
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
