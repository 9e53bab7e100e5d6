package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/echosec/advisory-pipeline/internal/config"
	"github.com/echosec/advisory-pipeline/internal/pipeline"
	"github.com/echosec/advisory-pipeline/internal/quality"
	"github.com/echosec/advisory-pipeline/internal/reporter"
)

var (
	flagFormat     string
	flagOutputFile string
	flagFailOnRej  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run over the configured source feeds",
	RunE:  runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&flagFormat, "format", "f", "", "Report format: terminal, json (default from config)")
	runCmd.Flags().StringVarP(&flagOutputFile, "output", "o", "", "Report file path (default: stdout)")
	runCmd.Flags().BoolVar(&flagFailOnRej, "fail-on-rejected", false, "Exit with code 1 if any transition was rejected")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagFormat != "" {
		cfg.OutputFormat = flagFormat
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	result, err := p.Run(context.Background())
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	checker := quality.NewChecker(cfg.StalledAfterDays)
	checks := checker.RunAll(p.Ledger().AllCurrent(), time.Now().UTC())

	rep := reporter.Get(cfg.OutputFormat)
	output, err := rep.Report(result.Metrics, checks)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if flagOutputFile != "" {
		if err := os.WriteFile(flagOutputFile, output, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", flagOutputFile)
	} else {
		fmt.Print(string(output))
	}

	if flagFailOnRej && result.Metrics.Rejections > 0 {
		os.Exit(1)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(flagConfig)
}
