package reporter

import (
	"github.com/echosec/advisory-pipeline/internal/pipeline"
	"github.com/echosec/advisory-pipeline/internal/quality"
)

// Reporter is the interface for run report formatters.
type Reporter interface {
	// Report renders the run's metrics and quality results.
	Report(metrics *pipeline.RunMetrics, checks []quality.Result) ([]byte, error)
}

// Get returns a reporter for the specified format.
func Get(format string) Reporter {
	switch format {
	case "json":
		return &JSONReporter{}
	default:
		return &TerminalReporter{}
	}
}
