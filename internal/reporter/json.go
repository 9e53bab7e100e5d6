package reporter

import (
	"encoding/json"

	"github.com/echosec/advisory-pipeline/internal/pipeline"
	"github.com/echosec/advisory-pipeline/internal/quality"
)

// JSONReporter outputs the run report in JSON format.
type JSONReporter struct{}

type jsonReport struct {
	Metrics *pipeline.RunMetrics `json:"metrics"`
	Quality []quality.Result     `json:"quality_checks"`
}

// Report generates JSON output for the run.
func (r *JSONReporter) Report(metrics *pipeline.RunMetrics, checks []quality.Result) ([]byte, error) {
	return json.MarshalIndent(jsonReport{Metrics: metrics, Quality: checks}, "", "  ")
}
