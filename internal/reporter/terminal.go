package reporter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/echosec/advisory-pipeline/internal/pipeline"
	"github.com/echosec/advisory-pipeline/internal/quality"
)

// TerminalReporter renders a human-readable run summary.
type TerminalReporter struct{}

// Report generates terminal output for the run.
func (r *TerminalReporter) Report(metrics *pipeline.RunMetrics, checks []quality.Result) ([]byte, error) {
	var b strings.Builder

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "Advisory Pipeline Run Summary")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Run ID:        %s\n", metrics.RunID)
	fmt.Fprintf(&b, "Advisories:    %d\n", metrics.AdvisoriesTotal)
	fmt.Fprintf(&b, "Transitioned:  %d\n", metrics.Transitioned)
	fmt.Fprintf(&b, "No-ops:        %d\n", metrics.NoOps)
	fmt.Fprintf(&b, "Rejected:      %d\n", metrics.Rejections)
	fmt.Fprintf(&b, "Errors:        %d\n", metrics.Errors)

	writeCounts(&b, "State Distribution", metrics.StateCounts)
	writeCounts(&b, "Rules Fired", metrics.RulesFired)
	writeCounts(&b, "Confidence", metrics.ConfidenceCounts)
	writeCounts(&b, "Transitions", metrics.Transitions)

	if len(metrics.Anomalies) > 0 {
		fmt.Fprintf(&b, "\nAnomalies (%d):\n", len(metrics.Anomalies))
		for _, a := range metrics.Anomalies {
			fmt.Fprintf(&b, "  %s %s/%s: %s [%s]\n", a.AdvisoryID, a.SourceID, a.Field, a.Message, a.Values)
		}
	}

	if len(checks) > 0 {
		fmt.Fprintln(&b, "\nQuality Checks:")
		for _, c := range checks {
			status := "PASS"
			if !c.Passed {
				status = "FAIL"
			}
			fmt.Fprintf(&b, "  [%s] %-26s %s\n", status, c.CheckName, c.Message)
		}
	}

	fmt.Fprintln(&b, rule)
	return []byte(b.String()), nil
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-28s %4d\n", k, counts[k])
	}
}
