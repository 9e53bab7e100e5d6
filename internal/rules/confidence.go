package rules

import "github.com/echosec/advisory-pipeline/internal/models"

// ConfidenceInputs are the signals that drive confidence scoring. Scoring is
// independent of which rule fired, so reordering the chain never changes a
// decision's confidence.
type ConfidenceInputs struct {
	HasOverride     bool
	HasConfirmedFix bool
	IsRejected      bool
	HasSeverity     bool
}

// InputsFrom derives confidence inputs from an enriched record.
func InputsFrom(rec *models.EnrichedRecord) ConfidenceInputs {
	return ConfidenceInputs{
		HasOverride:     rec.OverrideStatus != "",
		HasConfirmedFix: rec.FixAvailable && rec.FixedVersion != "",
		IsRejected:      rec.IsRejected,
		HasSeverity:     rec.CVSSScore != nil,
	}
}

// Score maps the inputs to a confidence level: high when an authoritative
// signal is present, medium when only a severity score is, low otherwise.
func (ci ConfidenceInputs) Score() string {
	switch {
	case ci.HasOverride || ci.HasConfirmedFix || ci.IsRejected:
		return models.ConfidenceHigh
	case ci.HasSeverity:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
