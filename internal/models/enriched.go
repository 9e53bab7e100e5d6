package models

import "time"

// EnrichedRecord is the conflict-resolved synthesis of all observations for
// one advisory. Each scalar field holds the value from the
// lowest-priority-number source that supplied it.
type EnrichedRecord struct {
	Key        AdvisoryKey
	AdvisoryID string

	OverrideStatus    string
	OverrideReason    string
	OverrideUpdatedAt time.Time

	IsRejected      bool
	RejectionStatus string

	FixAvailable bool
	FixedVersion string

	CVSSScore   *float64
	CVSSVector  string
	Description string

	// ContributingSources lists every source id that supplied any non-null
	// field for this key, sorted for deterministic output.
	ContributingSources []string

	// FixAsserters lists the sources that independently claimed
	// fix_available=true with a concrete version. Used for dissent detection
	// when an override wins.
	FixAsserters []string

	// HasSignal is true when any of override/rejection/fix/cvss is set.
	HasSignal bool

	SourceCount int
}

// Anomaly flags a data-quality problem found during aggregation. Anomalous
// observations are still aggregated best-effort; the anomaly is surfaced to
// the caller rather than silently dropped.
type Anomaly struct {
	AdvisoryID string `json:"advisory_id"`
	SourceID   string `json:"source_id"`
	Field      string `json:"field"`
	Values     string `json:"values"`
	Message    string `json:"message"`
}
