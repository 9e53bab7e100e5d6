package models

import "time"

// Advisory lifecycle states.
const (
	StateFixed              = "fixed"
	StateNotApplicable      = "not_applicable"
	StateWontFix            = "wont_fix"
	StatePendingUpstream    = "pending_upstream"
	StateUnderInvestigation = "under_investigation"
	StateUnknown            = "unknown"
)

// State type classification.
const (
	StateTypeFinal    = "final"
	StateTypeNonFinal = "non_final"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Reason codes emitted by the default rule chain.
const (
	ReasonCSVOverride = "CSV_OVERRIDE"
	ReasonNVDRejected = "NVD_REJECTED"
	ReasonUpstreamFix = "UPSTREAM_FIX"
	ReasonNewCVE      = "NEW_CVE"
	ReasonAwaitingFix = "AWAITING_FIX"
	ReasonError       = "ERROR"
)

// Decision is the rule engine's verdict for one advisory in one run.
// Produced fresh every run and never mutated after creation.
type Decision struct {
	AdvisoryID          string         `json:"advisory_id"`
	CVEID               string         `json:"cve_id"`
	PackageName         string         `json:"package_name"`
	State               string         `json:"state"`
	StateType           string         `json:"state_type"`
	Confidence          string         `json:"confidence"`
	FixedVersion        string         `json:"fixed_version,omitempty"`
	ReasonCode          string         `json:"reason_code"`
	RuleID              string         `json:"rule_id"`
	Evidence            map[string]any `json:"evidence"`
	Explanation         string         `json:"explanation"`
	ContributingSources []string       `json:"contributing_sources"`
	DissentingSources   []string       `json:"dissenting_sources"`
	DecidedAt           time.Time      `json:"decided_at"`
}

// Entry is one ledger row: a Decision plus its SCD2 validity interval.
// Closed entries are immutable; exactly one entry per advisory is open
// (EffectiveTo == nil) at any time.
type Entry struct {
	EntryID             string         `json:"entry_id"`
	AdvisoryID          string         `json:"advisory_id"`
	CVEID               string         `json:"cve_id"`
	PackageName         string         `json:"package_name"`
	State               string         `json:"state"`
	StateType           string         `json:"state_type"`
	Confidence          string         `json:"confidence"`
	FixedVersion        string         `json:"fixed_version,omitempty"`
	ReasonCode          string         `json:"reason_code"`
	RuleID              string         `json:"rule_id"`
	Evidence            map[string]any `json:"evidence,omitempty"`
	Explanation         string         `json:"explanation"`
	ContributingSources []string       `json:"contributing_sources"`
	DissentingSources   []string       `json:"dissenting_sources"`
	EffectiveFrom       time.Time      `json:"effective_from"`
	EffectiveTo         *time.Time     `json:"effective_to,omitempty"`
	IsCurrent           bool           `json:"is_current"`
	RunID               string         `json:"run_id"`
}

// SameTrackedFields reports whether the decision matches the entry on every
// field that warrants a new history row. Equal tracked fields mean the ledger
// apply is a no-op.
func (e Entry) SameTrackedFields(d Decision) bool {
	return e.State == d.State &&
		e.FixedVersion == d.FixedVersion &&
		e.Confidence == d.Confidence &&
		e.ReasonCode == d.ReasonCode &&
		e.Explanation == d.Explanation
}
