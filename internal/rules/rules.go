package rules

import (
	"fmt"
	"strings"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Verdict is the state bundle a rule produces when it matches. The engine
// turns the winning verdict into a full Decision.
type Verdict struct {
	State             string
	StateType         string
	FixedVersion      string
	Evidence          map[string]any
	DissentingSources []string
}

// Rule is one link in the decision chain. Rules must be pure: no I/O, no
// clock reads. The engine stamps decided_at itself.
type Rule interface {
	// ID is a stable identifier, used in evidence and logs.
	ID() string
	// Priority orders the chain; lower evaluates first.
	Priority() int
	// ReasonCode names the decision this rule produces.
	ReasonCode() string
	// Evaluate returns a verdict and true when the rule applies.
	Evaluate(rec *models.EnrichedRecord) (Verdict, bool)
}

// DefaultChain returns the built-in rule chain. The engine sorts by
// priority, so order here is documentation, not behavior. New rules slot in
// as additional entries (priorities 3-4 are reserved for distro rules).
func DefaultChain() []Rule {
	return []Rule{
		OverrideRule{},           // 0: analyst override, highest
		RejectedRule{},           // 1: CVE rejected upstream
		UpstreamFixRule{},        // 2: confirmed fix with version
		UnderInvestigationRule{}, // 5: no signals yet
		AwaitingFixRule{},        // 6: fallback, always matches
	}
}

// OverrideRule marks an advisory not applicable when the analyst override
// sheet says so. This is the only rule in the default chain that records
// dissent: sources still asserting a usable fix contradict the override and
// are surfaced rather than hidden.
type OverrideRule struct{}

func (OverrideRule) ID() string         { return "R0" }
func (OverrideRule) Priority() int      { return 0 }
func (OverrideRule) ReasonCode() string { return models.ReasonCSVOverride }

func (r OverrideRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	if rec.OverrideStatus != models.StateNotApplicable {
		return Verdict{}, false
	}
	evidence := map[string]any{
		"csv_override": rec.OverrideStatus,
		"csv_reason":   rec.OverrideReason,
	}
	if !rec.OverrideUpdatedAt.IsZero() {
		evidence["csv_updated_at"] = rec.OverrideUpdatedAt.Format("2006-01-02")
	}
	return Verdict{
		State:             models.StateNotApplicable,
		StateType:         models.StateTypeFinal,
		Evidence:          evidence,
		DissentingSources: rec.FixAsserters,
	}, true
}

// RejectedRule marks an advisory not applicable when the authoritative CVE
// source rejected the CVE itself.
type RejectedRule struct{}

func (RejectedRule) ID() string         { return "R1" }
func (RejectedRule) Priority() int      { return 1 }
func (RejectedRule) ReasonCode() string { return models.ReasonNVDRejected }

func (r RejectedRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	if !rec.IsRejected {
		return Verdict{}, false
	}
	return Verdict{
		State:     models.StateNotApplicable,
		StateType: models.StateTypeFinal,
		Evidence: map[string]any{
			"is_rejected":      true,
			"rejection_status": rec.RejectionStatus,
		},
	}, true
}

// UpstreamFixRule marks an advisory fixed when a fix is confirmed with a
// concrete version. The aggregator guarantees fix_available never resolves
// true without one, but the rule re-checks both.
type UpstreamFixRule struct{}

func (UpstreamFixRule) ID() string         { return "R2" }
func (UpstreamFixRule) Priority() int      { return 2 }
func (UpstreamFixRule) ReasonCode() string { return models.ReasonUpstreamFix }

func (r UpstreamFixRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	if !rec.FixAvailable || rec.FixedVersion == "" {
		return Verdict{}, false
	}
	return Verdict{
		State:        models.StateFixed,
		StateType:    models.StateTypeFinal,
		FixedVersion: rec.FixedVersion,
		Evidence: map[string]any{
			"fix_available": true,
			"fixed_version": rec.FixedVersion,
			"fix_sources":   strings.Join(rec.FixAsserters, ", "),
		},
	}, true
}

// UnderInvestigationRule catches advisories with no substantive signals yet.
type UnderInvestigationRule struct{}

func (UnderInvestigationRule) ID() string         { return "R5" }
func (UnderInvestigationRule) Priority() int      { return 5 }
func (UnderInvestigationRule) ReasonCode() string { return models.ReasonNewCVE }

func (r UnderInvestigationRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	if rec.HasSignal {
		return Verdict{}, false
	}
	return Verdict{
		State:     models.StateUnderInvestigation,
		StateType: models.StateTypeNonFinal,
		Evidence: map[string]any{
			"has_signal":   false,
			"source_count": rec.SourceCount,
		},
	}, true
}

// AwaitingFixRule is the fallback and always matches.
type AwaitingFixRule struct{}

func (AwaitingFixRule) ID() string         { return "R6" }
func (AwaitingFixRule) Priority() int      { return 6 }
func (AwaitingFixRule) ReasonCode() string { return models.ReasonAwaitingFix }

func (r AwaitingFixRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	evidence := map[string]any{
		"fix_available": false,
		"sources_list":  sourcesList(rec.ContributingSources),
		"source_count":  rec.SourceCount,
	}
	if rec.CVSSScore != nil {
		evidence["cvss_score"] = fmt.Sprintf("%.1f", *rec.CVSSScore)
	}
	return Verdict{
		State:     models.StatePendingUpstream,
		StateType: models.StateTypeNonFinal,
		Evidence:  evidence,
	}, true
}

func sourcesList(sources []string) string {
	if len(sources) == 0 {
		return "none"
	}
	return strings.Join(sources, ", ")
}
