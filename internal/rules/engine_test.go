package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

var decidedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(chain []Rule, onError ErrorFunc) *Engine {
	e := NewEngine(chain, nil, onError)
	e.Now = func() time.Time { return decidedAt }
	return e
}

func record(mod func(*models.EnrichedRecord)) *models.EnrichedRecord {
	rec := &models.EnrichedRecord{
		Key:        models.AdvisoryKey{PackageName: "pkg-a", CVEID: "CVE-2024-0001"},
		AdvisoryID: "pkg-a:CVE-2024-0001",
	}
	if mod != nil {
		mod(rec)
	}
	return rec
}

func decide(t *testing.T, rec *models.EnrichedRecord) models.Decision {
	t.Helper()
	e := newTestEngine(nil, nil)
	return e.Decide(rec, InputsFrom(rec))
}

func TestOverrideBeatsRejection(t *testing.T) {
	// Both the override and the upstream rejection apply; the override has
	// the lower priority number and must win.
	rec := record(func(r *models.EnrichedRecord) {
		r.OverrideStatus = models.StateNotApplicable
		r.OverrideReason = "vendored copy not shipped"
		r.IsRejected = true
		r.RejectionStatus = "rejected"
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonCSVOverride {
		t.Fatalf("reason_code = %s, want CSV_OVERRIDE", d.ReasonCode)
	}
	if d.State != models.StateNotApplicable || d.StateType != models.StateTypeFinal {
		t.Errorf("state = %s/%s", d.State, d.StateType)
	}
	if d.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", d.Confidence)
	}
	if d.RuleID != "R0" {
		t.Errorf("rule_id = %s, want R0", d.RuleID)
	}
}

func TestRejectionDecision(t *testing.T) {
	rec := record(func(r *models.EnrichedRecord) {
		r.IsRejected = true
		r.RejectionStatus = "rejected"
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonNVDRejected {
		t.Fatalf("reason_code = %s, want NVD_REJECTED", d.ReasonCode)
	}
	if d.State != models.StateNotApplicable {
		t.Errorf("state = %s", d.State)
	}
	if d.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", d.Confidence)
	}
}

func TestConfirmedFixDecision(t *testing.T) {
	rec := record(func(r *models.EnrichedRecord) {
		r.FixAvailable = true
		r.FixedVersion = "1.2.3"
		r.FixAsserters = []string{models.SourceOSV}
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonUpstreamFix {
		t.Fatalf("reason_code = %s, want UPSTREAM_FIX", d.ReasonCode)
	}
	if d.State != models.StateFixed || d.FixedVersion != "1.2.3" {
		t.Errorf("state = %s, fixed_version = %q", d.State, d.FixedVersion)
	}
	if d.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", d.Confidence)
	}
}

func TestBareSeverityDecision(t *testing.T) {
	// A CVSS score with no override, rejection, or fix lands on the
	// fallback rule with medium confidence.
	score := 7.5
	rec := record(func(r *models.EnrichedRecord) {
		r.CVSSScore = &score
		r.ContributingSources = []string{models.SourceNVD}
		r.SourceCount = 1
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonAwaitingFix {
		t.Fatalf("reason_code = %s, want AWAITING_FIX", d.ReasonCode)
	}
	if d.State != models.StatePendingUpstream || d.StateType != models.StateTypeNonFinal {
		t.Errorf("state = %s/%s", d.State, d.StateType)
	}
	if d.Confidence != models.ConfidenceMedium {
		t.Errorf("confidence = %s, want medium", d.Confidence)
	}
}

func TestNoSignalDecision(t *testing.T) {
	rec := record(nil)

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonNewCVE {
		t.Fatalf("reason_code = %s, want NEW_CVE", d.ReasonCode)
	}
	if d.State != models.StateUnderInvestigation {
		t.Errorf("state = %s", d.State)
	}
	if d.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %s, want low", d.Confidence)
	}
}

func TestOverrideRecordsDissent(t *testing.T) {
	// The override wins while the fix tracker still asserts a usable fix;
	// the contradiction is surfaced, not hidden.
	rec := record(func(r *models.EnrichedRecord) {
		r.OverrideStatus = models.StateNotApplicable
		r.FixAvailable = true
		r.FixedVersion = "2.0.0"
		r.FixAsserters = []string{models.SourceOSV}
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.ReasonCode != models.ReasonCSVOverride {
		t.Fatalf("reason_code = %s", d.ReasonCode)
	}
	if len(d.DissentingSources) != 1 || d.DissentingSources[0] != models.SourceOSV {
		t.Errorf("dissenting_sources = %v, want [osv]", d.DissentingSources)
	}
	// A fix losing to an override never leaks into the decision.
	if d.FixedVersion != "" {
		t.Errorf("fixed_version = %q, want empty", d.FixedVersion)
	}
}

func TestDecisionCarriesEvidenceAndTimestamp(t *testing.T) {
	rec := record(func(r *models.EnrichedRecord) {
		r.FixAvailable = true
		r.FixedVersion = "1.2.3"
		r.HasSignal = true
	})

	d := decide(t, rec)
	if d.Evidence["applied_rule"] != "R2" {
		t.Errorf("applied_rule = %v", d.Evidence["applied_rule"])
	}
	if d.Evidence["fixed_version"] != "1.2.3" {
		t.Errorf("evidence fixed_version = %v", d.Evidence["fixed_version"])
	}
	if !d.DecidedAt.Equal(decidedAt) {
		t.Errorf("decided_at = %v, want injected clock value", d.DecidedAt)
	}
	if d.Explanation == "" {
		t.Error("explanation is empty")
	}
}

type panicRule struct{}

func (panicRule) ID() string         { return "RX" }
func (panicRule) Priority() int      { return -1 }
func (panicRule) ReasonCode() string { return "PANIC" }
func (panicRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	panic("boom")
}

func TestPanickingRuleFailsOpen(t *testing.T) {
	var gotRule string
	var gotErr error
	chain := append([]Rule{panicRule{}}, DefaultChain()...)
	e := newTestEngine(chain, func(advisoryID, ruleID string, err error) {
		gotRule, gotErr = ruleID, err
	})

	rec := record(nil)
	d := e.Decide(rec, InputsFrom(rec))

	// The panicking rule is skipped and the rest of the chain decides.
	if d.ReasonCode != models.ReasonNewCVE {
		t.Errorf("reason_code = %s, want NEW_CVE", d.ReasonCode)
	}
	if gotRule != "RX" || gotErr == nil {
		t.Errorf("error callback: rule=%q err=%v", gotRule, gotErr)
	}
}

type noMatchRule struct{}

func (noMatchRule) ID() string         { return "RN" }
func (noMatchRule) Priority() int      { return 0 }
func (noMatchRule) ReasonCode() string { return "NONE" }
func (noMatchRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	return Verdict{}, false
}

func TestChainWithoutFallbackDegradesToError(t *testing.T) {
	e := newTestEngine([]Rule{noMatchRule{}}, nil)
	rec := record(nil)

	d := e.Decide(rec, InputsFrom(rec))
	if d.ReasonCode != models.ReasonError {
		t.Fatalf("reason_code = %s, want ERROR", d.ReasonCode)
	}
	if d.State != models.StateUnknown || d.Confidence != models.ConfidenceLow {
		t.Errorf("state = %s, confidence = %s", d.State, d.Confidence)
	}
}

func TestChainSortedByPriority(t *testing.T) {
	// Hand the engine a shuffled chain; the first-match order must still be
	// the priority order.
	chain := []Rule{AwaitingFixRule{}, OverrideRule{}, UpstreamFixRule{}}
	e := newTestEngine(chain, nil)

	rec := record(func(r *models.EnrichedRecord) {
		r.OverrideStatus = models.StateNotApplicable
		r.FixAvailable = true
		r.FixedVersion = "1.0.0"
		r.HasSignal = true
	})

	d := e.Decide(rec, InputsFrom(rec))
	if d.ReasonCode != models.ReasonCSVOverride {
		t.Errorf("reason_code = %s, want CSV_OVERRIDE", d.ReasonCode)
	}
}

func TestExplainTracesEveryRule(t *testing.T) {
	e := newTestEngine(nil, nil)
	rec := record(func(r *models.EnrichedRecord) {
		r.FixAvailable = true
		r.FixedVersion = "1.2.3"
		r.HasSignal = true
	})

	trace := e.Explain(rec)
	if len(trace) != len(DefaultChain()) {
		t.Fatalf("trace length = %d, want %d", len(trace), len(DefaultChain()))
	}
	// R0 and R1 do not match, R2 does, and the fallback R6 always does.
	byID := make(map[string]TraceStep)
	for _, step := range trace {
		byID[step.RuleID] = step
	}
	if byID["R0"].Matched || byID["R1"].Matched {
		t.Error("non-applicable rules reported as matched")
	}
	if !byID["R2"].Matched || byID["R2"].State != models.StateFixed {
		t.Errorf("R2 step = %+v", byID["R2"])
	}
	if !byID["R6"].Matched {
		t.Error("fallback rule not matched in trace")
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name string
		ci   ConfidenceInputs
		want string
	}{
		{"override", ConfidenceInputs{HasOverride: true}, models.ConfidenceHigh},
		{"confirmed fix", ConfidenceInputs{HasConfirmedFix: true}, models.ConfidenceHigh},
		{"rejected", ConfidenceInputs{IsRejected: true}, models.ConfidenceHigh},
		{"severity only", ConfidenceInputs{HasSeverity: true}, models.ConfidenceMedium},
		{"severity plus fix", ConfidenceInputs{HasConfirmedFix: true, HasSeverity: true}, models.ConfidenceHigh},
		{"nothing", ConfidenceInputs{}, models.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ci.Score(); got != tt.want {
				t.Errorf("Score() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConfidenceIndependentOfWinningRule(t *testing.T) {
	// Same inputs, different chains: the override rule wins in one and is
	// absent in the other, but confidence stays high either way.
	rec := record(func(r *models.EnrichedRecord) {
		r.OverrideStatus = models.StateNotApplicable
		r.HasSignal = true
	})
	ci := InputsFrom(rec)

	full := newTestEngine(nil, nil).Decide(rec, ci)
	noOverride := newTestEngine([]Rule{AwaitingFixRule{}}, nil).Decide(rec, ci)

	if full.Confidence != models.ConfidenceHigh || noOverride.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %s / %s, want high for both", full.Confidence, noOverride.Confidence)
	}
	if full.ReasonCode == noOverride.ReasonCode {
		t.Errorf("expected different winning rules, both = %s", full.ReasonCode)
	}
}

var errSentinel = errors.New("sentinel")

type errorfulRule struct{}

func (errorfulRule) ID() string         { return "RE" }
func (errorfulRule) Priority() int      { return -2 }
func (errorfulRule) ReasonCode() string { return "ERR" }
func (errorfulRule) Evaluate(rec *models.EnrichedRecord) (Verdict, bool) {
	panic(errSentinel)
}

func TestExplainReportsRuleErrors(t *testing.T) {
	e := newTestEngine(append([]Rule{errorfulRule{}}, DefaultChain()...), nil)
	trace := e.Explain(record(nil))

	if trace[0].RuleID != "RE" || trace[0].Error == "" {
		t.Errorf("first step = %+v, want RE with error", trace[0])
	}
}
