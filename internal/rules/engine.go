package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/echosec/advisory-pipeline/internal/explain"
	"github.com/echosec/advisory-pipeline/internal/models"
)

// ErrorFunc receives rule evaluation failures. Evaluation continues with the
// next rule, so one misbehaving rule cannot halt the batch.
type ErrorFunc func(advisoryID, ruleID string, err error)

// Engine evaluates an ordered rule chain against enriched records, first
// match wins. The chain is injected, not hardcoded: adding, removing, or
// reordering rules never changes this type.
type Engine struct {
	rules    []Rule
	renderer *explain.Renderer
	onError  ErrorFunc

	// Now stamps decided_at; replaceable in tests. Rules themselves never
	// read the clock.
	Now func() time.Time
}

// NewEngine builds an engine over the given chain, sorted by priority. A nil
// chain uses DefaultChain, a nil renderer uses the default templates.
func NewEngine(chain []Rule, renderer *explain.Renderer, onError ErrorFunc) *Engine {
	if chain == nil {
		chain = DefaultChain()
	}
	sorted := make([]Rule, len(chain))
	copy(sorted, chain)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	if renderer == nil {
		renderer = explain.NewRenderer(nil)
	}
	if onError == nil {
		onError = func(string, string, error) {}
	}
	return &Engine{rules: sorted, renderer: renderer, onError: onError, Now: time.Now}
}

// Decide applies the chain to one record and returns the decision of the
// first matching rule. Confidence comes from the inputs, independent of the
// winning rule. With the default chain's always-matching fallback this never
// returns an error decision, but a custom chain without one degrades to it.
func (e *Engine) Decide(rec *models.EnrichedRecord, ci ConfidenceInputs) models.Decision {
	for _, rule := range e.rules {
		verdict, matched, err := e.evaluate(rule, rec)
		if err != nil {
			e.onError(rec.AdvisoryID, rule.ID(), err)
			continue
		}
		if !matched {
			continue
		}
		return e.build(rec, rule, verdict, ci)
	}
	return e.errorDecision(rec, "no rule matched")
}

// Explain returns the full evaluation trace without short-circuiting, for
// debugging which rules would have fired.
func (e *Engine) Explain(rec *models.EnrichedRecord) []TraceStep {
	trace := make([]TraceStep, 0, len(e.rules))
	for _, rule := range e.rules {
		step := TraceStep{RuleID: rule.ID(), Priority: rule.Priority()}
		verdict, matched, err := e.evaluate(rule, rec)
		switch {
		case err != nil:
			step.Error = err.Error()
		case matched:
			step.Matched = true
			step.State = verdict.State
		}
		trace = append(trace, step)
	}
	return trace
}

// TraceStep records one rule's outcome in an evaluation trace.
type TraceStep struct {
	RuleID   string `json:"rule_id"`
	Priority int    `json:"priority"`
	Matched  bool   `json:"matched"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// evaluate runs one rule, converting panics on malformed input into errors
// so the engine can fail open per rule.
func (e *Engine) evaluate(rule Rule, rec *models.EnrichedRecord) (verdict Verdict, matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.ID(), r)
		}
	}()
	verdict, matched = rule.Evaluate(rec)
	return verdict, matched, nil
}

func (e *Engine) build(rec *models.EnrichedRecord, rule Rule, verdict Verdict, ci ConfidenceInputs) models.Decision {
	evidence := make(map[string]any, len(verdict.Evidence)+1)
	for k, v := range verdict.Evidence {
		evidence[k] = v
	}
	evidence["applied_rule"] = rule.ID()

	fixedVersion := ""
	if verdict.State == models.StateFixed {
		fixedVersion = verdict.FixedVersion
	}

	pkg := rec.Key.PackageName
	if pkg == "" {
		pkg = models.UnknownPackage
	}

	return models.Decision{
		AdvisoryID:          rec.AdvisoryID,
		CVEID:               rec.Key.CVEID,
		PackageName:         pkg,
		State:               verdict.State,
		StateType:           verdict.StateType,
		Confidence:          ci.Score(),
		FixedVersion:        fixedVersion,
		ReasonCode:          rule.ReasonCode(),
		RuleID:              rule.ID(),
		Evidence:            evidence,
		Explanation:         e.renderer.Render(rule.ReasonCode(), evidence),
		ContributingSources: rec.ContributingSources,
		DissentingSources:   verdict.DissentingSources,
		DecidedAt:           e.Now().UTC(),
	}
}

func (e *Engine) errorDecision(rec *models.EnrichedRecord, reason string) models.Decision {
	evidence := map[string]any{"error": reason}
	return models.Decision{
		AdvisoryID:          rec.AdvisoryID,
		CVEID:               rec.Key.CVEID,
		PackageName:         rec.Key.PackageName,
		State:               models.StateUnknown,
		StateType:           models.StateTypeNonFinal,
		Confidence:          models.ConfidenceLow,
		ReasonCode:          models.ReasonError,
		Evidence:            evidence,
		Explanation:         e.renderer.Render(models.ReasonError, evidence),
		ContributingSources: rec.ContributingSources,
		DissentingSources:   nil,
		DecidedAt:           e.Now().UTC(),
	}
}
