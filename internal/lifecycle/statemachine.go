package lifecycle

import (
	"fmt"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// StateMachine validates advisory state transitions against a configurable
// final/non-final partition.
//
// Policy:
//   - no current state: allowed (first decision)
//   - non-final -> any: allowed (new information supersedes)
//   - final -> same final: allowed (re-confirmation)
//   - final -> different final: allowed, flagged for observability
//   - final -> non-final: rejected (regression would erase a resolved state)
type StateMachine struct {
	finalStates    map[string]bool
	nonFinalStates map[string]bool
}

// New builds a state machine. Empty slices keep the default partition.
func New(finalStates, nonFinalStates []string) *StateMachine {
	if len(finalStates) == 0 {
		finalStates = []string{models.StateFixed, models.StateNotApplicable, models.StateWontFix}
	}
	if len(nonFinalStates) == 0 {
		nonFinalStates = []string{models.StatePendingUpstream, models.StateUnderInvestigation, models.StateUnknown}
	}
	sm := &StateMachine{
		finalStates:    make(map[string]bool, len(finalStates)),
		nonFinalStates: make(map[string]bool, len(nonFinalStates)),
	}
	for _, s := range finalStates {
		sm.finalStates[s] = true
	}
	for _, s := range nonFinalStates {
		sm.nonFinalStates[s] = true
	}
	return sm
}

// Verdict is the result of validating one transition.
type Verdict struct {
	OK     bool
	Reason string // set when rejected
	// Flagged marks legal-but-notable transitions (final -> different
	// final) so callers can count them without rejecting.
	Flagged bool
}

// Validate checks a proposed transition. current is empty for an advisory's
// first-ever decision.
func (sm *StateMachine) Validate(current, proposed string) Verdict {
	if !sm.knows(proposed) {
		return Verdict{Reason: fmt.Sprintf("invalid target state: %s", proposed)}
	}
	if current == "" {
		return Verdict{OK: true}
	}
	if !sm.knows(current) {
		return Verdict{Reason: fmt.Sprintf("invalid current state: %s", current)}
	}
	if current == proposed {
		return Verdict{OK: true}
	}

	if !sm.finalStates[current] {
		return Verdict{OK: true}
	}
	if sm.finalStates[proposed] {
		// Rare but valid, e.g. a rejection reversed upstream.
		return Verdict{OK: true, Flagged: true}
	}
	return Verdict{Reason: fmt.Sprintf("regression not allowed: %s (final) -> %s (non-final)", current, proposed)}
}

// IsFinal reports whether a state is in the final partition.
func (sm *StateMachine) IsFinal(state string) bool {
	return sm.finalStates[state]
}

// StateType returns the partition name for a state, or empty when unknown.
func (sm *StateMachine) StateType(state string) string {
	switch {
	case sm.finalStates[state]:
		return models.StateTypeFinal
	case sm.nonFinalStates[state]:
		return models.StateTypeNonFinal
	default:
		return ""
	}
}

// AllowedFrom lists the legal target partitions from a state: non-final
// states may move anywhere, final states only within the final partition.
func (sm *StateMachine) AllowedFrom(current string) []string {
	var out []string
	collect := func(set map[string]bool) {
		for s := range set {
			out = append(out, s)
		}
	}
	switch {
	case sm.nonFinalStates[current]:
		collect(sm.finalStates)
		collect(sm.nonFinalStates)
	case sm.finalStates[current]:
		collect(sm.finalStates)
	}
	return out
}

func (sm *StateMachine) knows(state string) bool {
	return sm.finalStates[state] || sm.nonFinalStates[state]
}
