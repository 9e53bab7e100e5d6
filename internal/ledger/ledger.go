package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echosec/advisory-pipeline/internal/lifecycle"
	"github.com/echosec/advisory-pipeline/internal/models"
)

// Outcome kinds for one ledger apply.
const (
	OutcomeNoOp         = "no_op"
	OutcomeTransitioned = "transitioned"
	OutcomeRejected     = "rejected"
)

// Outcome describes what a single Apply did.
type Outcome struct {
	AdvisoryID string `json:"advisory_id"`
	Kind       string `json:"kind"`
	FromState  string `json:"from_state,omitempty"`
	ToState    string `json:"to_state"`
	Reason     string `json:"reason,omitempty"`
	// Flagged marks an accepted final -> different-final change.
	Flagged bool `json:"flagged,omitempty"`
}

// Ledger applies decisions to the history store under SCD2 semantics. Each
// advisory's read-validate-write runs inside a per-advisory critical
// section, so concurrent applies for different advisories proceed in
// parallel while two runs can never race one advisory's current pointer.
type Ledger struct {
	store Store
	sm    *lifecycle.StateMachine

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// New wraps a store with transition validation.
func New(store Store, sm *lifecycle.StateMachine) *Ledger {
	if sm == nil {
		sm = lifecycle.New(nil, nil)
	}
	return &Ledger{store: store, sm: sm, keyLocks: make(map[string]*sync.Mutex)}
}

// Apply validates and records one decision.
//
// A rejected transition leaves the ledger untouched: the prior (final)
// entry stays current and the caller reports the conflict. A decision whose
// tracked fields match the current entry is a no-op: no new row, no churn.
// Anything else closes the current entry at now and opens a new one.
func (l *Ledger) Apply(decision models.Decision, now time.Time, runID string) Outcome {
	lock := l.keyLock(decision.AdvisoryID)
	lock.Lock()
	defer lock.Unlock()

	current, exists := l.store.Current(decision.AdvisoryID)
	currentState := ""
	if exists {
		currentState = current.State
	}

	verdict := l.sm.Validate(currentState, decision.State)
	if !verdict.OK {
		return Outcome{
			AdvisoryID: decision.AdvisoryID,
			Kind:       OutcomeRejected,
			FromState:  currentState,
			ToState:    decision.State,
			Reason:     verdict.Reason,
		}
	}

	if exists && current.SameTrackedFields(decision) {
		return Outcome{
			AdvisoryID: decision.AdvisoryID,
			Kind:       OutcomeNoOp,
			FromState:  currentState,
			ToState:    decision.State,
		}
	}

	l.store.Transition(decision.AdvisoryID, now, entryFrom(decision, now, runID))
	return Outcome{
		AdvisoryID: decision.AdvisoryID,
		Kind:       OutcomeTransitioned,
		FromState:  currentState,
		ToState:    decision.State,
		Flagged:    verdict.Flagged,
	}
}

// Current returns the open entry for an advisory.
func (l *Ledger) Current(advisoryID string) (models.Entry, bool) {
	return l.store.Current(advisoryID)
}

// AllCurrent returns every advisory's open entry.
func (l *Ledger) AllCurrent() []models.Entry {
	return l.store.AllCurrent()
}

// History returns the full change history for an advisory, oldest first.
func (l *Ledger) History(advisoryID string) []models.Entry {
	return l.store.History(advisoryID)
}

// StateAt answers a point-in-time query: the advisory's state as it was at t.
func (l *Ledger) StateAt(advisoryID string, t time.Time) (models.Entry, bool) {
	return l.store.At(advisoryID, t)
}

// Flush persists the store, where the backend has anything buffered.
func (l *Ledger) Flush() error {
	return l.store.Flush()
}

func (l *Ledger) keyLock(advisoryID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.keyLocks[advisoryID]
	if !ok {
		lock = &sync.Mutex{}
		l.keyLocks[advisoryID] = lock
	}
	return lock
}

func entryFrom(d models.Decision, now time.Time, runID string) models.Entry {
	return models.Entry{
		EntryID:             uuid.NewString(),
		AdvisoryID:          d.AdvisoryID,
		CVEID:               d.CVEID,
		PackageName:         d.PackageName,
		State:               d.State,
		StateType:           d.StateType,
		Confidence:          d.Confidence,
		FixedVersion:        d.FixedVersion,
		ReasonCode:          d.ReasonCode,
		RuleID:              d.RuleID,
		Evidence:            d.Evidence,
		Explanation:         d.Explanation,
		ContributingSources: d.ContributingSources,
		DissentingSources:   d.DissentingSources,
		EffectiveFrom:       now,
		EffectiveTo:         nil,
		IsCurrent:           true,
		RunID:               runID,
	}
}
