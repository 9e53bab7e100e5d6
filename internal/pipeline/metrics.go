package pipeline

import (
	"sync"
	"time"

	"github.com/echosec/advisory-pipeline/internal/ledger"
	"github.com/echosec/advisory-pipeline/internal/models"
)

// RunMetrics tracks observability counters for one pipeline run. Decision
// workers record concurrently, so all mutation goes through the mutex.
type RunMetrics struct {
	mu sync.Mutex

	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AdvisoriesTotal int `json:"advisories_total"`
	Transitioned    int `json:"transitioned"`
	NoOps           int `json:"no_ops"`
	Rejections      int `json:"rejections"`
	FlaggedChanges  int `json:"flagged_changes"`
	Errors          int `json:"errors"`

	SourceRecords    map[string]int   `json:"source_records"`
	StateCounts      map[string]int   `json:"state_counts"`
	Transitions      map[string]int   `json:"transitions"`
	RulesFired       map[string]int   `json:"rules_fired"`
	ConfidenceCounts map[string]int   `json:"confidence_counts"`
	Anomalies        []models.Anomaly `json:"anomalies,omitempty"`
	ErrorMessages    []string         `json:"error_messages,omitempty"`
}

func newRunMetrics(runID string, startedAt time.Time) *RunMetrics {
	return &RunMetrics{
		RunID:            runID,
		StartedAt:        startedAt,
		SourceRecords:    make(map[string]int),
		StateCounts:      make(map[string]int),
		Transitions:      make(map[string]int),
		RulesFired:       make(map[string]int),
		ConfidenceCounts: make(map[string]int),
	}
}

func (m *RunMetrics) recordDecision(d models.Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RulesFired[d.RuleID]++
	m.ConfidenceCounts[d.Confidence]++
}

func (m *RunMetrics) recordOutcome(o ledger.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch o.Kind {
	case ledger.OutcomeTransitioned:
		m.Transitioned++
		from := o.FromState
		if from == "" {
			from = "(new)"
		}
		m.Transitions[from+" -> "+o.ToState]++
		if o.Flagged {
			m.FlaggedChanges++
		}
	case ledger.OutcomeNoOp:
		m.NoOps++
	case ledger.OutcomeRejected:
		m.Rejections++
	}
}

func (m *RunMetrics) recordError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors++
	m.ErrorMessages = append(m.ErrorMessages, msg)
}
