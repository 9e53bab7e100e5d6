package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echosec/advisory-pipeline/internal/aggregate"
	"github.com/echosec/advisory-pipeline/internal/config"
	"github.com/echosec/advisory-pipeline/internal/explain"
	"github.com/echosec/advisory-pipeline/internal/ledger"
	"github.com/echosec/advisory-pipeline/internal/lifecycle"
	"github.com/echosec/advisory-pipeline/internal/models"
	"github.com/echosec/advisory-pipeline/internal/rules"
	"github.com/echosec/advisory-pipeline/internal/sources"
)

// Pipeline wires the run stages together: load observations, aggregate,
// decide, apply to the ledger, export. Aggregation and decisions have no
// shared mutable state across advisory keys; only the ledger serializes,
// and it does so per advisory.
type Pipeline struct {
	config   *config.Config
	adapters []sources.Adapter
	chain    []rules.Rule
	renderer *explain.Renderer
	ledger   *ledger.Ledger
}

// Result is one run's full output for downstream consumers: every decision,
// every ledger outcome, and the run metrics.
type Result struct {
	RunID     string
	Metrics   *RunMetrics
	Decisions []models.Decision
	Outcomes  map[string]ledger.Outcome
}

// New builds a pipeline from config: file-backed ledger when a path is set,
// the default rule chain, and adapters for each configured feed.
func New(cfg *config.Config) (*Pipeline, error) {
	var store ledger.Store
	if cfg.LedgerPath != "" {
		fs, err := ledger.OpenFileStore(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		store = fs
	} else {
		store = ledger.NewMemoryStore()
	}

	var overrides map[string]string
	if cfg.TemplatesPath != "" {
		var err error
		overrides, err = explain.LoadTemplates(cfg.TemplatesPath)
		if err != nil {
			return nil, err
		}
	}

	sm := lifecycle.New(cfg.FinalStates, cfg.NonFinalStates)

	p := &Pipeline{
		config:   cfg,
		chain:    rules.DefaultChain(),
		renderer: explain.NewRenderer(overrides),
		ledger:   ledger.New(store, sm),
	}

	if cfg.Feeds.Overrides != "" {
		p.adapters = append(p.adapters, sources.OverridesAdapter{Path: cfg.Feeds.Overrides, Priority: cfg.Priority(models.SourceOverride)})
	}
	if cfg.Feeds.NVD != "" {
		p.adapters = append(p.adapters, sources.NVDAdapter{Path: cfg.Feeds.NVD, Priority: cfg.Priority(models.SourceNVD)})
	}
	if cfg.Feeds.OSV != "" {
		p.adapters = append(p.adapters, sources.OSVAdapter{Path: cfg.Feeds.OSV, Priority: cfg.Priority(models.SourceOSV)})
	}
	if cfg.Feeds.Corpus != "" {
		p.adapters = append(p.adapters, sources.CorpusAdapter{Path: cfg.Feeds.Corpus, Priority: cfg.Priority(models.SourceCorpus)})
	}

	return p, nil
}

// Ledger exposes the history ledger for queries (history/current commands,
// quality checks).
func (p *Pipeline) Ledger() *ledger.Ledger { return p.ledger }

// Run executes one full pipeline run over the configured feeds.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	now := time.Now().UTC()
	runID := newRunID(now)
	metrics := newRunMetrics(runID, now)

	observations := p.loadObservations(now, metrics)
	result := p.Process(ctx, observations, now, runID, metrics)

	if err := p.ledger.Flush(); err != nil {
		return nil, fmt.Errorf("failed to persist ledger: %w", err)
	}
	if p.config.OutputDir != "" {
		if err := p.ExportCurrent(filepath.Join(p.config.OutputDir, "advisory_current.json"), now); err != nil {
			return nil, err
		}
	}

	completed := time.Now().UTC()
	metrics.CompletedAt = &completed
	return result, nil
}

// Process runs aggregation and decisioning over an explicit observation set
// and applies the results to the ledger. Split from Run so callers with
// their own observation stream (or tests) can drive the core directly.
func (p *Pipeline) Process(ctx context.Context, observations []models.Observation, now time.Time, runID string, metrics *RunMetrics) *Result {
	agg := aggregate.Aggregate(observations)
	metrics.Anomalies = agg.Anomalies
	metrics.AdvisoriesTotal = len(agg.Records)

	engine := rules.NewEngine(p.chain, p.renderer, func(advisoryID, ruleID string, err error) {
		metrics.recordError(fmt.Sprintf("advisory %s rule %s: %v", advisoryID, ruleID, err))
	})
	engine.Now = func() time.Time { return now }

	keys := make([]models.AdvisoryKey, 0, len(agg.Records))
	for key := range agg.Records {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AdvisoryID() < keys[j].AdvisoryID() })

	var (
		mu        sync.Mutex
		decisions = make([]models.Decision, 0, len(keys))
		outcomes  = make(map[string]ledger.Outcome, len(keys))
		wg        sync.WaitGroup
		slots     = make(chan struct{}, p.config.MaxConcurrent)
	)

	for _, key := range keys {
		rec := agg.Records[key]
		wg.Add(1)
		slots <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-slots }()

			decision := engine.Decide(rec, rules.InputsFrom(rec))
			outcome := p.ledger.Apply(decision, now, runID)

			metrics.recordDecision(decision)
			metrics.recordOutcome(outcome)

			mu.Lock()
			decisions = append(decisions, decision)
			outcomes[decision.AdvisoryID] = outcome
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].AdvisoryID < decisions[j].AdvisoryID })

	for _, entry := range p.ledger.AllCurrent() {
		metrics.StateCounts[entry.State]++
	}

	return &Result{RunID: runID, Metrics: metrics, Decisions: decisions, Outcomes: outcomes}
}

// loadObservations reads every configured feed. A failing source is
// recorded and skipped; the run continues on the remaining sources.
func (p *Pipeline) loadObservations(now time.Time, metrics *RunMetrics) []models.Observation {
	var all []models.Observation
	for _, adapter := range p.adapters {
		obs, err := adapter.Load(now)
		if err != nil {
			metrics.recordError(fmt.Sprintf("source %s: %v", adapter.SourceID(), err))
			continue
		}
		metrics.SourceRecords[adapter.SourceID()] = len(obs)
		all = append(all, obs...)
	}
	return all
}

// currentExport is the advisory_current.json document shape.
type currentExport struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	AdvisoryCount int            `json:"advisory_count"`
	Advisories    []models.Entry `json:"advisories"`
}

// ExportCurrent writes every advisory's current ledger entry as JSON.
func (p *Pipeline) ExportCurrent(path string, now time.Time) error {
	entries := p.ledger.AllCurrent()
	doc := currentExport{GeneratedAt: now, AdvisoryCount: len(entries), Advisories: entries}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode current state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write current state: %w", err)
	}
	return nil
}

// newRunID builds a sortable, collision-free run identifier.
func newRunID(now time.Time) string {
	return "run_" + now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
