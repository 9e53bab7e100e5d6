package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Config holds the pipeline configuration, loaded from a TOML file.
type Config struct {
	// Ledger settings
	LedgerPath string `toml:"ledger_path"` // JSON ledger file; empty keeps history in memory
	OutputDir  string `toml:"output_dir"`  // where advisory_current.json and run reports land

	// Source feed files. Empty entries disable the source.
	Feeds FeedPaths `toml:"feeds"`

	// SourcePriorities maps source id -> priority (lower wins). Missing
	// sources get the built-in defaults; unknown sources resolve to 99.
	SourcePriorities map[string]int `toml:"source_priorities"`

	// State partition override. Empty slices keep the defaults.
	FinalStates    []string `toml:"final_states"`
	NonFinalStates []string `toml:"non_final_states"`

	// TemplatesPath points to an optional YAML file overriding explanation
	// templates per reason code.
	TemplatesPath string `toml:"templates_path"`

	// Behavior settings
	MaxConcurrent    int    `toml:"max_concurrent"`     // decision worker fan-out
	StalledAfterDays int    `toml:"stalled_after_days"` // quality check threshold
	OutputFormat     string `toml:"output_format"`      // "terminal" or "json"
}

// FeedPaths locates the per-source feed files read each run.
type FeedPaths struct {
	Corpus    string `toml:"corpus"`    // echo_data advisory corpus JSON
	Overrides string `toml:"overrides"` // echo_csv analyst override CSV
	NVD       string `toml:"nvd"`       // NVD response JSON
	OSV       string `toml:"osv"`       // OSV response JSON
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LedgerPath: "advisory_ledger.json",
		OutputDir:  "output",
		SourcePriorities: map[string]int{
			models.SourceOverride: models.PriorityOverride,
			models.SourceNVD:      models.PriorityNVD,
			models.SourceOSV:      models.PriorityFix,
			models.SourceCorpus:   models.PriorityCorpus,
		},
		MaxConcurrent:    10,
		StalledAfterDays: 90,
		OutputFormat:     "terminal",
	}
}

// Load reads a TOML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Re-apply priority defaults the file didn't mention.
	for id, prio := range DefaultConfig().SourcePriorities {
		if _, ok := cfg.SourcePriorities[id]; !ok {
			cfg.SourcePriorities[id] = prio
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.StalledAfterDays < 1 {
		return fmt.Errorf("stalled_after_days must be >= 1, got %d", c.StalledAfterDays)
	}
	for id, prio := range c.SourcePriorities {
		if prio < 0 {
			return fmt.Errorf("source_priorities[%s] must be >= 0, got %d", id, prio)
		}
	}
	seen := make(map[string]bool, len(c.FinalStates))
	for _, s := range c.FinalStates {
		seen[s] = true
	}
	for _, s := range c.NonFinalStates {
		if seen[s] {
			return fmt.Errorf("state %q listed as both final and non-final", s)
		}
	}
	return nil
}

// Priority resolves the priority for a source id, falling back to 99 for
// sources the config doesn't know about.
func (c *Config) Priority(sourceID string) int {
	if p, ok := c.SourcePriorities[sourceID]; ok {
		return p
	}
	return models.PriorityUnknown
}
