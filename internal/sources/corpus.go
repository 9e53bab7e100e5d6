package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// CorpusAdapter loads the base advisory corpus. The feed is a JSON document
// keyed by package name, each holding a map of CVE id to advisory details:
//
//	{"pkg-name": {"CVE-2024-1234": {"fixed_version": "1.2.3-1"}, "CVE-2024-5678": {}}}
type CorpusAdapter struct {
	Path     string
	Priority int
}

type corpusEntry struct {
	FixedVersion string   `json:"fixed_version"`
	CVSSScore    *float64 `json:"cvss_score"`
	Notes        string   `json:"notes"`
}

func (a CorpusAdapter) SourceID() string { return models.SourceCorpus }

// Load parses the corpus file. A missing file is an error: the corpus is
// the one feed every run needs.
func (a CorpusAdapter) Load(now time.Time) ([]models.Observation, error) {
	content, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", a.Path, err)
	}

	var corpus map[string]map[string]corpusEntry
	if err := json.Unmarshal(content, &corpus); err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", a.Path, err)
	}

	var observations []models.Observation
	for pkg, cves := range corpus {
		for cveID, entry := range cves {
			if !validCVE(cveID) {
				continue
			}
			obs := models.Observation{
				ObservationID:  observationID(a.SourceID(), pkg, cveID),
				SourceID:       a.SourceID(),
				SourcePriority: a.Priority,
				CVEID:          cveID,
				PackageName:    pkg,
				ObservedAt:     now,
				CVSSScore:      entry.CVSSScore,
				Notes:          entry.Notes,
			}
			if entry.FixedVersion != "" {
				available := true
				obs.FixAvailable = &available
				obs.FixedVersion = entry.FixedVersion
			}
			observations = append(observations, obs)
		}
	}
	return observations, nil
}
