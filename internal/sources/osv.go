package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// OSVAdapter loads OSV responses landed by the upstream collector. OSV is
// the dedicated fix-tracking source: its observations carry fix events with
// concrete fixed versions per affected package.
type OSVAdapter struct {
	Path     string
	Priority int
}

// osvResponse mirrors the relevant slice of the OSV schema.
type osvResponse struct {
	Vulns []struct {
		ID       string   `json:"id"`
		Aliases  []string `json:"aliases"`
		Summary  string   `json:"summary"`
		Affected []struct {
			Package struct {
				Name      string `json:"name"`
				Ecosystem string `json:"ecosystem"`
			} `json:"package"`
			Ranges []struct {
				Type   string `json:"type"`
				Events []struct {
					Introduced string `json:"introduced"`
					Fixed      string `json:"fixed"`
				} `json:"events"`
			} `json:"ranges"`
		} `json:"affected"`
	} `json:"vulns"`
}

func (a OSVAdapter) SourceID() string { return models.SourceOSV }

// Load parses the OSV response file, emitting one observation per
// vulnerability/affected-package pair. A missing file disables the source.
func (a OSVAdapter) Load(now time.Time) ([]models.Observation, error) {
	content, err := os.ReadFile(a.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read OSV feed %s: %w", a.Path, err)
	}

	var resp osvResponse
	if err := json.Unmarshal(content, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse OSV feed %s: %w", a.Path, err)
	}

	var observations []models.Observation
	for _, vuln := range resp.Vulns {
		cveID := ""
		for _, alias := range vuln.Aliases {
			if strings.HasPrefix(alias, "CVE-") {
				cveID = alias
				break
			}
		}
		if cveID == "" {
			continue
		}

		for _, affected := range vuln.Affected {
			pkg := affected.Package.Name
			if pkg == "" {
				continue
			}

			obs := models.Observation{
				ObservationID:  observationID(a.SourceID(), vuln.ID, pkg),
				SourceID:       a.SourceID(),
				SourcePriority: a.Priority,
				CVEID:          cveID,
				PackageName:    pkg,
				ObservedAt:     now,
				Description:    vuln.Summary,
			}

			fixedVersion := ""
			for _, r := range affected.Ranges {
				for _, event := range r.Events {
					if event.Fixed != "" {
						fixedVersion = event.Fixed
						break
					}
				}
				if fixedVersion != "" {
					break
				}
			}
			available := fixedVersion != ""
			obs.FixAvailable = &available
			obs.FixedVersion = fixedVersion

			observations = append(observations, obs)
		}
	}
	return observations, nil
}
