package sources

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// OverridesAdapter loads the analyst override sheet, a CSV with columns
// cve_id, package, status, fixed_version, reason. These observations carry
// the highest-priority signal in the pipeline.
type OverridesAdapter struct {
	Path     string
	Priority int
}

func (a OverridesAdapter) SourceID() string { return models.SourceOverride }

// Load parses the override CSV. A missing file just means no overrides yet.
func (a OverridesAdapter) Load(now time.Time) ([]models.Observation, error) {
	f, err := os.Open(a.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open overrides %s: %w", a.Path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"cve_id", "package", "status"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("overrides %s missing column %q", a.Path, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var observations []models.Observation
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read overrides row: %w", err)
		}

		cveID := field(row, "cve_id")
		pkg := field(row, "package")
		if !validCVE(cveID) || pkg == "" {
			continue
		}

		obs := models.Observation{
			ObservationID:  observationID(a.SourceID(), pkg, cveID),
			SourceID:       a.SourceID(),
			SourcePriority: a.Priority,
			CVEID:          cveID,
			PackageName:    pkg,
			ObservedAt:     now,
			OverrideStatus: strings.ToLower(field(row, "status")),
			OverrideReason: field(row, "reason"),
		}
		if v := field(row, "fixed_version"); v != "" {
			available := true
			obs.FixAvailable = &available
			obs.FixedVersion = v
		}
		observations = append(observations, obs)
	}
	return observations, nil
}
