package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// NVDAdapter loads NVD API responses landed by the upstream collector. NVD
// speaks at CVE granularity only, so its observations carry no package name
// and fan out across package advisories during aggregation.
type NVDAdapter struct {
	Path     string
	Priority int
}

// nvdResponse mirrors the relevant slice of the NVD 2.0 API schema.
type nvdResponse struct {
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			VulnStatus   string `json:"vulnStatus"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []struct {
					CVSSData struct {
						BaseScore    float64 `json:"baseScore"`
						VectorString string  `json:"vectorString"`
					} `json:"cvssData"`
				} `json:"cvssMetricV31"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

func (a NVDAdapter) SourceID() string { return models.SourceNVD }

// Load parses the NVD response file. A missing file disables the source for
// this run.
func (a NVDAdapter) Load(now time.Time) ([]models.Observation, error) {
	content, err := os.ReadFile(a.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read NVD feed %s: %w", a.Path, err)
	}

	var resp nvdResponse
	if err := json.Unmarshal(content, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse NVD feed %s: %w", a.Path, err)
	}

	var observations []models.Observation
	for _, vuln := range resp.Vulnerabilities {
		cve := vuln.CVE
		if !validCVE(cve.ID) {
			continue
		}

		obs := models.Observation{
			ObservationID:  observationID(a.SourceID(), cve.ID),
			SourceID:       a.SourceID(),
			SourcePriority: a.Priority,
			CVEID:          cve.ID,
			ObservedAt:     now,
		}
		if cve.VulnStatus == "Rejected" {
			obs.RejectionStatus = "rejected"
		}
		if len(cve.Metrics.CVSSMetricV31) > 0 {
			data := cve.Metrics.CVSSMetricV31[0].CVSSData
			score := data.BaseScore
			obs.CVSSScore = &score
			obs.CVSSVector = data.VectorString
		}
		for _, desc := range cve.Descriptions {
			if desc.Lang == "en" {
				obs.Description = desc.Value
				break
			}
		}
		if obs.Description == "" && len(cve.Descriptions) > 0 {
			obs.Description = cve.Descriptions[0].Value
		}
		observations = append(observations, obs)
	}
	return observations, nil
}
