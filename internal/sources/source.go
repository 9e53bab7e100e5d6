package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Adapter reads one source's feed file and emits normalized observations.
// Fetching over the network happens outside this pipeline; adapters only
// normalize what an upstream collector already landed on disk.
type Adapter interface {
	// SourceID identifies the source in observations and metrics.
	SourceID() string
	// Load reads the feed and normalizes it. now becomes observed_at for
	// feeds that carry no per-record timestamp.
	Load(now time.Time) ([]models.Observation, error)
}

// observationID derives a stable id from the source's identity parts, so
// re-running over the same feed yields the same ids.
func observationID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:8])
}

func validCVE(id string) bool {
	return strings.HasPrefix(id, "CVE-")
}
