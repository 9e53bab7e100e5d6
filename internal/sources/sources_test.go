package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

var loadTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func writeFeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func byPackageCVE(obs []models.Observation) map[string]models.Observation {
	out := make(map[string]models.Observation, len(obs))
	for _, o := range obs {
		out[o.PackageName+":"+o.CVEID] = o
	}
	return out
}

func TestCorpusAdapterLoad(t *testing.T) {
	path := writeFeed(t, "corpus.json", `{
		"pkg-a": {
			"CVE-2024-0001": {"fixed_version": "1.2.3-1", "cvss_score": 7.5},
			"CVE-2024-0002": {},
			"not-a-cve": {}
		},
		"pkg-b": {
			"CVE-2024-0001": {"notes": "shared CVE"}
		}
	}`)

	adapter := CorpusAdapter{Path: path, Priority: models.PriorityCorpus}
	obs, err := adapter.Load(loadTime)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("got %d observations, want 3 (invalid CVE dropped)", len(obs))
	}

	m := byPackageCVE(obs)
	withFix := m["pkg-a:CVE-2024-0001"]
	if withFix.FixAvailable == nil || !*withFix.FixAvailable || withFix.FixedVersion != "1.2.3-1" {
		t.Errorf("fix fields = (%v, %q)", withFix.FixAvailable, withFix.FixedVersion)
	}
	if withFix.CVSSScore == nil || *withFix.CVSSScore != 7.5 {
		t.Errorf("cvss_score = %v", withFix.CVSSScore)
	}
	if withFix.SourceID != models.SourceCorpus || withFix.SourcePriority != models.PriorityCorpus {
		t.Errorf("source = %s/%d", withFix.SourceID, withFix.SourcePriority)
	}
	if !withFix.ObservedAt.Equal(loadTime) {
		t.Errorf("observed_at = %v", withFix.ObservedAt)
	}

	bare := m["pkg-a:CVE-2024-0002"]
	if bare.FixAvailable != nil {
		t.Errorf("bare entry has fix_available = %v, want nil", bare.FixAvailable)
	}
}

func TestCorpusAdapterMissingFileIsError(t *testing.T) {
	adapter := CorpusAdapter{Path: filepath.Join(t.TempDir(), "nope.json")}
	if _, err := adapter.Load(loadTime); err == nil {
		t.Error("expected an error for a missing corpus")
	}
}

func TestOverridesAdapterLoad(t *testing.T) {
	path := writeFeed(t, "overrides.csv",
		"cve_id,package,status,fixed_version,reason\n"+
			"CVE-2024-0001,pkg-a,NOT_APPLICABLE,,vendored copy not shipped\n"+
			"CVE-2024-0002,pkg-b,wont_fix,2.0.0,accepted risk\n"+
			"bogus,pkg-c,not_applicable,,\n"+
			"CVE-2024-0003,,not_applicable,,\n")

	adapter := OverridesAdapter{Path: path, Priority: models.PriorityOverride}
	obs, err := adapter.Load(loadTime)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2 (invalid rows dropped)", len(obs))
	}

	first := obs[0]
	if first.OverrideStatus != "not_applicable" {
		t.Errorf("status not lowercased: %q", first.OverrideStatus)
	}
	if first.OverrideReason != "vendored copy not shipped" {
		t.Errorf("reason = %q", first.OverrideReason)
	}
	if first.FixAvailable != nil {
		t.Error("fix_available set without a version column value")
	}

	second := obs[1]
	if second.FixAvailable == nil || !*second.FixAvailable || second.FixedVersion != "2.0.0" {
		t.Errorf("fix fields = (%v, %q)", second.FixAvailable, second.FixedVersion)
	}
}

func TestOverridesAdapterMissingFileIsEmpty(t *testing.T) {
	adapter := OverridesAdapter{Path: filepath.Join(t.TempDir(), "nope.csv")}
	obs, err := adapter.Load(loadTime)
	if err != nil || obs != nil {
		t.Errorf("Load = (%v, %v), want (nil, nil)", obs, err)
	}
}

func TestOverridesAdapterMissingColumn(t *testing.T) {
	path := writeFeed(t, "overrides.csv", "cve_id,reason\nCVE-2024-0001,x\n")
	adapter := OverridesAdapter{Path: path}
	if _, err := adapter.Load(loadTime); err == nil {
		t.Error("expected an error for a missing required column")
	}
}

func TestNVDAdapterLoad(t *testing.T) {
	path := writeFeed(t, "nvd.json", `{
		"vulnerabilities": [
			{
				"cve": {
					"id": "CVE-2024-0001",
					"vulnStatus": "Analyzed",
					"descriptions": [
						{"lang": "es", "value": "descripcion"},
						{"lang": "en", "value": "A heap overflow."}
					],
					"metrics": {
						"cvssMetricV31": [
							{"cvssData": {"baseScore": 9.8, "vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}}
						]
					}
				}
			},
			{
				"cve": {"id": "CVE-2024-0002", "vulnStatus": "Rejected"}
			}
		]
	}`)

	adapter := NVDAdapter{Path: path, Priority: models.PriorityNVD}
	obs, err := adapter.Load(loadTime)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}

	scored := obs[0]
	if scored.PackageName != "" {
		t.Errorf("NVD observation has a package name: %q", scored.PackageName)
	}
	if scored.CVSSScore == nil || *scored.CVSSScore != 9.8 {
		t.Errorf("cvss_score = %v", scored.CVSSScore)
	}
	if scored.Description != "A heap overflow." {
		t.Errorf("description = %q, want the english one", scored.Description)
	}
	if scored.RejectionStatus != "" {
		t.Errorf("rejection_status = %q for an analyzed CVE", scored.RejectionStatus)
	}

	rejected := obs[1]
	if rejected.RejectionStatus != "rejected" {
		t.Errorf("rejection_status = %q, want rejected", rejected.RejectionStatus)
	}
}

func TestOSVAdapterLoad(t *testing.T) {
	path := writeFeed(t, "osv.json", `{
		"vulns": [
			{
				"id": "GHSA-xxxx-yyyy-zzzz",
				"aliases": ["GHSA-dupe", "CVE-2024-0001"],
				"summary": "Overflow in parser.",
				"affected": [
					{
						"package": {"name": "pkg-a", "ecosystem": "Debian"},
						"ranges": [
							{"type": "ECOSYSTEM", "events": [{"introduced": "0"}, {"fixed": "1.2.3"}]}
						]
					},
					{
						"package": {"name": "pkg-b", "ecosystem": "Debian"},
						"ranges": [
							{"type": "ECOSYSTEM", "events": [{"introduced": "0"}]}
						]
					}
				]
			},
			{
				"id": "OSV-no-cve",
				"aliases": [],
				"affected": [{"package": {"name": "pkg-c"}}]
			}
		]
	}`)

	adapter := OSVAdapter{Path: path, Priority: models.PriorityFix}
	obs, err := adapter.Load(loadTime)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2 (no-CVE vuln dropped)", len(obs))
	}

	m := byPackageCVE(obs)
	withFix := m["pkg-a:CVE-2024-0001"]
	if withFix.FixAvailable == nil || !*withFix.FixAvailable || withFix.FixedVersion != "1.2.3" {
		t.Errorf("fix fields = (%v, %q)", withFix.FixAvailable, withFix.FixedVersion)
	}
	if withFix.Description != "Overflow in parser." {
		t.Errorf("description = %q", withFix.Description)
	}

	// No fix event yet: the source still asserts fix_available=false, which
	// is a signal, not an absence.
	noFix := m["pkg-b:CVE-2024-0001"]
	if noFix.FixAvailable == nil || *noFix.FixAvailable {
		t.Errorf("fix_available = %v, want explicit false", noFix.FixAvailable)
	}
}

func TestObservationIDStable(t *testing.T) {
	a := observationID("osv", "GHSA-1", "pkg-a")
	b := observationID("osv", "GHSA-1", "pkg-a")
	c := observationID("osv", "GHSA-1", "pkg-b")
	if a != b {
		t.Error("same parts produced different ids")
	}
	if a == c {
		t.Error("different parts produced the same id")
	}
	if len(a) != 16 {
		t.Errorf("id length = %d, want 16 hex chars", len(a))
	}
}
