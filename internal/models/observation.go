package models

import "time"

// Source identifiers used by the default feed set. Adapters may emit other
// ids; anything unknown falls back to PriorityUnknown.
const (
	SourceOverride = "echo_csv"  // analyst override sheet
	SourceNVD      = "nvd"       // authoritative CVE source
	SourceOSV      = "osv"       // fix-tracking source
	SourceCorpus   = "echo_data" // base advisory corpus
)

// Source priorities. Lower wins during conflict resolution.
const (
	PriorityOverride = 0
	PriorityNVD      = 1
	PriorityFix      = 2
	PriorityCorpus   = 3
	PriorityUnknown  = 99
)

// UnknownPackage is the sentinel used when an advisory's corpus entry carries
// no package name. It is a display value only; package-less observations are
// never grouped under it (they fan out by CVE instead).
const UnknownPackage = "UNKNOWN"

// Observation is one source's normalized claim about a CVE/package pair.
// Observations are immutable once ingested.
type Observation struct {
	ObservationID  string
	SourceID       string
	SourcePriority int
	CVEID          string
	PackageName    string // empty for CVE-level-only sources such as NVD
	ObservedAt     time.Time

	// Normalized signals; sources provide only what they have.
	OverrideStatus  string // e.g. "not_applicable"
	OverrideReason  string
	RejectionStatus string // e.g. "rejected", "disputed"
	CVSSScore       *float64
	CVSSVector      string
	Description     string
	FixAvailable    *bool
	FixedVersion    string
	Notes           string
}

// HasPackage reports whether the observation is scoped to a package.
func (o Observation) HasPackage() bool {
	return o.PackageName != ""
}

// AdvisoryKey identifies the subject of a decision: one CVE, scoped to one
// package. Keys are derived only from package-level observations.
type AdvisoryKey struct {
	PackageName string
	CVEID       string
}

// AdvisoryID renders the stable identifier used by the ledger.
func (k AdvisoryKey) AdvisoryID() string {
	pkg := k.PackageName
	if pkg == "" {
		pkg = UnknownPackage
	}
	return pkg + ":" + k.CVEID
}

func (k AdvisoryKey) String() string {
	return k.AdvisoryID()
}
