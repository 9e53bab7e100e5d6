package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Result holds the aggregation output for one run: exactly one enriched
// record per advisory key, plus any data-quality anomalies found while
// resolving conflicts.
type Result struct {
	Records   map[models.AdvisoryKey]*models.EnrichedRecord
	Anomalies []models.Anomaly
}

// Aggregate merges all observations for a run into one enriched record per
// advisory key.
//
// Package-level observations are grouped by (package, CVE). Observations
// carrying a CVE but no package are held in a CVE-indexed side table and
// denormalized onto every package-level record sharing that CVE. This is a
// fan-out, not a merge, so a rejected CVE marks every package advisory rejected.
//
// Each scalar field resolves by source priority: among the observations that
// supply the field, the lowest priority number wins. Contradictory values
// from a single source are resolved by most-recent observed_at and flagged
// as anomalies, never silently dropped.
func Aggregate(observations []models.Observation) Result {
	groups := make(map[models.AdvisoryKey][]models.Observation)
	cveSide := make(map[string][]models.Observation)

	for _, obs := range observations {
		if obs.CVEID == "" {
			continue
		}
		if obs.HasPackage() {
			key := models.AdvisoryKey{PackageName: obs.PackageName, CVEID: obs.CVEID}
			groups[key] = append(groups[key], obs)
		} else {
			cveSide[obs.CVEID] = append(cveSide[obs.CVEID], obs)
		}
	}

	res := Result{Records: make(map[models.AdvisoryKey]*models.EnrichedRecord, len(groups))}
	for key, group := range groups {
		rec := enrich(key, group, cveSide[key.CVEID], &res.Anomalies)
		res.Records[key] = rec
	}
	return res
}

// enrich resolves one advisory key's observation group into a record. The
// CVE-level side observations participate only in the fields a CVE-scoped
// source can authoritatively speak to.
func enrich(key models.AdvisoryKey, group, side []models.Observation, anomalies *[]models.Anomaly) *models.EnrichedRecord {
	rec := &models.EnrichedRecord{Key: key, AdvisoryID: key.AdvisoryID()}

	// Fields owned by package-level observations.
	if winner, ok := resolve(rec.AdvisoryID, "override_status", group,
		func(o models.Observation) (string, bool) { return o.OverrideStatus, o.OverrideStatus != "" },
		compareLexical, anomalies); ok {
		rec.OverrideStatus = winner.OverrideStatus
		rec.OverrideReason = winner.OverrideReason
		rec.OverrideUpdatedAt = winner.ObservedAt
	}

	// CVE-level fields: rejection status, CVSS, description. Package-level
	// observations may carry them too, so both pools compete by priority.
	joined := append(append([]models.Observation{}, group...), side...)

	if winner, ok := resolve(rec.AdvisoryID, "rejection_status", joined,
		func(o models.Observation) (string, bool) { return o.RejectionStatus, o.RejectionStatus != "" },
		compareLexical, anomalies); ok {
		rec.RejectionStatus = winner.RejectionStatus
		rec.IsRejected = winner.RejectionStatus == "rejected"
	}

	if winner, ok := resolve(rec.AdvisoryID, "cvss_score", joined,
		func(o models.Observation) (string, bool) {
			if o.CVSSScore == nil {
				return "", false
			}
			return fmt.Sprintf("%.1f", *o.CVSSScore), true
		},
		compareLexical, anomalies); ok {
		score := *winner.CVSSScore
		rec.CVSSScore = &score
		rec.CVSSVector = winner.CVSSVector
	}

	if winner, ok := resolve(rec.AdvisoryID, "description", joined,
		func(o models.Observation) (string, bool) { return o.Description, o.Description != "" },
		compareLexical, anomalies); ok {
		rec.Description = winner.Description
	}

	// Fix availability needs both the boolean and a concrete version from
	// the same source; a bare true is not evidence of a usable fix.
	fixed := func(o models.Observation) (string, bool) {
		if o.FixAvailable == nil || !*o.FixAvailable || o.FixedVersion == "" {
			return "", false
		}
		return o.FixedVersion, true
	}
	if winner, ok := resolve(rec.AdvisoryID, "fixed_version", group, fixed, compareSemver, anomalies); ok {
		rec.FixAvailable = true
		rec.FixedVersion = winner.FixedVersion
	}

	asserters := make(map[string]bool)
	contributors := make(map[string]bool)
	for _, o := range joined {
		if _, ok := fixed(o); ok {
			asserters[o.SourceID] = true
		}
		if contributes(o) {
			contributors[o.SourceID] = true
		}
	}
	rec.FixAsserters = sortedSet(asserters)
	rec.ContributingSources = sortedSet(contributors)
	rec.SourceCount = len(rec.ContributingSources)

	rec.HasSignal = rec.OverrideStatus != "" ||
		rec.RejectionStatus != "" ||
		rec.FixAvailable ||
		rec.CVSSScore != nil

	return rec
}

// resolve picks the winning observation for one field among those that
// supply it. Ordering is priority ascending, then observed_at descending,
// then the field value itself, then source id, so the outcome is fully
// deterministic. A source contributing more than one distinct value for the
// field is flagged as an anomaly.
func resolve(
	advisoryID, field string,
	pool []models.Observation,
	valueOf func(models.Observation) (string, bool),
	compare func(a, b string) int,
	anomalies *[]models.Anomaly,
) (models.Observation, bool) {
	var cands []models.Observation
	for _, o := range pool {
		if _, ok := valueOf(o); ok {
			cands = append(cands, o)
		}
	}
	if len(cands) == 0 {
		return models.Observation{}, false
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority < b.SourcePriority
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		av, _ := valueOf(a)
		bv, _ := valueOf(b)
		if c := compare(av, bv); c != 0 {
			return c < 0
		}
		return a.SourceID < b.SourceID
	})

	// Same-source contradiction check across the whole candidate pool.
	perSource := make(map[string]map[string]bool)
	for _, o := range cands {
		v, _ := valueOf(o)
		if perSource[o.SourceID] == nil {
			perSource[o.SourceID] = make(map[string]bool)
		}
		perSource[o.SourceID][v] = true
	}
	for sourceID, values := range perSource {
		if len(values) > 1 {
			*anomalies = append(*anomalies, models.Anomaly{
				AdvisoryID: advisoryID,
				SourceID:   sourceID,
				Field:      field,
				Values:     strings.Join(sortedSet(values), ", "),
				Message:    "contradictory values from one source; most recent kept",
			})
		}
	}

	return cands[0], true
}

// contributes reports whether the observation supplied any non-null signal.
func contributes(o models.Observation) bool {
	return o.OverrideStatus != "" ||
		o.RejectionStatus != "" ||
		o.CVSSScore != nil ||
		o.FixAvailable != nil ||
		o.FixedVersion != "" ||
		o.Description != ""
}

// compareSemver orders version strings so the lowest fix version wins exact
// timestamp ties. Falls back to lexical order for non-semver values.
func compareSemver(a, b string) int {
	ca, cb := canonical(a), canonical(b)
	if semver.IsValid(ca) && semver.IsValid(cb) {
		return semver.Compare(ca, cb)
	}
	return compareLexical(a, b)
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func compareLexical(a, b string) int {
	return strings.Compare(a, b)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
