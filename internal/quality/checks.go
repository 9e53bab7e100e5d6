package quality

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Result holds one check's outcome.
type Result struct {
	CheckName string `json:"check_name"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message"`
	Count     int    `json:"count"`
}

// Checker runs data-quality checks over the ledger's current rows after a
// run. Checks never mutate anything; failures are reported, not fatal.
type Checker struct {
	// StalledAfter is how long an advisory may sit in a non-final state
	// before it counts as stalled.
	StalledAfter time.Duration
	// StalledWarnThreshold is how many stalled advisories fail the check.
	StalledWarnThreshold int
}

// NewChecker returns a checker with the given stalled threshold in days.
func NewChecker(stalledAfterDays int) *Checker {
	return &Checker{
		StalledAfter:         time.Duration(stalledAfterDays) * 24 * time.Hour,
		StalledWarnThreshold: 10,
	}
}

var cvePattern = regexp.MustCompile(`^CVE-[0-9]{4}-[0-9]{4,}$`)

// RunAll executes every check against the current entries.
func (c *Checker) RunAll(current []models.Entry, now time.Time) []Result {
	return []Result{
		c.checkNoNullStates(current),
		c.checkExplanationCompleteness(current),
		c.checkFixedHasVersion(current),
		c.checkCVEFormat(current),
		c.checkStalled(current, now),
	}
}

// checkNoNullStates: every current advisory must carry a state.
func (c *Checker) checkNoNullStates(current []models.Entry) Result {
	count := 0
	for _, e := range current {
		if e.State == "" {
			count++
		}
	}
	return verdict("no_null_states", count == 0, count,
		"All advisories have state", "%d advisories with empty state")
}

// checkExplanationCompleteness: explanations are customer-facing and
// required.
func (c *Checker) checkExplanationCompleteness(current []models.Entry) Result {
	count := 0
	for _, e := range current {
		if strings.TrimSpace(e.Explanation) == "" {
			count++
		}
	}
	return verdict("explanation_completeness", count == 0, count,
		"All advisories have explanations", "%d advisories missing explanation")
}

// checkFixedHasVersion: if we say it's fixed, we must say which version.
func (c *Checker) checkFixedHasVersion(current []models.Entry) Result {
	count := 0
	for _, e := range current {
		if e.State == models.StateFixed && strings.TrimSpace(e.FixedVersion) == "" {
			count++
		}
	}
	return verdict("fixed_has_version", count == 0, count,
		"All fixed advisories have a version", "%d fixed advisories without version")
}

// checkCVEFormat: CVE ids must match CVE-YYYY-NNNN+.
func (c *Checker) checkCVEFormat(current []models.Entry) Result {
	count := 0
	for _, e := range current {
		if e.CVEID != "" && !cvePattern.MatchString(e.CVEID) {
			count++
		}
	}
	return verdict("cve_format", count == 0, count,
		"All CVE ids valid", "%d invalid CVE id formats")
}

// checkStalled: non-final advisories should resolve eventually; long-lived
// ones point at stale feeds or upstream stalls.
func (c *Checker) checkStalled(current []models.Entry, now time.Time) Result {
	count := 0
	cutoff := now.Add(-c.StalledAfter)
	for _, e := range current {
		if e.StateType == models.StateTypeNonFinal && e.EffectiveFrom.Before(cutoff) {
			count++
		}
	}
	days := int(c.StalledAfter.Hours() / 24)
	passed := count < c.StalledWarnThreshold
	msg := "No stalled advisories"
	if count > 0 {
		msg = fmt.Sprintf("%d advisories stalled more than %d days", count, days)
	}
	return Result{CheckName: "stalled_advisories", Passed: passed, Message: msg, Count: count}
}

func verdict(name string, passed bool, count int, okMsg, failFmt string) Result {
	msg := okMsg
	if count > 0 {
		msg = fmt.Sprintf(failFmt, count)
	}
	return Result{CheckName: name, Passed: passed, Message: msg, Count: count}
}
