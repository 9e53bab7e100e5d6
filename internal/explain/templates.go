package explain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	fallbackCode       = "DEFAULT"
	neutralPlaceholder = "unknown"
)

// defaultTemplates cover the built-in reason codes. One template per code;
// new rules supply new codes through an override file without recompiling.
var defaultTemplates = map[string]string{
	"CSV_OVERRIDE": "Marked as not applicable by the security team. Reason: {csv_reason}. Updated: {csv_updated_at}.",
	"NVD_REJECTED": "This CVE has been rejected by the National Vulnerability Database.",
	"UPSTREAM_FIX": "Fixed in version {fixed_version}. Fix available from upstream.",
	"NEW_CVE":      "Recently published CVE under analysis. Awaiting upstream signals.",
	"AWAITING_FIX": "No fix currently available upstream. Sources consulted: {sources_list}.",
	"ERROR":        "Unable to determine status. Error: {error}",
	fallbackCode:   "Status determined by enrichment pipeline.",
}

// placeholderDefaults give fields a neutral value when evidence omits them.
var placeholderDefaults = map[string]string{
	"csv_reason":     "Internal policy",
	"csv_updated_at": "unknown date",
	"fixed_version":  "unknown",
	"sources_list":   "none",
	"error":          "unknown error",
}

// templateFile is the YAML shape of a template override file.
type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

// LoadTemplates reads per-reason-code template overrides from a YAML file.
func LoadTemplates(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse templates %s: %w", path, err)
	}
	return f.Templates, nil
}
