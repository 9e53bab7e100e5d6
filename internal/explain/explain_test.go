package explain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRenderSubstitutesEvidence(t *testing.T) {
	r := NewRenderer(nil)

	got := r.Render("CSV_OVERRIDE", map[string]any{
		"csv_reason":     "vendored copy not shipped",
		"csv_updated_at": "2024-06-01",
	})
	want := "Marked as not applicable by the security team. Reason: vendored copy not shipped. Updated: 2024-06-01."
	if got != want {
		t.Errorf("Render = %q\nwant %q", got, want)
	}
}

func TestRenderMissingFieldUsesDefault(t *testing.T) {
	r := NewRenderer(nil)

	got := r.Render("CSV_OVERRIDE", nil)
	want := "Marked as not applicable by the security team. Reason: Internal policy. Updated: unknown date."
	if got != want {
		t.Errorf("Render = %q\nwant %q", got, want)
	}

	// A field with no declared default falls back to the neutral value.
	got = r.Render("UPSTREAM_FIX", map[string]any{"something_else": true})
	want = "Fixed in version unknown. Fix available from upstream."
	if got != want {
		t.Errorf("Render = %q\nwant %q", got, want)
	}
}

func TestRenderUnknownReasonCode(t *testing.T) {
	r := NewRenderer(nil)

	got := r.Render("NOT_A_CODE", nil)
	if got != "Status determined by enrichment pipeline." {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderSourcesList(t *testing.T) {
	r := NewRenderer(nil)

	got := r.Render("AWAITING_FIX", map[string]any{"sources_list": "nvd, osv"})
	want := "No fix currently available upstream. Sources consulted: nvd, osv."
	if got != want {
		t.Errorf("Render = %q\nwant %q", got, want)
	}
}

func TestRenderOverridesReplaceDefaults(t *testing.T) {
	r := NewRenderer(map[string]string{
		"UPSTREAM_FIX": "Patched in {fixed_version}.",
		"CUSTOM_CODE":  "Custom: {detail}.",
	})

	if got := r.Render("UPSTREAM_FIX", map[string]any{"fixed_version": "2.0"}); got != "Patched in 2.0." {
		t.Errorf("override render = %q", got)
	}
	if got := r.Render("CUSTOM_CODE", map[string]any{"detail": "x"}); got != "Custom: x." {
		t.Errorf("new code render = %q", got)
	}
	// Untouched defaults survive.
	if got := r.Render("NVD_REJECTED", nil); got != "This CVE has been rejected by the National Vulnerability Database." {
		t.Errorf("default render = %q", got)
	}
}

func TestSubstituteUnterminatedBrace(t *testing.T) {
	got := substitute("text with {unclosed brace", nil)
	if got != "text with {unclosed brace" {
		t.Errorf("substitute = %q", got)
	}
}

func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `templates:
  UPSTREAM_FIX: "Resolved in {fixed_version}."
  DISTRO_BACKPORT: "Backported by the distribution."
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	overrides, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if len(overrides) != 2 {
		t.Fatalf("loaded %d templates, want 2", len(overrides))
	}

	r := NewRenderer(overrides)
	if got := r.Render("UPSTREAM_FIX", map[string]any{"fixed_version": "3.1"}); got != "Resolved in 3.1." {
		t.Errorf("Render = %q", got)
	}
	if got := r.Render("DISTRO_BACKPORT", nil); got != "Backported by the distribution." {
		t.Errorf("Render = %q", got)
	}
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	if _, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
