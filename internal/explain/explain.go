package explain

import (
	"fmt"
	"strings"
)

// Renderer turns a reason code plus evidence into customer-facing text.
// Templates are data: named fields in braces are substituted from the
// evidence map, missing fields fall back to neutral placeholders, and an
// unknown reason code renders the generic fallback. Render never fails.
type Renderer struct {
	templates map[string]string
}

// NewRenderer returns a renderer using the default templates, with entries
// from overrides (if any) replacing or extending them.
func NewRenderer(overrides map[string]string) *Renderer {
	templates := make(map[string]string, len(defaultTemplates)+len(overrides))
	for code, tpl := range defaultTemplates {
		templates[code] = tpl
	}
	for code, tpl := range overrides {
		templates[code] = tpl
	}
	return &Renderer{templates: templates}
}

// Render produces the explanation for a reason code. Evidence values are
// stringified with fmt; absent fields substitute a neutral placeholder.
func (r *Renderer) Render(reasonCode string, evidence map[string]any) string {
	tpl, ok := r.templates[reasonCode]
	if !ok {
		tpl = r.templates[fallbackCode]
	}
	return strings.TrimSpace(substitute(tpl, evidence))
}

// substitute replaces {field} markers. Unterminated braces pass through
// verbatim rather than erroring.
func substitute(tpl string, evidence map[string]any) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(tpl, '{')
		if open < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		closing := strings.IndexByte(tpl[open:], '}')
		if closing < 0 {
			b.WriteString(tpl)
			return b.String()
		}
		b.WriteString(tpl[:open])
		field := tpl[open+1 : open+closing]
		b.WriteString(lookup(field, evidence))
		tpl = tpl[open+closing+1:]
	}
}

func lookup(field string, evidence map[string]any) string {
	if v, ok := evidence[field]; ok && v != nil {
		s := fmt.Sprintf("%v", v)
		if s != "" {
			return s
		}
	}
	if d, ok := placeholderDefaults[field]; ok {
		return d
	}
	return neutralPlaceholder
}
