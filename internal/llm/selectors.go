package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// Selectors is everything the checks demand from the generated markup.
type Selectors struct {
	IDs           []string
	Classes       []string
	Tags          []string
	DataAttrs     []string
	CompoundHints []string
}

var (
	idPattern       = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
	classPattern    = regexp.MustCompile(`\.([A-Za-z0-9_-]+)`)
	tagPattern      = regexp.MustCompile(`<([A-Za-z0-9]+)`)
	queryTagPattern = regexp.MustCompile(`querySelector\(['"]([a-zA-Z]+)['"]\)`)
	dataAttrPattern = regexp.MustCompile(`dataset\.([A-Za-z0-9_-]+)`)
	compoundPattern = regexp.MustCompile(`#([A-Za-z0-9_-]+)\s+([A-Za-z0-9_>\s]+)`)
	wordPattern     = regexp.MustCompile(`[A-Za-z]+`)
	tbodyIDPattern  = regexp.MustCompile(`#([A-Za-z0-9_-]+)\s+tbody`)
)

// ExtractSelectors parses JavaScript check snippets for the IDs, classes,
// tags and data attributes the generated app must contain. Compound
// selectors like "#table tbody tr" become structural hints.
func ExtractSelectors(checks []string) Selectors {
	var out Selectors
	ids := map[string]bool{}
	classes := map[string]bool{}
	tags := map[string]bool{}
	dataAttrs := map[string]bool{}

	for _, check := range checks {
		for _, m := range idPattern.FindAllStringSubmatch(check, -1) {
			if !ids[m[1]] {
				ids[m[1]] = true
				out.IDs = append(out.IDs, m[1])
			}
		}
		for _, m := range classPattern.FindAllStringSubmatch(check, -1) {
			if !classes[m[1]] {
				classes[m[1]] = true
				out.Classes = append(out.Classes, m[1])
			}
		}
		for _, m := range tagPattern.FindAllStringSubmatch(check, -1) {
			if !tags[m[1]] {
				tags[m[1]] = true
				out.Tags = append(out.Tags, m[1])
			}
		}
		for _, m := range queryTagPattern.FindAllStringSubmatch(check, -1) {
			if !tags[m[1]] {
				tags[m[1]] = true
				out.Tags = append(out.Tags, m[1])
			}
		}
		for _, m := range dataAttrPattern.FindAllStringSubmatch(check, -1) {
			if !dataAttrs[m[1]] {
				dataAttrs[m[1]] = true
				out.DataAttrs = append(out.DataAttrs, m[1])
			}
		}
	}

	joined := strings.Join(checks, " ")
	for _, m := range compoundPattern.FindAllStringSubmatch(joined, -1) {
		chainTags := wordPattern.FindAllString(m[2], -1)
		if len(chainTags) == 0 {
			continue
		}
		wrapped := make([]string, 0, len(chainTags))
		for _, tag := range chainTags {
			wrapped = append(wrapped, "<"+tag+">")
		}
		out.CompoundHints = append(out.CompoundHints,
			fmt.Sprintf("For #%s, ensure it contains %s structure.", m[1], strings.Join(wrapped, " then ")))
	}

	return out
}

// Guidance renders the selector findings as prompt text appended to the
// brief. Empty when the checks constrain nothing.
func (s Selectors) Guidance() string {
	var b strings.Builder
	if len(s.IDs) > 0 {
		b.WriteString("\nYou must include elements with these IDs: " + decorate(s.IDs, "#") + ".")
	}
	if len(s.Classes) > 0 {
		b.WriteString("\nInclude containers with these CSS classes: " + decorate(s.Classes, ".") + ".")
	}
	if len(s.Tags) > 0 {
		tags := make([]string, 0, len(s.Tags))
		for _, t := range s.Tags {
			tags = append(tags, "<"+t+">")
		}
		b.WriteString("\nEnsure proper HTML tags exist: " + strings.Join(tags, ", ") + ".")
	}
	if len(s.DataAttrs) > 0 {
		b.WriteString("\nAdd data attributes where applicable: " + decorate(s.DataAttrs, "data-") + ".")
	}
	return b.String()
}

func decorate(items []string, prefix string) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, prefix+item)
	}
	return strings.Join(out, ", ")
}

// ThemeRequired reports whether the checks demand light/dark theme markup.
func ThemeRequired(checks []string) bool {
	for _, check := range checks {
		if strings.Contains(check, ".dark-theme") ||
			strings.Contains(check, ".light-theme") ||
			strings.Contains(check, "#theme-toggle") {
			return true
		}
	}
	return false
}

// TableRowsRequired reports whether any check asserts populated table rows.
func TableRowsRequired(checks []string) bool {
	for _, check := range checks {
		if strings.Contains(check, "tbody tr") {
			return true
		}
	}
	return false
}

// TableIDs returns candidate table element IDs referenced by the checks,
// "#id tbody" matches first, then any bare "#id".
func TableIDs(checks []string) []string {
	var ids []string
	seen := map[string]bool{}
	for _, check := range checks {
		for _, m := range tbodyIDPattern.FindAllStringSubmatch(check, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				ids = append(ids, m[1])
			}
		}
		for _, m := range idPattern.FindAllStringSubmatch(check, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				ids = append(ids, m[1])
			}
		}
	}
	return ids
}
