// Package filter selects which checks run and which findings are reported.
package filter

import (
	"github.com/yairfalse/vigil/pkg/finding"
)

// Filter controls which checks run and which findings are kept.
type Filter struct {
	excludeChecks map[string]bool
	statuses      map[finding.Status]bool
	includeTags   map[string]string
	excludeTags   map[string]string
}

// New creates a new Filter from the provided configuration. An empty
// statuses list keeps every verdict.
func New(excludeChecks []string, statuses []finding.Status, includeTags, excludeTags map[string]string) *Filter {
	excludeMap := make(map[string]bool)
	for _, c := range excludeChecks {
		excludeMap[c] = true
	}
	statusMap := make(map[finding.Status]bool)
	for _, s := range statuses {
		statusMap[s] = true
	}

	return &Filter{
		excludeChecks: excludeMap,
		statuses:      statusMap,
		includeTags:   includeTags,
		excludeTags:   excludeTags,
	}
}

// ShouldRunCheck returns true if the given check should be evaluated.
func (f *Filter) ShouldRunCheck(checkID string) bool {
	return !f.excludeChecks[checkID]
}

// ShouldIncludeFinding returns true if the finding passes status and tag filters.
func (f *Filter) ShouldIncludeFinding(fd finding.Finding) bool {
	if len(f.statuses) > 0 && !f.statuses[fd.Status] {
		return false
	}

	if len(f.includeTags) == 0 && len(f.excludeTags) == 0 {
		return true
	}
	tags := tagMap(fd.ResourceTags)

	// Check include tags (whitelist) - ALL must match
	for k, v := range f.includeTags {
		if got, ok := tags[k]; !ok || got != v {
			return false
		}
	}

	// Check exclude tags (blacklist) - ANY match excludes
	for k, v := range f.excludeTags {
		if got, ok := tags[k]; ok && got == v {
			return false
		}
	}

	return true
}

// FilterFindings returns only findings that pass the filter.
func (f *Filter) FilterFindings(findings []finding.Finding) []finding.Finding {
	if f.IsEmpty() {
		return findings
	}

	filtered := make([]finding.Finding, 0, len(findings))
	for _, fd := range findings {
		if !f.ShouldRunCheck(fd.CheckID) {
			continue
		}
		if f.ShouldIncludeFinding(fd) {
			filtered = append(filtered, fd)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeChecks) == 0 && len(f.statuses) == 0 &&
		len(f.includeTags) == 0 && len(f.excludeTags) == 0
}

func tagMap(tags []finding.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}
