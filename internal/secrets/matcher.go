// Package secrets flags configuration values that look like credentials.
package secrets

import (
	"fmt"
	"sort"

	"github.com/grafana/regexp"
)

// Matcher applies every detector to a key/value pair. Pairs whose key or
// value matches an ignore pattern are never reported.
type Matcher struct {
	detectors []Detector
	ignore    []*regexp.Regexp
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithDetectors replaces the default detectors.
func WithDetectors(detectors ...Detector) Option {
	return func(m *Matcher) { m.detectors = detectors }
}

// NewMatcher compiles ignorePatterns. An invalid pattern is an error.
func NewMatcher(ignorePatterns []string, opts ...Option) (*Matcher, error) {
	m := &Matcher{detectors: DefaultDetectors()}
	for _, opt := range opts {
		opt(m)
	}

	for _, p := range ignorePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", p, err)
		}
		m.ignore = append(m.ignore, re)
	}

	return m, nil
}

// Match returns one label per detector that fires, in detector order.
// Detectors do not short-circuit each other.
func (m *Matcher) Match(key, value string) []string {
	if m.ignored(key, value) {
		return nil
	}

	var labels []string
	for _, d := range m.detectors {
		if d.Match(key, value) {
			labels = append(labels, Label(d.Name, key))
		}
	}
	return labels
}

// ScanVariables matches every variable, in key order, and concatenates
// the labels.
func (m *Matcher) ScanVariables(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var labels []string
	for _, k := range keys {
		labels = append(labels, m.Match(k, vars[k])...)
	}
	return labels
}

func (m *Matcher) ignored(key, value string) bool {
	for _, re := range m.ignore {
		if re.MatchString(key) || re.MatchString(value) {
			return true
		}
	}
	return false
}

// Label formats a detector hit on a variable.
func Label(detector, key string) string {
	return detector + " in variable " + key
}
