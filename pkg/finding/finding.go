// Package finding defines the audit output model for Vigil.
package finding

import "time"

// Status is the verdict of one check against one resource.
type Status string

const (
	// StatusPass means the resource satisfies the check.
	StatusPass Status = "PASS"
	// StatusFail means the resource violates the check.
	StatusFail Status = "FAIL"
)

// Tag is a single resource tag. Tags are kept as an ordered list so
// findings render the same way on every run.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Finding is one resource, one check, one verdict.
// It is built once by a check and never mutated afterwards.
type Finding struct {
	CheckID        string `json:"check_id"`
	Tenant         string `json:"tenant"` // Subscription or account ID
	Scope          string `json:"scope"`  // Inventory tenant: subscription or AWS profile
	Region         string `json:"region"`
	ResourceID     string `json:"resource_id"`
	ResourceARN    string `json:"resource_arn"` // ARN or ARM resource path
	ResourceName   string `json:"resource_name"`
	Status         Status `json:"status"`
	StatusExtended string `json:"status_extended"`
	ResourceTags   []Tag  `json:"resource_tags"`
}

// CheckError is a check that could not be evaluated.
// It is reported next to findings, never in place of one.
type CheckError struct {
	CheckID string `json:"check_id"`
	Message string `json:"message"`
}

// Report is the outcome of one audit run.
type Report struct {
	Findings    []Finding
	CheckErrors []CheckError
	// FailedTenants lists, per collector, the tenants whose collection was
	// aborted. Their resources are missing from Findings.
	FailedTenants map[string][]string
	Duration      time.Duration
}

// Key returns a unique key for identifying a finding across runs.
func Key(f Finding) string {
	return f.CheckID + "|" + f.Tenant + "|" + f.ResourceARN
}

// Summary counts verdicts per check.
type Summary struct {
	Pass int
	Fail int
}

// Summarize groups findings by check ID.
func Summarize(findings []Finding) map[string]Summary {
	out := make(map[string]Summary)
	for _, f := range findings {
		s := out[f.CheckID]
		switch f.Status {
		case StatusPass:
			s.Pass++
		case StatusFail:
			s.Fail++
		}
		out[f.CheckID] = s
	}
	return out
}
