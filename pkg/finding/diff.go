package finding

// ChangeType represents how a finding moved between two runs.
type ChangeType string

const (
	// ChangeNew indicates a finding seen for the first time.
	ChangeNew ChangeType = "new"
	// ChangeResolved indicates a finding whose resource is no longer evaluated.
	ChangeResolved ChangeType = "resolved"
	// ChangeStatus indicates a finding whose verdict flipped.
	ChangeStatus ChangeType = "status"
)

// StatusChange represents a detected change in a finding.
type StatusChange struct {
	Type     ChangeType
	Finding  Finding
	Previous *Finding // nil for new findings
}
