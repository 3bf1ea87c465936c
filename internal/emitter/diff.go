package emitter

import (
	"sort"
	"sync"

	"github.com/yairfalse/vigil/pkg/finding"
)

// DiffTracker tracks findings between runs and detects verdict changes.
type DiffTracker struct {
	mu          sync.RWMutex
	previous    map[string]finding.Finding
	initialized bool
}

// NewDiffTracker creates a new diff tracker.
func NewDiffTracker() *DiffTracker {
	return &DiffTracker{
		previous: make(map[string]finding.Finding),
	}
}

// ComputeDiff compares current findings against the previous run.
// Returns nil on the first run (baseline establishment).
// Returns an empty slice if no changes are detected.
// Changes are ordered by finding key.
func (d *DiffTracker) ComputeDiff(current []finding.Finding) []finding.StatusChange {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	currentMap := indexFindings(current)
	changes := make([]finding.StatusChange, 0)
	changes = append(changes, d.findResolvedAndFlipped(currentMap)...)
	changes = append(changes, d.findNew(currentMap)...)

	sort.SliceStable(changes, func(i, j int) bool {
		return finding.Key(changes[i].Finding) < finding.Key(changes[j].Finding)
	})
	return changes
}

func indexFindings(findings []finding.Finding) map[string]finding.Finding {
	m := make(map[string]finding.Finding, len(findings))
	for _, f := range findings {
		m[finding.Key(f)] = f
	}
	return m
}

func (d *DiffTracker) findResolvedAndFlipped(currentMap map[string]finding.Finding) []finding.StatusChange {
	var changes []finding.StatusChange
	for key, prev := range d.previous {
		prevCopy := prev
		curr, exists := currentMap[key]
		switch {
		case !exists:
			changes = append(changes, finding.StatusChange{
				Type:     finding.ChangeResolved,
				Finding:  prev,
				Previous: &prevCopy,
			})
		case curr.Status != prev.Status:
			changes = append(changes, finding.StatusChange{
				Type:     finding.ChangeStatus,
				Finding:  curr,
				Previous: &prevCopy,
			})
		}
	}
	return changes
}

func (d *DiffTracker) findNew(currentMap map[string]finding.Finding) []finding.StatusChange {
	var changes []finding.StatusChange
	for key, curr := range currentMap {
		if _, exists := d.previous[key]; !exists {
			changes = append(changes, finding.StatusChange{
				Type:    finding.ChangeNew,
				Finding: curr,
			})
		}
	}
	return changes
}

// Update stores the current findings as the baseline for the next run.
func (d *DiffTracker) Update(current []finding.Finding) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.previous = indexFindings(current)
	d.initialized = true
}

// Carry appends the previous findings of the given tenants to current.
// Tenants whose collection failed keep their last known findings instead
// of showing up as resolved. Tenants are matched on the finding scope.
func (d *DiffTracker) Carry(current []finding.Finding, tenants []string) []finding.Finding {
	if len(tenants) == 0 {
		return current
	}

	skip := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		skip[t] = true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := append([]finding.Finding(nil), current...)
	var carried []finding.Finding
	for _, prev := range d.previous {
		if skip[scopeOf(prev)] {
			carried = append(carried, prev)
		}
	}
	sort.Slice(carried, func(i, j int) bool {
		return finding.Key(carried[i]) < finding.Key(carried[j])
	})
	return append(out, carried...)
}

func scopeOf(f finding.Finding) string {
	if f.Scope != "" {
		return f.Scope
	}
	return f.Tenant
}
