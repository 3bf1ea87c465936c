package collector

import "sort"

// Inventory is the read-only snapshot produced by one collection run.
// Every requested tenant has a key in Resources, even when it failed.
type Inventory[E any] struct {
	Resources map[string][]E
	Errors    map[string]error
}

// NewInventory creates an empty inventory.
func NewInventory[E any]() *Inventory[E] {
	return &Inventory[E]{
		Resources: make(map[string][]E),
		Errors:    make(map[string]error),
	}
}

func (inv *Inventory[E]) set(tenant string, resources []E, err error) {
	if resources == nil {
		resources = []E{}
	}
	inv.Resources[tenant] = resources
	if err != nil {
		inv.Errors[tenant] = err
	}
}

// Tenants returns tenant identifiers in sorted order.
func (inv *Inventory[E]) Tenants() []string {
	tenants := make([]string, 0, len(inv.Resources))
	for t := range inv.Resources {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants
}

// Count returns the number of resources across all tenants.
func (inv *Inventory[E]) Count() int {
	n := 0
	for _, rs := range inv.Resources {
		n += len(rs)
	}
	return n
}

// FailedTenants returns tenants whose collection was aborted, sorted.
func (inv *Inventory[E]) FailedTenants() []string {
	tenants := make([]string, 0, len(inv.Errors))
	for t := range inv.Errors {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants
}
