// Package check evaluates collected inventories into findings.
package check

import (
	"context"
	"fmt"

	"github.com/yairfalse/vigil/pkg/finding"
)

// Check is a stateless rule over one inventory. Inventories and
// configuration are handed to the check when it is constructed.
type Check interface {
	ID() string
	Info() Metadata
	Evaluate(ctx context.Context) ([]finding.Finding, error)
}

// Metadata describes a check.
type Metadata struct {
	CheckID     string
	Service     string
	Severity    string
	Description string
}

// ID returns the check identifier.
func (m Metadata) ID() string {
	return m.CheckID
}

// Info returns the metadata itself so embedding types satisfy Check.
func (m Metadata) Info() Metadata {
	return m
}

// Config is the audit configuration shared by all checks.
type Config struct {
	SecretsIgnorePatterns         []string
	RecommendedMinimalTLSVersions []string
}

// DefaultRecommendedMinimalTLSVersions are accepted when none are configured.
var DefaultRecommendedMinimalTLSVersions = []string{"1.2", "1.3"}

// Error is a check that could not be evaluated. It is never a Finding.
type Error struct {
	CheckID string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("check %s: %v", e.CheckID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
