// Package emitter writes audit reports to outputs: the terminal, JSON lines,
// structured logs and Prometheus gauges.
package emitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/yairfalse/vigil/pkg/finding"
)

// Emitter receives the report of every audit run.
//
// A report is the whole run: findings after filtering, checks that could
// not be evaluated and tenants whose collection failed. A failed tenant has
// no findings in the report, so an emitter that keeps state across runs must
// not read that absence as a clean result.
type Emitter interface {
	Emit(ctx context.Context, report finding.Report) error

	// Close flushes and releases the output. The emitter is not used after.
	Close() error
}

// MultiEmitter hands each report to several outputs.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to every emitter, in order.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends the report to every emitter. A failing output does not keep
// the report from the others; all errors are returned joined.
func (m *MultiEmitter) Emit(ctx context.Context, report finding.Report) error {
	var errs []error
	for i, e := range m.emitters {
		if err := e.Emit(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("emitter %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every emitter and returns the joined errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
