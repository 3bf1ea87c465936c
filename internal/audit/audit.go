// Package audit runs one collect-then-check pass over every source.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/internal/emitter"
	"github.com/yairfalse/vigil/internal/filter"
	"github.com/yairfalse/vigil/pkg/finding"
)

// Source is one resource collector and the checks that read its inventory.
type Source interface {
	Name() string
	// Collect refreshes the inventory and returns the tenants that failed.
	Collect(ctx context.Context) []string
	// Checks binds checks to the latest inventory.
	Checks(cfg check.Config) ([]check.Check, error)
}

// CheckBuilder binds checks to an inventory.
type CheckBuilder[E any] func(inv *collector.Inventory[E], cfg check.Config) ([]check.Check, error)

type source[C, E any] struct {
	collector *collector.Collector[C, E]
	tenants   []string
	build     CheckBuilder[E]

	mu  sync.RWMutex
	inv *collector.Inventory[E]
}

// NewSource adapts a collector over a fixed tenant list into a Source.
func NewSource[C, E any](c *collector.Collector[C, E], tenants []string, build CheckBuilder[E]) Source {
	return &source[C, E]{
		collector: c,
		tenants:   tenants,
		build:     build,
		inv:       collector.NewInventory[E](),
	}
}

func (s *source[C, E]) Name() string {
	return s.collector.Name()
}

func (s *source[C, E]) Collect(ctx context.Context) []string {
	inv := s.collector.Collect(ctx, s.tenants)

	s.mu.Lock()
	s.inv = inv
	s.mu.Unlock()

	return inv.FailedTenants()
}

func (s *source[C, E]) Checks(cfg check.Config) ([]check.Check, error) {
	s.mu.RLock()
	inv := s.inv
	s.mu.RUnlock()

	return s.build(inv, cfg)
}

// Auditor wires sources, checks, filtering and output.
type Auditor struct {
	sources       []Source
	config        check.Config
	filter        *filter.Filter
	emitter       emitter.Emitter
	logger        zerolog.Logger
	runnerOptions []check.Option
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithFilter drops checks and findings the filter rejects.
func WithFilter(f *filter.Filter) Option {
	return func(a *Auditor) { a.filter = f }
}

// WithEmitter sets where reports go.
func WithEmitter(e emitter.Emitter) Option {
	return func(a *Auditor) { a.emitter = e }
}

// WithLogger overrides the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// WithRunnerOptions configures the check runner.
func WithRunnerOptions(opts ...check.Option) Option {
	return func(a *Auditor) { a.runnerOptions = append(a.runnerOptions, opts...) }
}

// New creates an auditor.
func New(sources []Source, cfg check.Config, opts ...Option) *Auditor {
	a := &Auditor{
		sources: sources,
		config:  cfg,
		filter:  filter.New(nil, nil, nil, nil),
		emitter: emitter.NewMultiEmitter(),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Checks returns the enabled checks bound to the latest inventories.
func (a *Auditor) Checks() ([]check.Check, error) {
	var out []check.Check
	for _, s := range a.sources {
		checks, err := s.Checks(a.config)
		if err != nil {
			return nil, fmt.Errorf("build %s checks: %w", s.Name(), err)
		}
		for _, c := range checks {
			if a.filter.ShouldRunCheck(c.ID()) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Run collects every source in turn, evaluates the checks and emits the
// report. Tenant and check failures are part of the report, not errors.
func (a *Auditor) Run(ctx context.Context) (finding.Report, error) {
	start := time.Now()
	report := finding.Report{
		Findings:      []finding.Finding{},
		CheckErrors:   []finding.CheckError{},
		FailedTenants: map[string][]string{},
	}

	for _, s := range a.sources {
		failed := s.Collect(ctx)
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("collect %s: %w", s.Name(), err)
		}
		if len(failed) > 0 {
			report.FailedTenants[s.Name()] = failed
			a.logger.Warn().Str("collector", s.Name()).Strs("tenants", failed).Msg("tenants not audited")
		}
	}

	checks, err := a.Checks()
	if err != nil {
		return report, err
	}

	result := check.NewRunner(checks, a.runnerOptions...).Run(ctx)
	report.Findings = a.filter.FilterFindings(result.Findings)
	for _, e := range result.Errors {
		report.CheckErrors = append(report.CheckErrors, finding.CheckError{
			CheckID: e.CheckID,
			Message: e.Err.Error(),
		})
	}
	report.Duration = time.Since(start)

	if err := a.emitter.Emit(ctx, report); err != nil {
		return report, fmt.Errorf("emit report: %w", err)
	}
	return report, nil
}

// Close closes the emitter.
func (a *Auditor) Close() error {
	return a.emitter.Close()
}
