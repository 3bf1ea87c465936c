package check

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/vigil/pkg/finding"
)

// DefaultConcurrency is the number of checks evaluated at once.
const DefaultConcurrency = 4

// Recorder receives check metrics. telemetry.Provider implements it.
type Recorder interface {
	RecordFinding(ctx context.Context, checkID string, status finding.Status)
	RecordCheckError(ctx context.Context, checkID string)
}

// Report is the outcome of one run over all checks.
type Report struct {
	Findings []finding.Finding
	Errors   []*Error
}

// Runner evaluates checks concurrently.
type Runner struct {
	checks      []Check
	concurrency int
	logger      zerolog.Logger
	recorder    Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds how many checks run in parallel.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithLogger overrides the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a runner over checks.
func NewRunner(checks []Check, opts ...Option) *Runner {
	r := &Runner{
		checks:      checks,
		concurrency: DefaultConcurrency,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r
}

// Checks returns the checks in registration order.
func (r *Runner) Checks() []Check {
	return r.checks
}

type checkResult struct {
	findings []finding.Finding
	err      *Error
}

// Run evaluates every check. Findings are grouped by check in registration
// order and keep the order each check produced them in.
func (r *Runner) Run(ctx context.Context) *Report {
	results := make([]checkResult, len(r.checks))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range r.checks {
		g.Go(func() error {
			results[i] = r.evaluate(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Findings: []finding.Finding{}}
	for _, res := range results {
		if res.err != nil {
			report.Errors = append(report.Errors, res.err)
			continue
		}
		report.Findings = append(report.Findings, res.findings...)
	}
	return report
}

func (r *Runner) evaluate(ctx context.Context, c Check) (res checkResult) {
	start := time.Now()
	logger := r.logger.With().Str("check", c.ID()).Logger()

	defer func() {
		if p := recover(); p != nil {
			res = checkResult{err: &Error{CheckID: c.ID(), Err: fmt.Errorf("panic: %v", p)}}
		}
		if res.err != nil {
			logger.Error().Err(res.err.Err).Msg("check failed")
			if r.recorder != nil {
				r.recorder.RecordCheckError(ctx, c.ID())
			}
			return
		}
		if r.recorder != nil {
			for _, f := range res.findings {
				r.recorder.RecordFinding(ctx, c.ID(), f.Status)
			}
		}
		logger.Debug().
			Int("findings", len(res.findings)).
			Dur("duration", time.Since(start)).
			Msg("check complete")
	}()

	findings, err := c.Evaluate(ctx)
	if err != nil {
		return checkResult{err: &Error{CheckID: c.ID(), Err: err}}
	}
	return checkResult{findings: findings}
}
