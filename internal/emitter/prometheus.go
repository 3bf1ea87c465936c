package emitter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/vigil/pkg/finding"
)

// PrometheusEmitter exposes audit results as OTEL metrics, scraped in
// Prometheus format through the exporter registered on the meter provider.
type PrometheusEmitter struct {
	meter  metric.Meter
	logger zerolog.Logger

	// Metrics
	findingInfo        metric.Int64ObservableGauge
	checkFailing       metric.Int64ObservableGauge
	auditDuration      metric.Float64Histogram
	failedTenantsTotal metric.Int64Counter
	checkErrorsTotal   metric.Int64Counter
	statusChangesTotal metric.Int64Counter

	// State for observable gauges
	mu       sync.RWMutex
	findings []finding.Finding

	diffTracker *DiffTracker
}

// PrometheusOption configures a PrometheusEmitter.
type PrometheusOption func(*PrometheusEmitter)

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) PrometheusOption {
	return func(e *PrometheusEmitter) { e.meter = m }
}

// WithPrometheusLogger sets the logger used for change events.
func WithPrometheusLogger(l zerolog.Logger) PrometheusOption {
	return func(e *PrometheusEmitter) { e.logger = l }
}

// NewPrometheusEmitter creates a Prometheus emitter.
func NewPrometheusEmitter(opts ...PrometheusOption) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter:       otel.Meter("vigil"),
		logger:      log.Logger,
		findings:    make([]finding.Finding, 0),
		diffTracker: NewDiffTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.findingInfo, err = e.meter.Int64ObservableGauge(
		"vigil_finding_info",
		metric.WithDescription("Latest verdict per check and resource (1 = FAIL, 0 = PASS)"),
		metric.WithInt64Callback(e.observeFindings),
	)
	if err != nil {
		return fmt.Errorf("create finding_info gauge: %w", err)
	}

	e.checkFailing, err = e.meter.Int64ObservableGauge(
		"vigil_check_failing_resources",
		metric.WithDescription("Number of failing resources per check"),
		metric.WithInt64Callback(e.observeFailing),
	)
	if err != nil {
		return fmt.Errorf("create check_failing gauge: %w", err)
	}

	e.auditDuration, err = e.meter.Float64Histogram(
		"vigil_audit_duration_seconds",
		metric.WithDescription("Time taken by one audit run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create audit_duration histogram: %w", err)
	}

	e.failedTenantsTotal, err = e.meter.Int64Counter(
		"vigil_audit_failed_tenants_total",
		metric.WithDescription("Total tenants skipped by audit runs"),
	)
	if err != nil {
		return fmt.Errorf("create failed_tenants counter: %w", err)
	}

	e.checkErrorsTotal, err = e.meter.Int64Counter(
		"vigil_audit_check_errors_total",
		metric.WithDescription("Total checks that could not be evaluated"),
	)
	if err != nil {
		return fmt.Errorf("create check_errors counter: %w", err)
	}

	e.statusChangesTotal, err = e.meter.Int64Counter(
		"vigil_finding_changes_total",
		metric.WithDescription("Total finding changes detected between runs"),
	)
	if err != nil {
		return fmt.Errorf("create finding_changes counter: %w", err)
	}

	return nil
}

// Emit records the report as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, report finding.Report) error {
	e.auditDuration.Record(ctx, report.Duration.Seconds())

	var failed []string
	for collectorName, tenants := range report.FailedTenants {
		e.failedTenantsTotal.Add(ctx, int64(len(tenants)), metric.WithAttributes(
			attribute.String("collector", collectorName),
		))
		failed = append(failed, tenants...)
	}
	for _, ce := range report.CheckErrors {
		e.checkErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("check_id", ce.CheckID),
		))
	}

	current := e.diffTracker.Carry(report.Findings, failed)
	e.emitDiffs(ctx, current)

	e.mu.Lock()
	e.findings = current
	e.mu.Unlock()

	e.diffTracker.Update(current)

	return nil
}

func (e *PrometheusEmitter) emitDiffs(ctx context.Context, current []finding.Finding) {
	changes := e.diffTracker.ComputeDiff(current)
	if changes == nil {
		// First run, baseline established
		return
	}

	for _, c := range changes {
		e.statusChangesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("check_id", c.Finding.CheckID),
			attribute.String("change_type", string(c.Type)),
		))

		ev := e.logger.Info().
			Str("check_id", c.Finding.CheckID).
			Str("tenant", c.Finding.Tenant).
			Str("resource_id", c.Finding.ResourceID).
			Str("change", string(c.Type)).
			Str("status", string(c.Finding.Status))
		if c.Previous != nil && c.Type == finding.ChangeStatus {
			ev = ev.Str("status.from", string(c.Previous.Status))
		}
		ev.Msg("finding changed")
	}
}

func (e *PrometheusEmitter) observeFindings(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, f := range e.findings {
		var v int64
		if f.Status == finding.StatusFail {
			v = 1
		}
		attrs := []attribute.KeyValue{
			attribute.String("check_id", f.CheckID),
			attribute.String("tenant", f.Tenant),
			attribute.String("region", f.Region),
			attribute.String("resource_id", f.ResourceID),
		}
		if f.ResourceName != "" {
			attrs = append(attrs, attribute.String("name", f.ResourceName))
		}
		o.Observe(v, metric.WithAttributes(attrs...))
	}

	return nil
}

func (e *PrometheusEmitter) observeFailing(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	summary := finding.Summarize(e.findings)
	e.mu.RUnlock()

	checks := make([]string, 0, len(summary))
	for id := range summary {
		checks = append(checks, id)
	}
	sort.Strings(checks)

	for _, id := range checks {
		o.Observe(int64(summary[id].Fail), metric.WithAttributes(attribute.String("check_id", id)))
	}
	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
