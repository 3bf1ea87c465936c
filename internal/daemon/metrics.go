package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
}

// NewDaemonMetrics creates daemon metrics on the global meter provider
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return newDaemonMetrics(otel.Meter("vigil.daemon"))
}

func newDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	runs, err := meter.Int64Counter(
		"vigil.daemon.runs",
		metric.WithDescription("Number of audit runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"vigil.daemon.run.duration",
		metric.WithDescription("Duration of audit runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		runs:        runs,
		runDuration: runDuration,
	}, nil
}

// RecordRun records an audit run with status
func (m *DaemonMetrics) RecordRun(ctx context.Context, status string) {
	m.runs.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordRunDuration records audit run duration
func (m *DaemonMetrics) RecordRunDuration(ctx context.Context, durationSeconds float64, status string) {
	m.runDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}
