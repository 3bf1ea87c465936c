// Package telemetry provides OpenTelemetry instrumentation for Vigil.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/internal/config"
	"github.com/yairfalse/vigil/pkg/finding"
)

// Provider wraps OTEL tracer and meter providers. It records collector and
// check metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	collectDuration metric.Float64Histogram
	resourceCount   metric.Int64Counter
	tenantFailures  metric.Int64Counter
	findings        metric.Int64Counter
	checkErrors     metric.Int64Counter
}

// NewProvider creates a new telemetry provider. Extra readers, such as the
// Prometheus exporter, are attached to the meter provider alongside OTLP.
func NewProvider(ctx context.Context, cfg config.OTELConfig, readers ...sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, readers); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("vigil")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("vigil")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.collectDuration, err = p.meter.Float64Histogram(
		"vigil_collect_duration_seconds",
		metric.WithDescription("Duration of per-tenant inventory collection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create collect_duration: %w", err)
	}

	p.resourceCount, err = p.meter.Int64Counter(
		"vigil_resources_collected_total",
		metric.WithDescription("Total resources collected"),
	)
	if err != nil {
		return fmt.Errorf("create resource_count: %w", err)
	}

	p.tenantFailures, err = p.meter.Int64Counter(
		"vigil_tenant_failures_total",
		metric.WithDescription("Total tenants whose collection failed"),
	)
	if err != nil {
		return fmt.Errorf("create tenant_failures: %w", err)
	}

	p.findings, err = p.meter.Int64Counter(
		"vigil_findings_total",
		metric.WithDescription("Total findings produced by checks"),
	)
	if err != nil {
		return fmt.Errorf("create findings: %w", err)
	}

	p.checkErrors, err = p.meter.Int64Counter(
		"vigil_check_errors_total",
		metric.WithDescription("Total check evaluation errors"),
	)
	if err != nil {
		return fmt.Errorf("create check_errors: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordCollectDuration records how long one tenant took to collect.
func (p *Provider) RecordCollectDuration(ctx context.Context, collector, tenant string, d time.Duration) {
	p.collectDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("collector", collector),
		attribute.String("tenant", tenant),
	))
}

// RecordResourceCount records the number of resources collected.
func (p *Provider) RecordResourceCount(ctx context.Context, collector, tenant string, count int) {
	p.resourceCount.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("collector", collector),
		attribute.String("tenant", tenant),
	))
}

// RecordTenantFailure records a failed tenant.
func (p *Provider) RecordTenantFailure(ctx context.Context, collector, tenant string) {
	p.tenantFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collector", collector),
		attribute.String("tenant", tenant),
	))
}

// RecordFinding records one finding.
func (p *Provider) RecordFinding(ctx context.Context, checkID string, status finding.Status) {
	p.findings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check_id", checkID),
		attribute.String("status", string(status)),
	))
}

// RecordCheckError records a check that failed to evaluate.
func (p *Provider) RecordCheckError(ctx context.Context, checkID string) {
	p.checkErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check_id", checkID),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
