// Package collector fans resource collection out across tenants and
// isolates each tenant's failures from the others.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of tenants collected at once.
const DefaultConcurrency = 8

// ClientSet yields an authenticated API handle for one tenant.
type ClientSet[C any] interface {
	Client(ctx context.Context, tenant string) (C, error)
}

// CollectFunc lists and decorates every resource of one type in one tenant.
// Returning an error discards everything collected for that tenant.
// zerolog.Ctx(ctx) yields the collector logger tagged with the tenant.
type CollectFunc[C, E any] func(ctx context.Context, tenant string, client C) ([]E, error)

// Recorder receives collection metrics. telemetry.Provider implements it.
type Recorder interface {
	RecordCollectDuration(ctx context.Context, collector, tenant string, d time.Duration)
	RecordResourceCount(ctx context.Context, collector, tenant string, count int)
	RecordTenantFailure(ctx context.Context, collector, tenant string)
}

// Collector collects one resource type across tenants.
type Collector[C, E any] struct {
	name        string
	clients     ClientSet[C]
	collect     CollectFunc[C, E]
	concurrency int
	logger      zerolog.Logger
	recorder    Recorder
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	concurrency int
	logger      *zerolog.Logger
	recorder    Recorder
}

// WithConcurrency bounds how many tenants are collected in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger overrides the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// New creates a collector named after the resource type it gathers.
func New[C, E any](name string, clients ClientSet[C], fn CollectFunc[C, E], opts ...Option) *Collector[C, E] {
	o := options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}

	return &Collector[C, E]{
		name:        name,
		clients:     clients,
		collect:     fn,
		concurrency: o.concurrency,
		logger:      logger.With().Str("collector", name).Logger(),
		recorder:    o.recorder,
	}
}

// Name returns the collector identifier (e.g. "sqlserver").
func (c *Collector[C, E]) Name() string {
	return c.name
}

type tenantResult[E any] struct {
	tenant    string
	resources []E
	err       error
}

// Collect gathers resources for every tenant. Each tenant runs in its own
// task and owns its own slice; results are merged once all tasks finish.
// A failing tenant ends up with an empty list and an entry in Errors.
func (c *Collector[C, E]) Collect(ctx context.Context, tenants []string) *Inventory[E] {
	tenants = dedupe(tenants)
	results := make([]tenantResult[E], len(tenants))

	// errgroup is used only for the limit: tasks never return an error, so
	// one tenant can not cancel another.
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, tenant := range tenants {
		g.Go(func() error {
			resources, err := c.collectTenant(ctx, tenant)
			results[i] = tenantResult[E]{tenant: tenant, resources: resources, err: err}
			return nil
		})
	}
	_ = g.Wait()

	inv := NewInventory[E]()
	for _, r := range results {
		inv.set(r.tenant, r.resources, r.err)
	}

	c.logger.Debug().
		Int("tenants", len(tenants)).
		Int("failed", len(inv.Errors)).
		Int("resources", inv.Count()).
		Msg("collection complete")

	return inv
}

// collectTenant is the isolation boundary for one tenant. Errors and panics
// from the client set or the collect function stop here.
func (c *Collector[C, E]) collectTenant(ctx context.Context, tenant string) (resources []E, err error) {
	ctx, span := otel.Tracer("vigil/collector").Start(ctx, "collect "+c.name)
	span.SetAttributes(attribute.String("tenant", tenant))
	ctx = c.logger.With().Str("tenant", tenant).Logger().WithContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			resources = nil
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Error().Err(err).Str("tenant", tenant).Msg("tenant collection failed")
			if c.recorder != nil {
				c.recorder.RecordTenantFailure(ctx, c.name, tenant)
			}
		} else if c.recorder != nil {
			c.recorder.RecordResourceCount(ctx, c.name, tenant, len(resources))
		}
		if c.recorder != nil {
			c.recorder.RecordCollectDuration(ctx, c.name, tenant, time.Since(start))
		}
		span.End()
	}()

	client, err := c.clients.Client(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	resources, err = c.collect(ctx, tenant, client)
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// RunAll runs independent sub-queries of one resource concurrently and
// waits for all of them. The first error cancels the others and is returned.
// A panicking sub-query is reported as an error so the tenant boundary sees it.
func RunAll(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(gctx)
		})
	}
	return g.Wait()
}

func dedupe(tenants []string) []string {
	seen := make(map[string]bool, len(tenants))
	out := make([]string, 0, len(tenants))
	for _, t := range tenants {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Funcs adapts a plain function to ClientSet.
type Funcs[C any] func(ctx context.Context, tenant string) (C, error)

// Client calls f.
func (f Funcs[C]) Client(ctx context.Context, tenant string) (C, error) {
	return f(ctx, tenant)
}
