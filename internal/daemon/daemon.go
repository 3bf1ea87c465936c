// Package daemon runs audits on a fixed interval.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunFunc performs one audit.
type RunFunc func(ctx context.Context) error

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	// OneShot runs once and returns the run error.
	OneShot bool
	Run     RunFunc
	Logger  *zerolog.Logger
	Metrics *DaemonMetrics
}

// Daemon manages the audit loop
type Daemon struct {
	interval  time.Duration
	oneShot   bool
	run       RunFunc
	logger    zerolog.Logger
	metrics   *DaemonMetrics
	startTime time.Time
	runCount  atomic.Int64

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config) (*Daemon, error) {
	if config.Run == nil {
		return nil, errors.New("daemon: run func is required")
	}
	if config.Interval <= 0 && !config.OneShot {
		return nil, errors.New("daemon: interval must be positive")
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Daemon{
		interval:  config.Interval,
		oneShot:   config.OneShot,
		run:       config.Run,
		logger:    logger,
		metrics:   config.Metrics,
		startTime: time.Now(),
	}, nil
}

// Start runs an audit immediately, then once per interval until ctx is done.
// In one-shot mode it returns after the first audit with its error.
func (d *Daemon) Start(ctx context.Context) error {
	err := d.runOnce(ctx)
	if d.oneShot {
		return err
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) error {
	start := time.Now()
	err := d.run(ctx)
	elapsed := time.Since(start)
	d.runCount.Add(1)

	status := "success"
	if err != nil {
		status = "error"
		d.logger.Error().Err(err).Dur("duration", elapsed).Msg("audit run failed")
	} else {
		d.logger.Debug().Dur("duration", elapsed).Msg("audit run complete")
	}

	if d.metrics != nil {
		d.metrics.RecordRun(ctx, status)
		d.metrics.RecordRunDuration(ctx, elapsed.Seconds(), status)
	}

	d.mu.Lock()
	d.lastRun = start
	d.lastErr = err
	d.mu.Unlock()

	return err
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime_seconds"`
	Runs      int64     `json:"runs"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Health returns daemon health status. The daemon is "starting" until the
// first audit finishes and "degraded" while the latest audit failed.
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := HealthStatus{
		Status:  "healthy",
		Uptime:  int64(time.Since(d.startTime).Seconds()),
		Runs:    d.runCount.Load(),
		LastRun: d.lastRun,
	}
	switch {
	case d.lastRun.IsZero():
		h.Status = "starting"
	case d.lastErr != nil:
		h.Status = "degraded"
		h.LastError = d.lastErr.Error()
	}
	return h
}

// HealthHandler serves Health as JSON. It answers 503 while degraded.
func (d *Daemon) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h := d.Health()
		w.Header().Set("Content-Type", "application/json")
		if h.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	})
}

// RunCount returns total audits run
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}
