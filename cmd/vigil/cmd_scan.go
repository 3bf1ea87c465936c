package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/yairfalse/vigil/internal/audit"
	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/daemon"
	"github.com/yairfalse/vigil/internal/emitter"
	"github.com/yairfalse/vigil/internal/telemetry"
	"github.com/yairfalse/vigil/pkg/finding"
)

// exitCodeFailingFindings is returned by one-shot scans with FAIL findings.
const exitCodeFailingFindings = 3

var (
	scanConfigPath      string
	scanDebug           bool
	scanOnce            bool
	scanMetricsAddr     string
	scanStatus          []string
	scanOutput          string
	scanIgnoreExitCode3 bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Collect inventories and run checks",
	Long: `Collect the inventory of every configured tenant and run all checks.

By default Vigil runs as a daemon: it audits immediately, then once per
scanner interval, and serves Prometheus metrics and a health endpoint.
With --once it audits a single time and exits with code 3 when any
finding fails.`,
	Example: `  vigil scan --config vigil.toml                  # Daemon mode
  vigil scan --config vigil.yaml --once           # Single audit
  vigil scan --once --status FAIL --output json   # Failing findings as JSON lines
  vigil scan --metrics :2112                      # Custom metrics address`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanConfigPath, "config", "vigil.toml", "Config file (TOML or YAML)")
	scanCmd.Flags().BoolVar(&scanDebug, "debug", false, "Enable debug logging")
	scanCmd.Flags().BoolVar(&scanOnce, "once", false, "Run once and exit")
	scanCmd.Flags().StringVar(&scanMetricsAddr, "metrics", ":9090", "Metrics server address")
	scanCmd.Flags().StringSliceVar(&scanStatus, "status", nil, "Only report findings with these statuses (PASS, FAIL)")
	scanCmd.Flags().StringVar(&scanOutput, "output", "console", "Output format (console, json, log)")
	scanCmd.Flags().BoolVar(&scanIgnoreExitCode3, "ignore-exit-code-3", false, "Exit 0 on failing findings in --once mode")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(scanConfigPath)
	if err != nil {
		return err
	}
	if scanOnce {
		cfg.Scanner.OneShot = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := setupLogging(cfg.Log.Level, scanDebug, os.Stderr); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// OTEL metrics with the Prometheus exporter alongside OTLP
	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider, err := telemetry.NewProvider(ctx, cfg.OTEL, promExporter)
	if err != nil {
		return fmt.Errorf("create telemetry provider: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	sources, err := buildSources(cfg, provider, log.Logger)
	if err != nil {
		return err
	}
	f, err := buildFilter(cfg.Filter, scanStatus)
	if err != nil {
		return err
	}
	out, err := buildOutput(scanOutput, log.Logger)
	if err != nil {
		return err
	}
	emitters := []emitter.Emitter{out}
	if !cfg.Scanner.OneShot {
		promEmitter, err := emitter.NewPrometheusEmitter()
		if err != nil {
			return fmt.Errorf("create prometheus emitter: %w", err)
		}
		emitters = append(emitters, promEmitter)
	}

	auditor := audit.New(sources, checkConfig(cfg),
		audit.WithFilter(f),
		audit.WithEmitter(emitter.NewMultiEmitter(emitters...)),
		audit.WithRunnerOptions(check.WithRecorder(provider)),
	)
	defer func() { _ = auditor.Close() }()

	var failing atomic.Int64
	daemonMetrics, err := daemon.NewDaemonMetrics()
	if err != nil {
		return fmt.Errorf("create daemon metrics: %w", err)
	}
	d, err := daemon.NewDaemon(daemon.Config{
		Interval: cfg.Scanner.Interval,
		OneShot:  cfg.Scanner.OneShot,
		Metrics:  daemonMetrics,
		Run: func(ctx context.Context) error {
			report, err := auditor.Run(ctx)
			failing.Store(int64(countFailing(report)))
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	log.Info().
		Int("sources", len(sources)).
		Dur("interval", cfg.Scanner.Interval).
		Bool("one_shot", cfg.Scanner.OneShot).
		Msg("vigil starting")

	if cfg.Scanner.OneShot {
		if err := d.Start(ctx); err != nil {
			return err
		}
		if n := failing.Load(); n > 0 && !scanIgnoreExitCode3 {
			return &exitError{code: exitCodeFailingFindings, msg: fmt.Sprintf("%d failing findings", n)}
		}
		return nil
	}

	return serve(ctx, d, scanMetricsAddr)
}

// serve runs the daemon next to the metrics server until a signal arrives.
func serve(ctx context.Context, d *daemon.Daemon, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", d.HealthHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	var g run.Group
	{
		daemonCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(daemonCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			log.Info().Str("addr", addr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func countFailing(report finding.Report) int {
	n := 0
	for _, f := range report.Findings {
		if f.Status == finding.StatusFail {
			n++
		}
	}
	return n
}
