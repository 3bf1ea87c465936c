package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vigil/internal/audit"
	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/check/awslambda"
	"github.com/yairfalse/vigil/internal/check/sqlserver"
	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/internal/config"
	"github.com/yairfalse/vigil/internal/emitter"
	"github.com/yairfalse/vigil/internal/filter"
	"github.com/yairfalse/vigil/internal/plugin/aws"
	"github.com/yairfalse/vigil/internal/plugin/azure"
	"github.com/yairfalse/vigil/pkg/finding"
)

// setupLogging configures the global zerolog logger.
func setupLogging(level string, debug bool, out io.Writer) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	return nil
}

// loadConfig reads path, or returns defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func checkConfig(cfg *config.Config) check.Config {
	return check.Config{
		SecretsIgnorePatterns:         cfg.Audit.SecretsIgnorePatterns,
		RecommendedMinimalTLSVersions: cfg.Audit.RecommendedMinimalTLSVersions,
	}
}

// azureSubscriptions returns the configured subscriptions, falling back to
// the subscription of the Azure CLI profile.
func azureSubscriptions(cfg config.AzureConfig) (subscriptions []string, tenant string, err error) {
	if len(cfg.Subscriptions) > 0 {
		return cfg.Subscriptions, cfg.Tenant, nil
	}

	path := cfg.ProfilePath
	if path == "" {
		if path, err = azure.DefaultProfilePath(); err != nil {
			return nil, "", err
		}
	}
	p, err := azure.LoadProfile(path, cfg.Profile)
	if err != nil {
		return nil, "", err
	}

	tenant = cfg.Tenant
	if tenant == "" {
		tenant = p.Tenant
	}
	return []string{p.Subscription}, tenant, nil
}

// metricsRecorder is implemented by telemetry.Provider.
type metricsRecorder interface {
	collector.Recorder
	check.Recorder
}

// buildSources creates one source per enabled provider.
func buildSources(cfg *config.Config, rec metricsRecorder, logger zerolog.Logger) ([]audit.Source, error) {
	opts := []collector.Option{
		collector.WithConcurrency(cfg.Collector.Concurrency),
		collector.WithLogger(logger),
	}
	if rec != nil {
		opts = append(opts, collector.WithRecorder(rec))
	}

	var sources []audit.Source

	if cfg.Azure.Enabled {
		subscriptions, tenant, err := azureSubscriptions(cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("resolve azure subscriptions: %w", err)
		}
		cred, err := azure.NewCredential(tenant)
		if err != nil {
			return nil, err
		}
		c := azure.NewSQLServerCollector(azure.NewClientSet(cred, nil), opts...)
		sources = append(sources, audit.NewSource(c, subscriptions, sqlServerChecks))
	}

	if cfg.AWS.Enabled {
		profiles := cfg.AWS.Profiles
		if len(profiles) == 0 {
			profiles = []string{aws.DefaultProfile}
		}
		c := aws.NewLambdaCollector(aws.NewClientSet(cfg.AWS.Regions), opts...)
		sources = append(sources, audit.NewSource(c, profiles, awslambda.All))
	}

	return sources, nil
}

func sqlServerChecks(inv *collector.Inventory[azure.Server], cfg check.Config) ([]check.Check, error) {
	return sqlserver.All(inv, cfg), nil
}

// buildFilter creates the finding filter. statusFlag overrides the
// configured statuses when set.
func buildFilter(cfg config.FilterConfig, statusFlag []string) (*filter.Filter, error) {
	raw := cfg.Status
	if len(statusFlag) > 0 {
		raw = statusFlag
	}

	statuses := make([]finding.Status, 0, len(raw))
	for _, s := range raw {
		st := finding.Status(strings.ToUpper(s))
		if st != finding.StatusPass && st != finding.StatusFail {
			return nil, fmt.Errorf("unknown status %q (want PASS or FAIL)", s)
		}
		statuses = append(statuses, st)
	}

	return filter.New(cfg.ExcludeChecks, statuses, cfg.IncludeTags, cfg.ExcludeTags), nil
}

// buildOutput creates the emitter for an output format.
func buildOutput(format string, logger zerolog.Logger) (emitter.Emitter, error) {
	switch format {
	case "console", "":
		return emitter.NewConsoleEmitter(os.Stdout), nil
	case "json":
		return emitter.NewJSONEmitter(os.Stdout), nil
	case "log":
		return emitter.NewLogEmitter(logger), nil
	default:
		return nil, fmt.Errorf("unknown output %q (want console, json or log)", format)
	}
}
