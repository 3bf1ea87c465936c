// Package config handles TOML and YAML configuration for Vigil.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Azure     AzureConfig     `toml:"azure" yaml:"azure"`
	AWS       AWSConfig       `toml:"aws" yaml:"aws"`
	Collector CollectorConfig `toml:"collector" yaml:"collector"`
	Audit     AuditConfig     `toml:"audit" yaml:"audit"`
	Filter    FilterConfig    `toml:"filter" yaml:"filter"`
	OTEL      OTELConfig      `toml:"otel" yaml:"otel"`
	Scanner   ScannerConfig   `toml:"scanner" yaml:"scanner"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// AzureConfig holds Azure provider settings. With no subscriptions, the
// subscription of the Azure CLI profile is used.
type AzureConfig struct {
	Enabled       bool     `toml:"enabled" yaml:"enabled"`
	Subscriptions []string `toml:"subscriptions" yaml:"subscriptions"`
	Profile       string   `toml:"profile" yaml:"profile"`
	ProfilePath   string   `toml:"profile_path" yaml:"profile_path"`
	Tenant        string   `toml:"tenant" yaml:"tenant"`
}

// AWSConfig holds AWS provider settings. Each profile is one tenant.
type AWSConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Regions  []string `toml:"regions" yaml:"regions"`
	Profiles []string `toml:"profiles" yaml:"profiles"`
}

// CollectorConfig holds inventory collection settings.
type CollectorConfig struct {
	Concurrency int `toml:"concurrency" yaml:"concurrency"`
}

// AuditConfig holds options read by checks.
type AuditConfig struct {
	SecretsIgnorePatterns         []string `toml:"secrets_ignore_patterns" yaml:"secrets_ignore_patterns"`
	RecommendedMinimalTLSVersions []string `toml:"recommended_minimal_tls_versions" yaml:"recommended_minimal_tls_versions"`
}

// FilterConfig selects which checks run and which findings are reported.
type FilterConfig struct {
	ExcludeChecks []string          `toml:"exclude_checks" yaml:"exclude_checks"`
	Status        []string          `toml:"status" yaml:"status"`
	IncludeTags   map[string]string `toml:"include_tags" yaml:"include_tags"`
	ExcludeTags   map[string]string `toml:"exclude_tags" yaml:"exclude_tags"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// ScannerConfig holds audit loop settings.
type ScannerConfig struct {
	IntervalStr string        `toml:"interval" yaml:"interval"`
	Interval    time.Duration `toml:"-" yaml:"-"`
	OneShot     bool          `toml:"one_shot" yaml:"one_shot"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Load reads and parses a config file. The extension selects the format:
// .yaml and .yml are YAML, anything else is TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a config with defaults applied, for running without a file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseInterval(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "vigil"
	}
	if cfg.Scanner.IntervalStr == "" {
		cfg.Scanner.IntervalStr = "5m"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Collector.Concurrency == 0 {
		cfg.Collector.Concurrency = 8
	}
	if len(cfg.Audit.RecommendedMinimalTLSVersions) == 0 {
		cfg.Audit.RecommendedMinimalTLSVersions = []string{"1.2", "1.3"}
	}
	if cfg.AWS.Enabled && len(cfg.AWS.Profiles) == 0 {
		cfg.AWS.Profiles = []string{"default"}
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Scanner.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Scanner.IntervalStr, err)
	}
	cfg.Scanner.Interval = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if !c.Azure.Enabled && !c.AWS.Enabled {
		return fmt.Errorf("at least one of azure or aws must be enabled")
	}
	if c.Collector.Concurrency < 1 {
		return fmt.Errorf("collector: concurrency must be positive (got %d)", c.Collector.Concurrency)
	}
	if c.Scanner.Interval <= 0 && !c.Scanner.OneShot {
		return fmt.Errorf("scanner: interval must be positive")
	}
	for _, st := range c.Filter.Status {
		if st != "PASS" && st != "FAIL" {
			return fmt.Errorf("filter: unknown status %q (want PASS or FAIL)", st)
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
