package emitter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/vigil/pkg/finding"
)

// LogEmitter writes findings as structured log events. Failing findings are
// logged at warn level, passing ones at debug.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs every finding and a summary line.
func (e *LogEmitter) Emit(_ context.Context, report finding.Report) error {
	fails := 0
	for _, f := range report.Findings {
		ev := e.logger.Debug()
		if f.Status == finding.StatusFail {
			fails++
			ev = e.logger.Warn()
		}
		ev.Str("check_id", f.CheckID).
			Str("tenant", f.Tenant).
			Str("region", f.Region).
			Str("resource_id", f.ResourceID).
			Str("status", string(f.Status)).
			Msg(f.StatusExtended)
	}

	for _, ce := range report.CheckErrors {
		e.logger.Error().Str("check_id", ce.CheckID).Str("error", ce.Message).Msg("check not evaluated")
	}

	failedTenants := zerolog.Dict()
	for name, tenants := range report.FailedTenants {
		failedTenants = failedTenants.Strs(name, tenants)
	}

	e.logger.Info().
		Int("findings", len(report.Findings)).
		Int("failing", fails).
		Int("check_errors", len(report.CheckErrors)).
		Dict("failed_tenants", failedTenants).
		Dur("duration", report.Duration).
		Msg("audit complete")

	return nil
}

// Close is a no-op.
func (e *LogEmitter) Close() error {
	return nil
}
