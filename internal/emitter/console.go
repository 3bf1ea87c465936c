package emitter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/yairfalse/vigil/pkg/finding"
)

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	warnLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	checkName = color.New(color.FgCyan).SprintFunc()
)

// ConsoleEmitter prints findings and a per-check summary for humans.
type ConsoleEmitter struct {
	w io.Writer
}

// NewConsoleEmitter creates a console emitter writing to w.
func NewConsoleEmitter(w io.Writer) *ConsoleEmitter {
	return &ConsoleEmitter{w: w}
}

// Emit prints the report.
func (e *ConsoleEmitter) Emit(_ context.Context, report finding.Report) error {
	var b strings.Builder

	for _, f := range report.Findings {
		label := passLabel(string(f.Status))
		if f.Status == finding.StatusFail {
			label = failLabel(string(f.Status))
		}
		fmt.Fprintf(&b, "%s %s %s\n", label, checkName(f.CheckID), f.StatusExtended)
	}

	for _, ce := range report.CheckErrors {
		fmt.Fprintf(&b, "%s %s %s\n", warnLabel("ERROR"), checkName(ce.CheckID), ce.Message)
	}

	collectors := make([]string, 0, len(report.FailedTenants))
	for name := range report.FailedTenants {
		collectors = append(collectors, name)
	}
	sort.Strings(collectors)
	for _, name := range collectors {
		for _, tenant := range report.FailedTenants[name] {
			fmt.Fprintf(&b, "%s %s tenant %s skipped: collection failed\n", warnLabel("SKIP"), checkName(name), tenant)
		}
	}

	summary := finding.Summarize(report.Findings)
	checks := make([]string, 0, len(summary))
	for id := range summary {
		checks = append(checks, id)
	}
	sort.Strings(checks)

	b.WriteString("\n")
	for _, id := range checks {
		s := summary[id]
		fmt.Fprintf(&b, "%-50s %s %d  %s %d\n", id, passLabel("PASS"), s.Pass, failLabel("FAIL"), s.Fail)
	}
	fmt.Fprintf(&b, "\n%d findings in %s\n", len(report.Findings), report.Duration.Round(time.Millisecond))

	_, err := io.WriteString(e.w, b.String())
	return err
}

// Close is a no-op.
func (e *ConsoleEmitter) Close() error {
	return nil
}
