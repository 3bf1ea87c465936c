package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yairfalse/vigil/internal/audit"
	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/check/awslambda"
	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/internal/plugin/aws"
	"github.com/yairfalse/vigil/internal/plugin/azure"
)

var checksConfigPath string

// checksCmd lists the available checks
var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List available checks",
	Long: `List every check with its service and severity.

With --config, checks excluded by the filter section are left out.`,
	RunE: runChecks,
}

func init() {
	rootCmd.AddCommand(checksCmd)

	checksCmd.Flags().StringVar(&checksConfigPath, "config", "", "Config file (TOML or YAML)")
}

func runChecks(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(checksConfigPath)
	if err != nil {
		return err
	}
	f, err := buildFilter(cfg.Filter, nil)
	if err != nil {
		return err
	}

	a := audit.New(catalog(), checkConfig(cfg), audit.WithFilter(f))
	checks, err := a.Checks()
	if err != nil {
		return err
	}
	return printChecks(cmd.OutOrStdout(), checks)
}

// catalog returns one source per provider over no tenants, so every check
// can be listed without credentials.
func catalog() []audit.Source {
	noClients := collector.Funcs[*azure.SQLClients](nil)
	noAccounts := collector.Funcs[*aws.Clients](nil)
	return []audit.Source{
		audit.NewSource(azure.NewSQLServerCollector(noClients), nil, sqlServerChecks),
		audit.NewSource(aws.NewLambdaCollector(noAccounts), nil, awslambda.All),
	}
}

var severityColors = map[string]*color.Color{
	"critical": color.New(color.FgRed, color.Bold),
	"high":     color.New(color.FgRed),
	"medium":   color.New(color.FgYellow),
	"low":      color.New(color.FgBlue),
}

func printChecks(w io.Writer, checks []check.Check) error {
	for _, c := range checks {
		info := c.Info()
		sev := info.Severity
		if col, ok := severityColors[sev]; ok {
			sev = col.Sprint(sev)
		}
		if _, err := fmt.Fprintf(w, "%-50s %-10s %-8s %s\n", c.ID(), info.Service, sev, info.Description); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%d checks\n", len(checks))
	return err
}
