package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Multi-tenant cloud security auditor",
		Long: `Vigil - Multi-tenant cloud security auditor

Vigil collects an inventory of cloud resources across every configured
Azure subscription and AWS profile, then runs stateless checks against it.
A tenant that cannot be collected is reported as not audited; the others
are checked as usual.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Vigil {{.Version}} - Multi-tenant cloud security auditor
`)
}
