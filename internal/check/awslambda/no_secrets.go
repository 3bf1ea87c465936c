// Package awslambda holds checks over the Lambda inventory.
package awslambda

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/internal/plugin/aws"
	"github.com/yairfalse/vigil/internal/secrets"
	"github.com/yairfalse/vigil/pkg/finding"
)

// FunctionNoSecretsInVariablesID identifies the check.
const FunctionNoSecretsInVariablesID = "awslambda_function_no_secrets_in_variables"

const resourceKind = "Lambda function"

// FunctionNoSecretsInVariables fails functions whose environment variables
// look like they hold credentials. One finding per function.
type FunctionNoSecretsInVariables struct {
	check.Metadata
	inventory *collector.Inventory[aws.Function]
	matcher   *secrets.Matcher
}

// NewFunctionNoSecretsInVariables creates the check. It fails when an ignore
// pattern does not compile.
func NewFunctionNoSecretsInVariables(inv *collector.Inventory[aws.Function], cfg check.Config) (*FunctionNoSecretsInVariables, error) {
	m, err := secrets.NewMatcher(cfg.SecretsIgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("create secrets matcher: %w", err)
	}

	return &FunctionNoSecretsInVariables{
		Metadata: check.Metadata{
			CheckID:     FunctionNoSecretsInVariablesID,
			Service:     "awslambda",
			Severity:    "critical",
			Description: "Find secrets in Lambda function environment variables.",
		},
		inventory: inv,
		matcher:   m,
	}, nil
}

// All returns every Lambda check bound to inv.
func All(inv *collector.Inventory[aws.Function], cfg check.Config) ([]check.Check, error) {
	noSecrets, err := NewFunctionNoSecretsInVariables(inv, cfg)
	if err != nil {
		return nil, err
	}
	return []check.Check{noSecrets}, nil
}

// Evaluate implements check.Check.
func (c *FunctionNoSecretsInVariables) Evaluate(ctx context.Context) ([]finding.Finding, error) {
	findings := []finding.Finding{}

	for _, tenant := range c.inventory.Tenants() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, fn := range c.inventory.Resources[tenant] {
			findings = append(findings, c.evaluateFunction(tenant, fn))
		}
	}

	return findings, nil
}

func (c *FunctionNoSecretsInVariables) evaluateFunction(tenant string, fn aws.Function) finding.Finding {
	account := fn.AccountID
	if account == "" {
		account = tenant
	}
	tags := fn.Tags
	if tags == nil {
		tags = []finding.Tag{}
	}

	f := finding.Finding{
		CheckID:        c.CheckID,
		Tenant:         account,
		Scope:          tenant,
		Region:         fn.Region,
		ResourceID:     fn.Name,
		ResourceARN:    fn.ARN,
		ResourceName:   fn.Name,
		Status:         finding.StatusPass,
		StatusExtended: fmt.Sprintf("No secrets found in %s %s variables.", resourceKind, fn.Name),
		ResourceTags:   tags,
	}

	if len(fn.Environment) == 0 {
		return f
	}

	labels := c.matcher.ScanVariables(fn.Environment)
	if len(labels) > 0 {
		f.Status = finding.StatusFail
		f.StatusExtended = fmt.Sprintf("Potential secret found in %s %s variables -> %s.",
			resourceKind, fn.Name, strings.Join(labels, ", "))
	}

	return f
}
