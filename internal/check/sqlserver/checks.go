// Package sqlserver holds checks over the Azure SQL server inventory.
package sqlserver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/yairfalse/vigil/internal/check"
	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/internal/plugin/azure"
	"github.com/yairfalse/vigil/pkg/finding"
)

// Check identifiers.
const (
	AuditingEnabledID                = "sqlserver_auditing_enabled"
	TDEEncryptionEnabledID           = "sqlserver_tde_encryption_enabled"
	VulnerabilityAssessmentEnabledID = "sqlserver_vulnerability_assessment_enabled"
	UnrestrictedInboundAccessID      = "sqlserver_unrestricted_inbound_access"
	RecommendedMinimalTLSVersionID   = "sqlserver_recommended_minimal_tls_version"
)

// Inventory is the SQL server inventory read by every check here.
type Inventory = collector.Inventory[azure.Server]

// All returns every SQL server check bound to inv.
func All(inv *Inventory, cfg check.Config) []check.Check {
	return []check.Check{
		NewAuditingEnabled(inv),
		NewTDEEncryptionEnabled(inv),
		NewVulnerabilityAssessmentEnabled(inv),
		NewUnrestrictedInboundAccess(inv),
		NewRecommendedMinimalTLSVersion(inv, cfg),
	}
}

// serverCheck iterates servers in tenant order and emits one finding per server.
type serverCheck struct {
	check.Metadata
	inventory *Inventory
	eval      func(sub string, s azure.Server, f *finding.Finding)
}

func (c *serverCheck) Evaluate(ctx context.Context) ([]finding.Finding, error) {
	findings := []finding.Finding{}
	for _, sub := range c.inventory.Tenants() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, s := range c.inventory.Resources[sub] {
			f := serverFinding(c.CheckID, sub, s)
			c.eval(sub, s, &f)
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func serverFinding(checkID, sub string, s azure.Server) finding.Finding {
	tags := s.Tags
	if tags == nil {
		tags = []finding.Tag{}
	}
	return finding.Finding{
		CheckID:      checkID,
		Tenant:       sub,
		Scope:        sub,
		Region:       s.Location,
		ResourceID:   s.ID,
		ResourceARN:  s.ID,
		ResourceName: s.Name,
		Status:       finding.StatusPass,
		ResourceTags: tags,
	}
}

// NewAuditingEnabled fails servers with no auditing policy or a disabled one.
// The two cases carry different messages.
func NewAuditingEnabled(inv *Inventory) check.Check {
	return &serverCheck{
		Metadata: check.Metadata{
			CheckID:     AuditingEnabledID,
			Service:     "sqlserver",
			Severity:    "medium",
			Description: "Ensure that auditing is enabled on SQL servers.",
		},
		inventory: inv,
		eval: func(sub string, s azure.Server, f *finding.Finding) {
			if len(s.AuditingPolicies) == 0 {
				f.Status = finding.StatusFail
				f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s does not have any auditing policy configured.", s.Name, sub)
				return
			}
			for _, p := range s.AuditingPolicies {
				if p.State != "Enabled" {
					f.Status = finding.StatusFail
					f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s has auditing policy %s disabled.", s.Name, sub, p.Name)
					return
				}
			}
			f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s has an auditing policy configured.", s.Name, sub)
		},
	}
}

// NewVulnerabilityAssessmentEnabled fails servers without a configured
// vulnerability assessment storage container.
func NewVulnerabilityAssessmentEnabled(inv *Inventory) check.Check {
	return &serverCheck{
		Metadata: check.Metadata{
			CheckID:     VulnerabilityAssessmentEnabledID,
			Service:     "sqlserver",
			Severity:    "medium",
			Description: "Ensure that vulnerability assessment is enabled on SQL servers.",
		},
		inventory: inv,
		eval: func(sub string, s azure.Server, f *finding.Finding) {
			va := s.VulnerabilityAssessment
			if va == nil || va.StorageContainerPath == "" {
				f.Status = finding.StatusFail
				f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s does not have vulnerability assessment enabled.", s.Name, sub)
				return
			}
			f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s has vulnerability assessment enabled.", s.Name, sub)
		},
	}
}

// NewUnrestrictedInboundAccess fails servers with a firewall rule open to
// the whole IPv4 range.
func NewUnrestrictedInboundAccess(inv *Inventory) check.Check {
	return &serverCheck{
		Metadata: check.Metadata{
			CheckID:     UnrestrictedInboundAccessID,
			Service:     "sqlserver",
			Severity:    "high",
			Description: "Ensure that no SQL server allows ingress from 0.0.0.0/0.",
		},
		inventory: inv,
		eval: func(sub string, s azure.Server, f *finding.Finding) {
			f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s does not have firewall rules allowing 0.0.0.0-255.255.255.255.", s.Name, sub)
			for _, r := range s.FirewallRules {
				if r.StartIPAddress == "0.0.0.0" && r.EndIPAddress == "255.255.255.255" {
					f.Status = finding.StatusFail
					f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s has firewall rules allowing 0.0.0.0-255.255.255.255.", s.Name, sub)
					return
				}
			}
		},
	}
}

// NewRecommendedMinimalTLSVersion fails servers accepting TLS versions older
// than the recommended ones.
func NewRecommendedMinimalTLSVersion(inv *Inventory, cfg check.Config) check.Check {
	recommended := cfg.RecommendedMinimalTLSVersions
	if len(recommended) == 0 {
		recommended = check.DefaultRecommendedMinimalTLSVersions
	}

	return &serverCheck{
		Metadata: check.Metadata{
			CheckID:     RecommendedMinimalTLSVersionID,
			Service:     "sqlserver",
			Severity:    "medium",
			Description: "Ensure SQL servers use a recommended minimal TLS version.",
		},
		inventory: inv,
		eval: func(sub string, s azure.Server, f *finding.Finding) {
			if slices.Contains(recommended, s.MinimalTLSVersion) {
				f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s is using TLS version %s as minimal accepted which is recommended.", s.Name, sub, s.MinimalTLSVersion)
				return
			}
			current := s.MinimalTLSVersion
			if current == "" {
				current = "None"
			}
			f.Status = finding.StatusFail
			f.StatusExtended = fmt.Sprintf("SQL Server %s from subscription %s is not using the recommended minimal TLS version. Current version: %s, recommended versions: %s.",
				s.Name, sub, current, strings.Join(recommended, ", "))
		},
	}
}

// TDEEncryptionEnabled emits one finding per database.
type TDEEncryptionEnabled struct {
	check.Metadata
	inventory *Inventory
}

// NewTDEEncryptionEnabled creates the check.
func NewTDEEncryptionEnabled(inv *Inventory) check.Check {
	return &TDEEncryptionEnabled{
		Metadata: check.Metadata{
			CheckID:     TDEEncryptionEnabledID,
			Service:     "sqlserver",
			Severity:    "medium",
			Description: "Ensure transparent data encryption is enabled on SQL databases.",
		},
		inventory: inv,
	}
}

// Evaluate implements check.Check.
func (c *TDEEncryptionEnabled) Evaluate(ctx context.Context) ([]finding.Finding, error) {
	findings := []finding.Finding{}
	for _, sub := range c.inventory.Tenants() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, s := range c.inventory.Resources[sub] {
			for _, db := range s.Databases {
				f := serverFinding(c.CheckID, sub, s)
				f.ResourceID = db.ID
				f.ResourceARN = db.ID
				f.ResourceName = db.Name
				if db.Location != "" {
					f.Region = db.Location
				}

				if db.TransparentDataEncryption.Status == "Enabled" {
					f.StatusExtended = fmt.Sprintf("Database %s from SQL Server %s from subscription %s has TDE enabled.", db.Name, s.Name, sub)
				} else {
					f.Status = finding.StatusFail
					f.StatusExtended = fmt.Sprintf("Database %s from SQL Server %s from subscription %s has TDE disabled.", db.Name, s.Name, sub)
				}
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}
