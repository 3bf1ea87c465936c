// Package azure collects the Azure SQL server inventory.
package azure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"
	"gopkg.in/ini.v1"
)

// DefaultProfile is the section read from the Azure CLI config file.
const DefaultProfile = "default"

// Profile is the subset of an Azure CLI profile the collector needs.
type Profile struct {
	Subscription string
	Tenant       string
}

// DefaultProfilePath returns ~/.azure/config.
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".azure", "config"), nil
}

// LoadProfile reads one section of an Azure CLI config file.
func LoadProfile(path, profile string) (Profile, error) {
	if profile == "" {
		profile = DefaultProfile
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return Profile{}, fmt.Errorf("load azure config: %w", err)
	}

	section, err := cfg.GetSection(profile)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %s not found in azure config: %w", profile, err)
	}

	p := Profile{
		Subscription: section.Key("subscription").String(),
		Tenant:       section.Key("tenant").String(),
	}
	if p.Subscription == "" {
		return Profile{}, fmt.Errorf("subscription not found in profile %s", profile)
	}
	return p, nil
}

// NewCredential returns the Azure CLI credential pinned to tenantID, or the
// default credential chain when tenantID is empty.
func NewCredential(tenantID string) (azcore.TokenCredential, error) {
	if tenantID == "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create default credential: %w", err)
		}
		return cred, nil
	}

	cred, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("create azure cli credential: %w", err)
	}
	return cred, nil
}

// ClientSet builds the SQL clients of a subscription from one credential.
type ClientSet struct {
	cred azcore.TokenCredential
	opts *arm.ClientOptions
}

// NewClientSet creates a client set. opts may be nil.
func NewClientSet(cred azcore.TokenCredential, opts *arm.ClientOptions) *ClientSet {
	return &ClientSet{cred: cred, opts: opts}
}

// Client returns the SQL clients scoped to subscription.
func (c *ClientSet) Client(_ context.Context, subscription string) (*SQLClients, error) {
	servers, err := armsql.NewServersClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create servers client: %w", err)
	}
	auditing, err := armsql.NewServerBlobAuditingPoliciesClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create auditing policies client: %w", err)
	}
	firewall, err := armsql.NewFirewallRulesClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create firewall rules client: %w", err)
	}
	protectors, err := armsql.NewEncryptionProtectorsClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create encryption protectors client: %w", err)
	}
	assessments, err := armsql.NewServerVulnerabilityAssessmentsClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create vulnerability assessments client: %w", err)
	}
	alerts, err := armsql.NewServerSecurityAlertPoliciesClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create security alert policies client: %w", err)
	}
	databases, err := armsql.NewDatabasesClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create databases client: %w", err)
	}
	tde, err := armsql.NewTransparentDataEncryptionsClient(subscription, c.cred, c.opts)
	if err != nil {
		return nil, fmt.Errorf("create transparent data encryptions client: %w", err)
	}

	return &SQLClients{
		Servers:                    servers,
		AuditingPolicies:           auditing,
		FirewallRules:              firewall,
		EncryptionProtectors:       protectors,
		VulnerabilityAssessments:   assessments,
		SecurityAlertPolicies:      alerts,
		Databases:                  databases,
		TransparentDataEncryptions: tde,
	}, nil
}
