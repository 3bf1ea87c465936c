package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"
)

// ServersAPI defines the SQL server operations used by the collector.
type ServersAPI interface {
	NewListPager(options *armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse]
	Get(ctx context.Context, resourceGroupName string, serverName string, options *armsql.ServersClientGetOptions) (armsql.ServersClientGetResponse, error)
}

// ServerBlobAuditingPoliciesAPI defines the auditing policy operations used by the collector.
type ServerBlobAuditingPoliciesAPI interface {
	NewListByServerPager(resourceGroupName string, serverName string, options *armsql.ServerBlobAuditingPoliciesClientListByServerOptions) *runtime.Pager[armsql.ServerBlobAuditingPoliciesClientListByServerResponse]
}

// FirewallRulesAPI defines the firewall rule operations used by the collector.
type FirewallRulesAPI interface {
	NewListByServerPager(resourceGroupName string, serverName string, options *armsql.FirewallRulesClientListByServerOptions) *runtime.Pager[armsql.FirewallRulesClientListByServerResponse]
}

// EncryptionProtectorsAPI defines the encryption protector operations used by the collector.
type EncryptionProtectorsAPI interface {
	Get(ctx context.Context, resourceGroupName string, serverName string, encryptionProtectorName armsql.EncryptionProtectorName, options *armsql.EncryptionProtectorsClientGetOptions) (armsql.EncryptionProtectorsClientGetResponse, error)
}

// ServerVulnerabilityAssessmentsAPI defines the vulnerability assessment operations used by the collector.
type ServerVulnerabilityAssessmentsAPI interface {
	Get(ctx context.Context, resourceGroupName string, serverName string, vulnerabilityAssessmentName armsql.VulnerabilityAssessmentName, options *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error)
}

// ServerSecurityAlertPoliciesAPI defines the security alert policy operations used by the collector.
type ServerSecurityAlertPoliciesAPI interface {
	Get(ctx context.Context, resourceGroupName string, serverName string, securityAlertPolicyName armsql.SecurityAlertPolicyName, options *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error)
}

// DatabasesAPI defines the database operations used by the collector.
type DatabasesAPI interface {
	NewListByServerPager(resourceGroupName string, serverName string, options *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse]
}

// TransparentDataEncryptionsAPI defines the TDE operations used by the collector.
type TransparentDataEncryptionsAPI interface {
	Get(ctx context.Context, resourceGroupName string, serverName string, databaseName string, tdeName armsql.TransparentDataEncryptionName, options *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error)
}

// SQLClients holds every client needed to build the SQL server graph of one
// subscription.
type SQLClients struct {
	Servers                    ServersAPI
	AuditingPolicies           ServerBlobAuditingPoliciesAPI
	FirewallRules              FirewallRulesAPI
	EncryptionProtectors       EncryptionProtectorsAPI
	VulnerabilityAssessments   ServerVulnerabilityAssessmentsAPI
	SecurityAlertPolicies      ServerSecurityAlertPoliciesAPI
	Databases                  DatabasesAPI
	TransparentDataEncryptions TransparentDataEncryptionsAPI
}
