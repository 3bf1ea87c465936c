package azure

import "github.com/yairfalse/vigil/pkg/finding"

// Server is one Azure SQL logical server with everything checks read from it.
// Optional sub-entities are nil when the provider reports them as not
// configured.
type Server struct {
	ID                      string
	Name                    string
	Location                string
	PublicNetworkAccess     string
	MinimalTLSVersion       string
	Administrators          ServerExternalAdministrator
	AuditingPolicies        []AuditingPolicy
	FirewallRules           []FirewallRule
	EncryptionProtector     *EncryptionProtector
	VulnerabilityAssessment *VulnerabilityAssessment
	SecurityAlertPolicy     *SecurityAlertPolicy
	Databases               []Database
	Tags                    []finding.Tag
}

// ServerExternalAdministrator is the Entra ID administrator of a server.
// Fields are empty strings when no administrator is set.
type ServerExternalAdministrator struct {
	SID               string
	AdministratorType string
	Login             string
}

// AuditingPolicy is a server blob auditing policy.
type AuditingPolicy struct {
	ID            string
	Name          string
	Type          string
	State         string
	RetentionDays int32
}

// FirewallRule is a server-level IP firewall rule.
type FirewallRule struct {
	Name           string
	StartIPAddress string
	EndIPAddress   string
}

// EncryptionProtector is the key used for TDE on the server.
type EncryptionProtector struct {
	ID            string
	Name          string
	Type          string
	ServerKeyName string
	ServerKeyType string
}

// VulnerabilityAssessment is the server vulnerability assessment setting.
type VulnerabilityAssessment struct {
	ID                   string
	Name                 string
	Type                 string
	StorageContainerPath string
	RecurringScans       RecurringScans
}

// RecurringScans holds the recurring scan settings of a vulnerability assessment.
type RecurringScans struct {
	IsEnabled               bool
	Emails                  []string
	EmailSubscriptionAdmins bool
}

// SecurityAlertPolicy is the server threat detection policy.
type SecurityAlertPolicy struct {
	ID    string
	Name  string
	Type  string
	State string
}

// Database is a database hosted on a server.
type Database struct {
	ID                        string
	Name                      string
	Type                      string
	Location                  string
	ManagedBy                 string
	TransparentDataEncryption TransparentDataEncryption
}

// TransparentDataEncryption is the TDE status of one database.
type TransparentDataEncryption struct {
	ID     string
	Name   string
	Type   string
	Status string
}
