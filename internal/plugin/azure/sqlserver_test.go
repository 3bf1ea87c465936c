package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/pkg/finding"
)

// ═══════════════════════════════════════════════════════════════════════════
// Pager helpers
// ═══════════════════════════════════════════════════════════════════════════

func pagerOf[T any](pages ...T) *runtime.Pager[T] {
	if len(pages) == 0 {
		pages = []T{*new(T)}
	}
	i := 0
	return runtime.NewPager(runtime.PagingHandler[T]{
		More: func(T) bool { return i < len(pages) },
		Fetcher: func(context.Context, *T) (T, error) {
			p := pages[i]
			i++
			return p, nil
		},
	})
}

func failingPager[T any](err error) *runtime.Pager[T] {
	return runtime.NewPager(runtime.PagingHandler[T]{
		More: func(T) bool { return false },
		Fetcher: func(context.Context, *T) (T, error) {
			return *new(T), err
		},
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Mocks
// ═══════════════════════════════════════════════════════════════════════════

type mockServersClient struct {
	NewListPagerFunc func(options *armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse]
	GetFunc          func(ctx context.Context, resourceGroupName string, serverName string, options *armsql.ServersClientGetOptions) (armsql.ServersClientGetResponse, error)
}

func (m *mockServersClient) NewListPager(options *armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse] {
	return m.NewListPagerFunc(options)
}

func (m *mockServersClient) Get(ctx context.Context, resourceGroupName string, serverName string, options *armsql.ServersClientGetOptions) (armsql.ServersClientGetResponse, error) {
	return m.GetFunc(ctx, resourceGroupName, serverName, options)
}

type mockAuditingClient struct {
	NewListByServerPagerFunc func(resourceGroupName string, serverName string, options *armsql.ServerBlobAuditingPoliciesClientListByServerOptions) *runtime.Pager[armsql.ServerBlobAuditingPoliciesClientListByServerResponse]
}

func (m *mockAuditingClient) NewListByServerPager(resourceGroupName string, serverName string, options *armsql.ServerBlobAuditingPoliciesClientListByServerOptions) *runtime.Pager[armsql.ServerBlobAuditingPoliciesClientListByServerResponse] {
	return m.NewListByServerPagerFunc(resourceGroupName, serverName, options)
}

type mockFirewallClient struct {
	NewListByServerPagerFunc func(resourceGroupName string, serverName string, options *armsql.FirewallRulesClientListByServerOptions) *runtime.Pager[armsql.FirewallRulesClientListByServerResponse]
}

func (m *mockFirewallClient) NewListByServerPager(resourceGroupName string, serverName string, options *armsql.FirewallRulesClientListByServerOptions) *runtime.Pager[armsql.FirewallRulesClientListByServerResponse] {
	return m.NewListByServerPagerFunc(resourceGroupName, serverName, options)
}

type mockEncryptionProtectorsClient struct {
	GetFunc func(ctx context.Context, resourceGroupName string, serverName string, encryptionProtectorName armsql.EncryptionProtectorName, options *armsql.EncryptionProtectorsClientGetOptions) (armsql.EncryptionProtectorsClientGetResponse, error)
}

func (m *mockEncryptionProtectorsClient) Get(ctx context.Context, resourceGroupName string, serverName string, encryptionProtectorName armsql.EncryptionProtectorName, options *armsql.EncryptionProtectorsClientGetOptions) (armsql.EncryptionProtectorsClientGetResponse, error) {
	return m.GetFunc(ctx, resourceGroupName, serverName, encryptionProtectorName, options)
}

type mockVulnerabilityAssessmentsClient struct {
	GetFunc func(ctx context.Context, resourceGroupName string, serverName string, vulnerabilityAssessmentName armsql.VulnerabilityAssessmentName, options *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error)
}

func (m *mockVulnerabilityAssessmentsClient) Get(ctx context.Context, resourceGroupName string, serverName string, vulnerabilityAssessmentName armsql.VulnerabilityAssessmentName, options *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error) {
	return m.GetFunc(ctx, resourceGroupName, serverName, vulnerabilityAssessmentName, options)
}

type mockSecurityAlertPoliciesClient struct {
	GetFunc func(ctx context.Context, resourceGroupName string, serverName string, securityAlertPolicyName armsql.SecurityAlertPolicyName, options *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error)
}

func (m *mockSecurityAlertPoliciesClient) Get(ctx context.Context, resourceGroupName string, serverName string, securityAlertPolicyName armsql.SecurityAlertPolicyName, options *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error) {
	return m.GetFunc(ctx, resourceGroupName, serverName, securityAlertPolicyName, options)
}

type mockDatabasesClient struct {
	NewListByServerPagerFunc func(resourceGroupName string, serverName string, options *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse]
}

func (m *mockDatabasesClient) NewListByServerPager(resourceGroupName string, serverName string, options *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse] {
	return m.NewListByServerPagerFunc(resourceGroupName, serverName, options)
}

type mockTDEClient struct {
	GetFunc func(ctx context.Context, resourceGroupName string, serverName string, databaseName string, tdeName armsql.TransparentDataEncryptionName, options *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error)
}

func (m *mockTDEClient) Get(ctx context.Context, resourceGroupName string, serverName string, databaseName string, tdeName armsql.TransparentDataEncryptionName, options *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error) {
	return m.GetFunc(ctx, resourceGroupName, serverName, databaseName, tdeName, options)
}

// ═══════════════════════════════════════════════════════════════════════════
// Fixtures
// ═══════════════════════════════════════════════════════════════════════════

func serverID(sub, rg, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Sql/servers/%s", sub, rg, name)
}

func sdkServer(sub, name string) *armsql.Server {
	return &armsql.Server{
		ID:       to.Ptr(serverID(sub, "rg-"+name, name)),
		Name:     to.Ptr(name),
		Location: to.Ptr("westeurope"),
		Tags:     map[string]*string{"team": to.Ptr("data"), "env": to.Ptr("prod")},
		Properties: &armsql.ServerProperties{
			MinimalTLSVersion:   to.Ptr("1.2"),
			PublicNetworkAccess: to.Ptr(armsql.ServerNetworkAccessFlagEnabled),
			Administrators: &armsql.ServerExternalAdministrator{
				Sid:               to.Ptr("00000000-0000-0000-0000-000000000001"),
				AdministratorType: to.Ptr(armsql.AdministratorTypeActiveDirectory),
				Login:             to.Ptr("sqladmins"),
			},
		},
	}
}

func serverPage(servers ...*armsql.Server) armsql.ServersClientListResponse {
	return armsql.ServersClientListResponse{ServerListResult: armsql.ServerListResult{Value: servers}}
}

// newMockSQLClients returns clients where every sub-query succeeds and each
// server has one database.
func newMockSQLClients(servers ...*armsql.Server) *SQLClients {
	return &SQLClients{
		Servers: &mockServersClient{
			NewListPagerFunc: func(*armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse] {
				return pagerOf(serverPage(servers...))
			},
			GetFunc: func(_ context.Context, _ string, _ string, _ *armsql.ServersClientGetOptions) (armsql.ServersClientGetResponse, error) {
				return armsql.ServersClientGetResponse{Server: armsql.Server{Location: to.Ptr("westeurope")}}, nil
			},
		},
		AuditingPolicies: &mockAuditingClient{
			NewListByServerPagerFunc: func(_ string, server string, _ *armsql.ServerBlobAuditingPoliciesClientListByServerOptions) *runtime.Pager[armsql.ServerBlobAuditingPoliciesClientListByServerResponse] {
				return pagerOf(armsql.ServerBlobAuditingPoliciesClientListByServerResponse{
					ServerBlobAuditingPolicyListResult: armsql.ServerBlobAuditingPolicyListResult{
						Value: []*armsql.ServerBlobAuditingPolicy{{
							ID:   to.Ptr(server + "/auditingSettings/default"),
							Name: to.Ptr("default"),
							Properties: &armsql.ServerBlobAuditingPolicyProperties{
								State:         to.Ptr(armsql.BlobAuditingPolicyStateEnabled),
								RetentionDays: to.Ptr[int32](90),
							},
						}},
					},
				})
			},
		},
		FirewallRules: &mockFirewallClient{
			NewListByServerPagerFunc: func(_ string, _ string, _ *armsql.FirewallRulesClientListByServerOptions) *runtime.Pager[armsql.FirewallRulesClientListByServerResponse] {
				return pagerOf(armsql.FirewallRulesClientListByServerResponse{
					FirewallRuleListResult: armsql.FirewallRuleListResult{
						Value: []*armsql.FirewallRule{{
							Name: to.Ptr("office"),
							Properties: &armsql.ServerFirewallRuleProperties{
								StartIPAddress: to.Ptr("10.0.0.1"),
								EndIPAddress:   to.Ptr("10.0.0.255"),
							},
						}},
					},
				})
			},
		},
		EncryptionProtectors: &mockEncryptionProtectorsClient{
			GetFunc: func(_ context.Context, _ string, _ string, _ armsql.EncryptionProtectorName, _ *armsql.EncryptionProtectorsClientGetOptions) (armsql.EncryptionProtectorsClientGetResponse, error) {
				return armsql.EncryptionProtectorsClientGetResponse{EncryptionProtector: armsql.EncryptionProtector{
					Name: to.Ptr("current"),
					Properties: &armsql.EncryptionProtectorProperties{
						ServerKeyName: to.Ptr("ServiceManaged"),
						ServerKeyType: to.Ptr(armsql.ServerKeyTypeServiceManaged),
					},
				}}, nil
			},
		},
		VulnerabilityAssessments: &mockVulnerabilityAssessmentsClient{
			GetFunc: func(_ context.Context, _ string, _ string, _ armsql.VulnerabilityAssessmentName, _ *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error) {
				return armsql.ServerVulnerabilityAssessmentsClientGetResponse{ServerVulnerabilityAssessment: armsql.ServerVulnerabilityAssessment{
					Name: to.Ptr("default"),
					Properties: &armsql.ServerVulnerabilityAssessmentProperties{
						StorageContainerPath: to.Ptr("https://audit.blob.core.windows.net/va"),
						RecurringScans: &armsql.VulnerabilityAssessmentRecurringScansProperties{
							IsEnabled:               to.Ptr(true),
							Emails:                  []*string{to.Ptr("dba@example.com")},
							EmailSubscriptionAdmins: to.Ptr(false),
						},
					},
				}}, nil
			},
		},
		SecurityAlertPolicies: &mockSecurityAlertPoliciesClient{
			GetFunc: func(_ context.Context, _ string, _ string, _ armsql.SecurityAlertPolicyName, _ *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error) {
				return armsql.ServerSecurityAlertPoliciesClientGetResponse{ServerSecurityAlertPolicy: armsql.ServerSecurityAlertPolicy{
					Name: to.Ptr("default"),
					Properties: &armsql.SecurityAlertsPolicyProperties{
						State: to.Ptr(armsql.SecurityAlertsPolicyStateEnabled),
					},
				}}, nil
			},
		},
		Databases: &mockDatabasesClient{
			NewListByServerPagerFunc: func(_ string, server string, _ *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse] {
				return pagerOf(databasePage(server + "-db"))
			},
		},
		TransparentDataEncryptions: &mockTDEClient{
			GetFunc: func(_ context.Context, _ string, _ string, _ string, _ armsql.TransparentDataEncryptionName, _ *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error) {
				return armsql.TransparentDataEncryptionsClientGetResponse{LogicalDatabaseTransparentDataEncryption: armsql.LogicalDatabaseTransparentDataEncryption{
					Name: to.Ptr("current"),
					Properties: &armsql.TransparentDataEncryptionProperties{
						State: to.Ptr(armsql.TransparentDataEncryptionStateEnabled),
					},
				}}, nil
			},
		},
	}
}

func databasePage(names ...string) armsql.DatabasesClientListByServerResponse {
	dbs := make([]*armsql.Database, 0, len(names))
	for _, n := range names {
		dbs = append(dbs, &armsql.Database{
			ID:        to.Ptr("/databases/" + n),
			Name:      to.Ptr(n),
			Type:      to.Ptr("Microsoft.Sql/servers/databases"),
			Location:  to.Ptr("westeurope"),
			ManagedBy: to.Ptr(""),
		})
	}
	return armsql.DatabasesClientListByServerResponse{DatabaseListResult: armsql.DatabaseListResult{Value: dbs}}
}

func ctxWithLogger(buf *bytes.Buffer) context.Context {
	return zerolog.New(buf).WithContext(context.Background())
}

// ═══════════════════════════════════════════════════════════════════════════
// CollectSQLServers
// ═══════════════════════════════════════════════════════════════════════════

func TestCollectSQLServers(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	require.Len(t, servers, 1)

	s := servers[0]
	assert.Equal(t, serverID("sub-1", "rg-sql-1", "sql-1"), s.ID)
	assert.Equal(t, "sql-1", s.Name)
	assert.Equal(t, "westeurope", s.Location)
	assert.Equal(t, "Enabled", s.PublicNetworkAccess)
	assert.Equal(t, "1.2", s.MinimalTLSVersion)
	assert.Equal(t, "ActiveDirectory", s.Administrators.AdministratorType)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", s.Administrators.SID)
	assert.Equal(t, []finding.Tag{{Key: "env", Value: "prod"}, {Key: "team", Value: "data"}}, s.Tags)

	require.Len(t, s.AuditingPolicies, 1)
	assert.Equal(t, "Enabled", s.AuditingPolicies[0].State)
	assert.Equal(t, int32(90), s.AuditingPolicies[0].RetentionDays)

	require.Len(t, s.FirewallRules, 1)
	assert.Equal(t, FirewallRule{Name: "office", StartIPAddress: "10.0.0.1", EndIPAddress: "10.0.0.255"}, s.FirewallRules[0])

	require.NotNil(t, s.EncryptionProtector)
	assert.Equal(t, "ServiceManaged", s.EncryptionProtector.ServerKeyType)

	require.NotNil(t, s.VulnerabilityAssessment)
	assert.True(t, s.VulnerabilityAssessment.RecurringScans.IsEnabled)
	assert.Equal(t, []string{"dba@example.com"}, s.VulnerabilityAssessment.RecurringScans.Emails)

	require.NotNil(t, s.SecurityAlertPolicy)
	assert.Equal(t, "Enabled", s.SecurityAlertPolicy.State)

	require.Len(t, s.Databases, 1)
	assert.Equal(t, "sql-1-db", s.Databases[0].Name)
	assert.Equal(t, "Enabled", s.Databases[0].TransparentDataEncryption.Status)
}

func TestCollectSQLServers_QueriesUseResourceGroupFromID(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))
	var gotRG, gotServer string
	clients.FirewallRules = &mockFirewallClient{
		NewListByServerPagerFunc: func(rg string, server string, _ *armsql.FirewallRulesClientListByServerOptions) *runtime.Pager[armsql.FirewallRulesClientListByServerResponse] {
			gotRG, gotServer = rg, server
			return pagerOf[armsql.FirewallRulesClientListByServerResponse]()
		},
	}

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	assert.Equal(t, "rg-sql-1", gotRG)
	assert.Equal(t, "sql-1", gotServer)
	assert.NotNil(t, servers[0].FirewallRules)
	assert.Empty(t, servers[0].FirewallRules)
}

func TestCollectSQLServers_NoServers(t *testing.T) {
	clients := newMockSQLClients()

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	assert.NotNil(t, servers)
	assert.Empty(t, servers)
}

func TestCollectSQLServers_PreservesOrderAcrossPages(t *testing.T) {
	clients := newMockSQLClients()
	clients.Servers.(*mockServersClient).NewListPagerFunc = func(*armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse] {
		return pagerOf(
			serverPage(sdkServer("sub-1", "a"), sdkServer("sub-1", "b")),
			serverPage(sdkServer("sub-1", "c")),
		)
	}

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, "a", servers[0].Name)
	assert.Equal(t, "b", servers[1].Name)
	assert.Equal(t, "c", servers[2].Name)
}

func TestCollectSQLServers_DuplicateIDsCollectedOnce(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "a"), sdkServer("sub-1", "a"))

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	assert.Len(t, servers, 1)
}

func TestCollectSQLServers_ListError(t *testing.T) {
	clients := newMockSQLClients()
	clients.Servers.(*mockServersClient).NewListPagerFunc = func(*armsql.ServersClientListOptions) *runtime.Pager[armsql.ServersClientListResponse] {
		return failingPager[armsql.ServersClientListResponse](errors.New("AuthorizationFailed"))
	}

	_, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "list servers")
}

func TestCollectSQLServers_MalformedIDFails(t *testing.T) {
	s := sdkServer("sub-1", "sql-1")
	s.ID = to.Ptr("sql-1")
	clients := newMockSQLClients(s)

	_, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.Error(t, err)
}

func TestCollectSQLServers_SubQueryErrorFailsTenant(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))
	clients.SecurityAlertPolicies = &mockSecurityAlertPoliciesClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ armsql.SecurityAlertPolicyName, _ *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error) {
			return armsql.ServerSecurityAlertPoliciesClientGetResponse{}, errors.New("ResourceNotFound")
		},
	}

	_, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server sql-1")
	assert.Contains(t, err.Error(), "get security alert policy")
}

func TestCollectSQLServers_AbsentSubEntitiesAreNil(t *testing.T) {
	s := sdkServer("sub-1", "bare")
	s.Properties = nil
	clients := newMockSQLClients(s)
	clients.EncryptionProtectors = &mockEncryptionProtectorsClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ armsql.EncryptionProtectorName, _ *armsql.EncryptionProtectorsClientGetOptions) (armsql.EncryptionProtectorsClientGetResponse, error) {
			return armsql.EncryptionProtectorsClientGetResponse{}, nil
		},
	}
	clients.VulnerabilityAssessments = &mockVulnerabilityAssessmentsClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ armsql.VulnerabilityAssessmentName, _ *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error) {
			return armsql.ServerVulnerabilityAssessmentsClientGetResponse{}, nil
		},
	}
	clients.SecurityAlertPolicies = &mockSecurityAlertPoliciesClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ armsql.SecurityAlertPolicyName, _ *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error) {
			return armsql.ServerSecurityAlertPoliciesClientGetResponse{}, nil
		},
	}

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Nil(t, servers[0].EncryptionProtector)
	assert.Nil(t, servers[0].VulnerabilityAssessment)
	assert.Nil(t, servers[0].SecurityAlertPolicy)
	assert.Equal(t, ServerExternalAdministrator{}, servers[0].Administrators)
	assert.Empty(t, servers[0].MinimalTLSVersion)
}

// ═══════════════════════════════════════════════════════════════════════════
// Database listing isolation
// ═══════════════════════════════════════════════════════════════════════════

func TestCollectSQLServers_DatabaseFailureKeepsPartialList(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"), sdkServer("sub-1", "sql-2"))
	clients.Databases = &mockDatabasesClient{
		NewListByServerPagerFunc: func(_ string, _ string, _ *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse] {
			return pagerOf(databasePage("db-1", "db-2", "db-3"))
		},
	}
	clients.TransparentDataEncryptions = &mockTDEClient{
		GetFunc: func(_ context.Context, _ string, server string, db string, _ armsql.TransparentDataEncryptionName, _ *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error) {
			if server == "sql-1" && db == "db-2" {
				return armsql.TransparentDataEncryptionsClientGetResponse{}, errors.New("database is paused")
			}
			return armsql.TransparentDataEncryptionsClientGetResponse{}, nil
		},
	}

	buf := &bytes.Buffer{}
	servers, err := CollectSQLServers(ctxWithLogger(buf), "sub-1", clients)

	require.NoError(t, err, "database failure must not fail the subscription")
	require.Len(t, servers, 2)

	require.Len(t, servers[0].Databases, 1)
	assert.Equal(t, "db-1", servers[0].Databases[0].Name)
	assert.Len(t, servers[1].Databases, 3)

	assert.Contains(t, buf.String(), "database listing failed")
	assert.Contains(t, buf.String(), `"server":"sql-1"`)
	assert.Contains(t, buf.String(), "database is paused")
}

func TestCollectSQLServers_SiblingFailureSilencesDatabaseLog(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))
	clients.SecurityAlertPolicies = &mockSecurityAlertPoliciesClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ armsql.SecurityAlertPolicyName, _ *armsql.ServerSecurityAlertPoliciesClientGetOptions) (armsql.ServerSecurityAlertPoliciesClientGetResponse, error) {
			return armsql.ServerSecurityAlertPoliciesClientGetResponse{}, errors.New("AuthorizationFailed")
		},
	}
	clients.TransparentDataEncryptions = &mockTDEClient{
		GetFunc: func(ctx context.Context, _ string, _ string, _ string, _ armsql.TransparentDataEncryptionName, _ *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error) {
			<-ctx.Done()
			return armsql.TransparentDataEncryptionsClientGetResponse{}, ctx.Err()
		},
	}

	buf := &bytes.Buffer{}
	_, err := CollectSQLServers(ctxWithLogger(buf), "sub-1", clients)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthorizationFailed")
	assert.NotContains(t, buf.String(), "database listing failed")
}

func TestCollectSQLServers_DatabaseListErrorYieldsEmpty(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))
	clients.Databases = &mockDatabasesClient{
		NewListByServerPagerFunc: func(_ string, _ string, _ *armsql.DatabasesClientListByServerOptions) *runtime.Pager[armsql.DatabasesClientListByServerResponse] {
			return failingPager[armsql.DatabasesClientListByServerResponse](errors.New("throttled"))
		},
	}

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.NotNil(t, servers[0].Databases)
	assert.Empty(t, servers[0].Databases)
}

func TestCollectSQLServers_DatabasePanicIsolated(t *testing.T) {
	clients := newMockSQLClients(sdkServer("sub-1", "sql-1"))
	clients.TransparentDataEncryptions = &mockTDEClient{
		GetFunc: func(_ context.Context, _ string, _ string, _ string, _ armsql.TransparentDataEncryptionName, _ *armsql.TransparentDataEncryptionsClientGetOptions) (armsql.TransparentDataEncryptionsClientGetResponse, error) {
			panic("unexpected payload")
		},
	}

	servers, err := CollectSQLServers(context.Background(), "sub-1", clients)

	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Empty(t, servers[0].Databases)
}

// ═══════════════════════════════════════════════════════════════════════════
// Tenant-scoped isolation through the collector
// ═══════════════════════════════════════════════════════════════════════════

func TestSQLServerCollector_FailureDropsWholeSubscription(t *testing.T) {
	failing := newMockSQLClients(
		sdkServer("sub-bad", "s1"),
		sdkServer("sub-bad", "s2"),
		sdkServer("sub-bad", "s3"),
		sdkServer("sub-bad", "s4"),
		sdkServer("sub-bad", "s5"),
	)
	failing.VulnerabilityAssessments = &mockVulnerabilityAssessmentsClient{
		GetFunc: func(_ context.Context, _ string, server string, _ armsql.VulnerabilityAssessmentName, _ *armsql.ServerVulnerabilityAssessmentsClientGetOptions) (armsql.ServerVulnerabilityAssessmentsClientGetResponse, error) {
			if server == "s3" {
				return armsql.ServerVulnerabilityAssessmentsClientGetResponse{}, errors.New("VulnerabilityAssessmentNotFound")
			}
			return armsql.ServerVulnerabilityAssessmentsClientGetResponse{}, nil
		},
	}
	healthy := newMockSQLClients(
		sdkServer("sub-ok", "a"),
		sdkServer("sub-ok", "b"),
		sdkServer("sub-ok", "c"),
	)

	clients := collector.Funcs[*SQLClients](func(_ context.Context, sub string) (*SQLClients, error) {
		if sub == "sub-bad" {
			return failing, nil
		}
		return healthy, nil
	})

	buf := &bytes.Buffer{}
	c := NewSQLServerCollector(clients, collector.WithLogger(zerolog.New(buf)))
	inv := c.Collect(context.Background(), []string{"sub-bad", "sub-ok"})

	assert.Empty(t, inv.Resources["sub-bad"])
	assert.Len(t, inv.Resources["sub-ok"], 3)
	require.Contains(t, inv.Errors, "sub-bad")
	assert.Contains(t, inv.Errors["sub-bad"].Error(), "server s3")
	assert.Contains(t, buf.String(), `"collector":"sqlserver"`)
	assert.Contains(t, buf.String(), "VulnerabilityAssessmentNotFound")
}

func TestSQLServerCollector_Idempotent(t *testing.T) {
	clients := collector.Funcs[*SQLClients](func(_ context.Context, sub string) (*SQLClients, error) {
		return newMockSQLClients(sdkServer(sub, "x"), sdkServer(sub, "y")), nil
	})

	c := NewSQLServerCollector(clients)
	first := c.Collect(context.Background(), []string{"sub-1", "sub-2"})
	second := c.Collect(context.Background(), []string{"sub-1", "sub-2"})

	assert.Equal(t, first, second)
}

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

func TestResourceGroup(t *testing.T) {
	rg, err := resourceGroup(serverID("sub-1", "my-rg", "srv"))
	require.NoError(t, err)
	assert.Equal(t, "my-rg", rg)

	_, err = resourceGroup("/subscriptions/sub-1")
	assert.Error(t, err)
}

func TestStr(t *testing.T) {
	assert.Equal(t, "", str[string](nil))
	assert.Equal(t, "x", str(to.Ptr("x")))
	assert.Equal(t, "Enabled", str(to.Ptr(armsql.SecurityAlertsPolicyStateEnabled)))
}
