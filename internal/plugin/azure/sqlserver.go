package azure

import (
	"context"
	"fmt"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/sql/armsql"
	"github.com/rs/zerolog"

	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/pkg/finding"
)

// SQLServerCollectorName identifies the SQL server collector in logs and metrics.
const SQLServerCollectorName = "sqlserver"

// NewSQLServerCollector returns a collector of SQL servers across subscriptions.
func NewSQLServerCollector(clients collector.ClientSet[*SQLClients], opts ...collector.Option) *collector.Collector[*SQLClients, Server] {
	return collector.New(SQLServerCollectorName, clients, CollectSQLServers, opts...)
}

// CollectSQLServers lists the SQL servers of one subscription and decorates
// each with its policies, firewall rules and databases. Any sub-query error
// other than database listing fails the whole subscription.
func CollectSQLServers(ctx context.Context, _ string, c *SQLClients) ([]Server, error) {
	servers := []Server{}
	seen := make(map[string]bool)

	pager := c.Servers.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return servers, fmt.Errorf("list servers: %w", err)
		}

		for _, s := range page.Value {
			if s == nil || seen[str(s.ID)] {
				continue
			}
			seen[str(s.ID)] = true

			server, err := buildServer(ctx, c, s)
			if err != nil {
				return servers, fmt.Errorf("server %s: %w", str(s.Name), err)
			}
			servers = append(servers, server)
		}
	}

	return servers, nil
}

// buildServer runs the per-server sub-queries concurrently and joins them.
func buildServer(ctx context.Context, c *SQLClients, s *armsql.Server) (Server, error) {
	server := convertServer(s)

	rg, err := resourceGroup(server.ID)
	if err != nil {
		return Server{}, err
	}
	name := server.Name

	err = collector.RunAll(ctx,
		func(ctx context.Context) (err error) {
			server.AuditingPolicies, err = listAuditingPolicies(ctx, c.AuditingPolicies, rg, name)
			return err
		},
		func(ctx context.Context) (err error) {
			server.FirewallRules, err = listFirewallRules(ctx, c.FirewallRules, rg, name)
			return err
		},
		func(ctx context.Context) (err error) {
			server.EncryptionProtector, err = getEncryptionProtector(ctx, c.EncryptionProtectors, rg, name)
			return err
		},
		func(ctx context.Context) (err error) {
			server.VulnerabilityAssessment, err = getVulnerabilityAssessment(ctx, c.VulnerabilityAssessments, rg, name)
			return err
		},
		func(ctx context.Context) (err error) {
			server.SecurityAlertPolicy, err = getSecurityAlertPolicy(ctx, c.SecurityAlertPolicies, rg, name)
			return err
		},
		func(ctx context.Context) (err error) {
			server.Location, err = getLocation(ctx, c.Servers, rg, name)
			return err
		},
		func(ctx context.Context) error {
			server.Databases = listDatabases(ctx, c, rg, name)
			return nil
		},
	)
	if err != nil {
		return Server{}, err
	}

	return server, nil
}

// resourceGroup extracts the resource group segment of an ARM resource id.
func resourceGroup(id string) (string, error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return "", fmt.Errorf("parse resource id %q: %w", id, err)
	}
	if rid.ResourceGroupName == "" {
		return "", fmt.Errorf("resource id %q has no resource group", id)
	}
	return rid.ResourceGroupName, nil
}

func convertServer(s *armsql.Server) Server {
	server := Server{
		ID:       str(s.ID),
		Name:     str(s.Name),
		Location: str(s.Location),
		Tags:     convertTags(s.Tags),
	}

	if p := s.Properties; p != nil {
		server.PublicNetworkAccess = str(p.PublicNetworkAccess)
		server.MinimalTLSVersion = str(p.MinimalTLSVersion)
		if a := p.Administrators; a != nil {
			server.Administrators = ServerExternalAdministrator{
				SID:               str(a.Sid),
				AdministratorType: str(a.AdministratorType),
				Login:             str(a.Login),
			}
		}
	}

	return server
}

func listAuditingPolicies(ctx context.Context, client ServerBlobAuditingPoliciesAPI, rg, server string) ([]AuditingPolicy, error) {
	policies := []AuditingPolicy{}

	pager := client.NewListByServerPager(rg, server, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list auditing policies: %w", err)
		}
		for _, p := range page.Value {
			if p == nil {
				continue
			}
			policy := AuditingPolicy{ID: str(p.ID), Name: str(p.Name), Type: str(p.Type)}
			if p.Properties != nil {
				policy.State = str(p.Properties.State)
				policy.RetentionDays = deref(p.Properties.RetentionDays)
			}
			policies = append(policies, policy)
		}
	}

	return policies, nil
}

func listFirewallRules(ctx context.Context, client FirewallRulesAPI, rg, server string) ([]FirewallRule, error) {
	rules := []FirewallRule{}

	pager := client.NewListByServerPager(rg, server, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list firewall rules: %w", err)
		}
		for _, r := range page.Value {
			if r == nil {
				continue
			}
			rule := FirewallRule{Name: str(r.Name)}
			if r.Properties != nil {
				rule.StartIPAddress = str(r.Properties.StartIPAddress)
				rule.EndIPAddress = str(r.Properties.EndIPAddress)
			}
			rules = append(rules, rule)
		}
	}

	return rules, nil
}

func getEncryptionProtector(ctx context.Context, client EncryptionProtectorsAPI, rg, server string) (*EncryptionProtector, error) {
	resp, err := client.Get(ctx, rg, server, armsql.EncryptionProtectorNameCurrent, nil)
	if err != nil {
		return nil, fmt.Errorf("get encryption protector: %w", err)
	}
	if resp.Properties == nil {
		return nil, nil
	}

	return &EncryptionProtector{
		ID:            str(resp.ID),
		Name:          str(resp.Name),
		Type:          str(resp.Type),
		ServerKeyName: str(resp.Properties.ServerKeyName),
		ServerKeyType: str(resp.Properties.ServerKeyType),
	}, nil
}

func getVulnerabilityAssessment(ctx context.Context, client ServerVulnerabilityAssessmentsAPI, rg, server string) (*VulnerabilityAssessment, error) {
	resp, err := client.Get(ctx, rg, server, armsql.VulnerabilityAssessmentNameDefault, nil)
	if err != nil {
		return nil, fmt.Errorf("get vulnerability assessment: %w", err)
	}
	if resp.Properties == nil {
		return nil, nil
	}

	va := &VulnerabilityAssessment{
		ID:                   str(resp.ID),
		Name:                 str(resp.Name),
		Type:                 str(resp.Type),
		StorageContainerPath: str(resp.Properties.StorageContainerPath),
	}
	if rs := resp.Properties.RecurringScans; rs != nil {
		va.RecurringScans = RecurringScans{
			IsEnabled:               deref(rs.IsEnabled),
			Emails:                  strs(rs.Emails),
			EmailSubscriptionAdmins: deref(rs.EmailSubscriptionAdmins),
		}
	}

	return va, nil
}

func getSecurityAlertPolicy(ctx context.Context, client ServerSecurityAlertPoliciesAPI, rg, server string) (*SecurityAlertPolicy, error) {
	resp, err := client.Get(ctx, rg, server, armsql.SecurityAlertPolicyNameDefault, nil)
	if err != nil {
		return nil, fmt.Errorf("get security alert policy: %w", err)
	}
	if resp.Properties == nil {
		return nil, nil
	}

	return &SecurityAlertPolicy{
		ID:    str(resp.ID),
		Name:  str(resp.Name),
		Type:  str(resp.Type),
		State: str(resp.Properties.State),
	}, nil
}

func getLocation(ctx context.Context, client ServersAPI, rg, server string) (string, error) {
	resp, err := client.Get(ctx, rg, server, nil)
	if err != nil {
		return "", fmt.Errorf("get server: %w", err)
	}
	return str(resp.Location), nil
}

// listDatabases is the isolation boundary for database listing. A failure is
// logged and the databases assembled so far are kept. Nothing is logged once
// ctx is done: a sibling sub-query failed and the server is discarded.
func listDatabases(ctx context.Context, c *SQLClients, rg, server string) []Database {
	databases, err := collectDatabases(ctx, c, rg, server)
	if err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("server", server).
			Int("collected", len(databases)).
			Msg("database listing failed")
	}
	return databases
}

func collectDatabases(ctx context.Context, c *SQLClients, rg, server string) (databases []Database, err error) {
	databases = []Database{}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	pager := c.Databases.NewListByServerPager(rg, server, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return databases, fmt.Errorf("list databases: %w", err)
		}
		for _, d := range page.Value {
			if d == nil {
				continue
			}
			name := str(d.Name)
			tde, err := getTransparentDataEncryption(ctx, c.TransparentDataEncryptions, rg, server, name)
			if err != nil {
				return databases, fmt.Errorf("database %s: %w", name, err)
			}
			databases = append(databases, Database{
				ID:                        str(d.ID),
				Name:                      name,
				Type:                      str(d.Type),
				Location:                  str(d.Location),
				ManagedBy:                 str(d.ManagedBy),
				TransparentDataEncryption: tde,
			})
		}
	}

	return databases, nil
}

func getTransparentDataEncryption(ctx context.Context, client TransparentDataEncryptionsAPI, rg, server, database string) (TransparentDataEncryption, error) {
	resp, err := client.Get(ctx, rg, server, database, armsql.TransparentDataEncryptionNameCurrent, nil)
	if err != nil {
		return TransparentDataEncryption{}, fmt.Errorf("get transparent data encryption: %w", err)
	}

	tde := TransparentDataEncryption{ID: str(resp.ID), Name: str(resp.Name), Type: str(resp.Type)}
	if resp.Properties != nil {
		tde.Status = str(resp.Properties.State)
	}
	return tde, nil
}

func convertTags(tags map[string]*string) []finding.Tag {
	out := make([]finding.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, finding.Tag{Key: k, Value: str(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// str reads an optional SDK string or string enum.
func str[T ~string](v *T) string {
	if v == nil {
		return ""
	}
	return string(*v)
}

func strs(vs []*string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
