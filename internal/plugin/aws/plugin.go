// Package aws collects the AWS Lambda inventory. Tenants are shared config
// profiles; each profile is scanned across the configured regions.
package aws

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultProfile is the shared config profile used when none is named.
const DefaultProfile = "default"

// ClientSet builds the clients of one profile. Loaded configs are cached.
type ClientSet struct {
	regions []string

	mu       sync.Mutex
	cfgCache map[string]aws.Config
}

// NewClientSet creates a client set scanning regions. With no regions, the
// profile's own region is used. Repeated regions are scanned once.
func NewClientSet(regions []string) *ClientSet {
	var unique []string
	for _, r := range regions {
		if !slices.Contains(unique, r) {
			unique = append(unique, r)
		}
	}
	return &ClientSet{
		regions:  unique,
		cfgCache: make(map[string]aws.Config),
	}
}

// Client returns the clients of profile.
func (c *ClientSet) Client(ctx context.Context, profile string) (*Clients, error) {
	cfg, err := c.loadConfig(ctx, profile)
	if err != nil {
		return nil, err
	}

	accountID, err := getAccountID(ctx, sts.NewFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("get account id: %w", err)
	}

	regions := c.regions
	if len(regions) == 0 {
		regions = []string{cfg.Region}
	}

	clients := &Clients{AccountID: accountID}
	for _, region := range regions {
		regionalCfg := cfg.Copy()
		regionalCfg.Region = region
		clients.Lambda = append(clients.Lambda, RegionalLambda{
			Region: region,
			Client: lambda.NewFromConfig(regionalCfg),
		})
	}

	return clients, nil
}

func (c *ClientSet) loadConfig(ctx context.Context, profile string) (aws.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg, ok := c.cfgCache[profile]; ok {
		return cfg, nil
	}

	var opts []func(*config.LoadOptions) error
	if profile != "" && profile != DefaultProfile {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config for profile %s: %w", profile, err)
	}

	c.cfgCache[profile] = cfg
	return cfg, nil
}

func getAccountID(ctx context.Context, client STSAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	if out.Account == nil {
		return "", fmt.Errorf("caller identity has no account")
	}
	return aws.ToString(out.Account), nil
}
