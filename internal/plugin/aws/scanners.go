package aws

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/vigil/internal/collector"
	"github.com/yairfalse/vigil/pkg/finding"
)

// LambdaCollectorName identifies the Lambda collector in logs and metrics.
const LambdaCollectorName = "awslambda"

// Function is one Lambda function with its environment and tags.
type Function struct {
	ARN         string
	Name        string
	Region      string
	AccountID   string
	Runtime     string
	Environment map[string]string
	Tags        []finding.Tag
}

// NewLambdaCollector returns a collector of Lambda functions across profiles.
func NewLambdaCollector(clients collector.ClientSet[*Clients], opts ...collector.Option) *collector.Collector[*Clients, Function] {
	return collector.New(LambdaCollectorName, clients, CollectFunctions, opts...)
}

// CollectFunctions lists the functions of every region of one account.
// A function is kept once per ARN.
func CollectFunctions(ctx context.Context, _ string, c *Clients) ([]Function, error) {
	functions := []Function{}
	seen := make(map[string]bool)

	for _, rl := range c.Lambda {
		fns, err := scanLambda(ctx, rl, c.AccountID)
		if err != nil {
			return functions, fmt.Errorf("region %s: %w", rl.Region, err)
		}
		for _, fn := range fns {
			if seen[fn.ARN] {
				continue
			}
			seen[fn.ARN] = true
			functions = append(functions, fn)
		}
	}

	return functions, nil
}

// scanLambda pages ListFunctions and fetches tags per function.
func scanLambda(ctx context.Context, rl RegionalLambda, accountID string) ([]Function, error) {
	var functions []Function
	var marker *string

	for {
		output, err := rl.Client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			f := convertLambda(fn, rl.Region, accountID)

			tags, err := rl.Client.ListTags(ctx, &lambda.ListTagsInput{Resource: fn.FunctionArn})
			if err != nil {
				return nil, fmt.Errorf("list tags for %s: %w", f.Name, err)
			}
			f.Tags = convertTags(tags.Tags)

			functions = append(functions, f)
		}

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return functions, nil
}

func convertLambda(fn lambdatypes.FunctionConfiguration, region, accountID string) Function {
	f := Function{
		ARN:         aws.ToString(fn.FunctionArn),
		Name:        aws.ToString(fn.FunctionName),
		Region:      region,
		AccountID:   accountID,
		Runtime:     string(fn.Runtime),
		Environment: map[string]string{},
		Tags:        []finding.Tag{},
	}
	if fn.Environment != nil {
		maps.Copy(f.Environment, fn.Environment.Variables)
	}
	return f
}

func convertTags(tags map[string]string) []finding.Tag {
	out := make([]finding.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, finding.Tag{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
