package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// LambdaAPI defines the Lambda operations used by the collector.
type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListTags(ctx context.Context, params *lambda.ListTagsInput, optFns ...func(*lambda.Options)) (*lambda.ListTagsOutput, error)
}

// STSAPI defines the STS operations used to resolve the account id.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// RegionalLambda is a Lambda client bound to one region.
type RegionalLambda struct {
	Region string
	Client LambdaAPI
}

// Clients holds the clients of one AWS account.
type Clients struct {
	AccountID string
	Lambda    []RegionalLambda
}
