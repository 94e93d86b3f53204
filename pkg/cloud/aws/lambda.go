package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type lambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	ListProvisionedConcurrencyConfigs(ctx context.Context, params *lambda.ListProvisionedConcurrencyConfigsInput, optFns ...func(*lambda.Options)) (*lambda.ListProvisionedConcurrencyConfigsOutput, error)
	ListTags(ctx context.Context, params *lambda.ListTagsInput, optFns ...func(*lambda.Options)) (*lambda.ListTagsOutput, error)
}

type functionCollector struct {
	api    lambdaAPI
	region string
}

func newFunctionCollector(api lambdaAPI, region string) *functionCollector {
	return &functionCollector{api: api, region: region}
}

// lastModifiedLayout matches Lambda's LastModified strings,
// e.g. "2023-10-05T14:48:00.000+0000".
const lastModifiedLayout = "2006-01-02T15:04:05.000-0700"

func (c *functionCollector) Functions(ctx context.Context) ([]inventory.Function, error) {
	var functions []inventory.Function
	paginator := lambda.NewListFunctionsPaginator(c.api, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("lambda.ListFunctions", err)
		}
		for _, fn := range page.Functions {
			name := aws.ToString(fn.FunctionName)
			item := inventory.Function{
				Meta: inventory.Meta{
					ID:     name,
					Name:   name,
					Region: c.region,
					// Lambda exposes no creation time; the last code or
					// config change is the conservative stand-in.
					CreatedAt: parseLambdaModified(aws.ToString(fn.LastModified)),
				},
				Runtime:       string(fn.Runtime),
				MemoryMB:      int(aws.ToInt32(fn.MemorySize)),
				CodeSizeBytes: fn.CodeSize,
			}

			pc := lambda.NewListProvisionedConcurrencyConfigsPaginator(c.api, &lambda.ListProvisionedConcurrencyConfigsInput{
				FunctionName: aws.String(name),
			})
			for pc.HasMorePages() {
				pcPage, err := pc.NextPage(ctx)
				if err != nil {
					return nil, cloud.Classify("lambda.ListProvisionedConcurrencyConfigs", err)
				}
				for _, cfg := range pcPage.ProvisionedConcurrencyConfigs {
					item.ProvisionedConcurrency += int(aws.ToInt32(cfg.AllocatedProvisionedConcurrentExecutions))
				}
			}

			tags, err := c.api.ListTags(ctx, &lambda.ListTagsInput{Resource: fn.FunctionArn})
			if err != nil {
				return nil, cloud.Classify("lambda.ListTags", err)
			}
			item.Tags = tags.Tags

			functions = append(functions, item)
		}
	}
	return functions, nil
}

func parseLambdaModified(s string) time.Time {
	t, err := time.Parse(lastModifiedLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
