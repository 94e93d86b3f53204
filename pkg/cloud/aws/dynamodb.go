package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	appautoscaling "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	aastypes "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type dynamoAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	ListTagsOfResource(ctx context.Context, params *dynamodb.ListTagsOfResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTagsOfResourceOutput, error)
}

type scalingAPI interface {
	DescribeScalableTargets(ctx context.Context, params *appautoscaling.DescribeScalableTargetsInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DescribeScalableTargetsOutput, error)
}

type dynamoCollector struct {
	api     dynamoAPI
	scaling scalingAPI
	region  string
}

func newDynamoCollector(api dynamoAPI, scaling scalingAPI, region string) *dynamoCollector {
	return &dynamoCollector{api: api, scaling: scaling, region: region}
}

func (c *dynamoCollector) Tables(ctx context.Context) ([]inventory.Table, error) {
	autoscaled, err := c.autoscaledTables(ctx)
	if err != nil {
		return nil, err
	}

	var tables []inventory.Table
	paginator := dynamodb.NewListTablesPaginator(c.api, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("dynamodb.ListTables", err)
		}
		for _, name := range page.TableNames {
			desc, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
			if err != nil {
				return nil, cloud.Classify("dynamodb.DescribeTable", err)
			}
			t := desc.Table
			if t == nil || t.TableStatus == ddbtypes.TableStatusDeleting {
				continue
			}

			item := inventory.Table{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: aws.ToTime(t.CreationDateTime),
				},
				BillingMode:    string(ddbtypes.BillingModeProvisioned),
				ItemCount:      aws.ToInt64(t.ItemCount),
				SizeBytes:      aws.ToInt64(t.TableSizeBytes),
				HasAutoscaling: autoscaled[name],
			}
			if t.BillingModeSummary != nil && t.BillingModeSummary.BillingMode != "" {
				item.BillingMode = string(t.BillingModeSummary.BillingMode)
			}
			if t.ProvisionedThroughput != nil {
				item.ReadCapacity = aws.ToInt64(t.ProvisionedThroughput.ReadCapacityUnits)
				item.WriteCapacity = aws.ToInt64(t.ProvisionedThroughput.WriteCapacityUnits)
			}
			for _, gsi := range t.GlobalSecondaryIndexes {
				g := inventory.GSI{Name: aws.ToString(gsi.IndexName)}
				if gsi.ProvisionedThroughput != nil {
					g.ReadCapacity = aws.ToInt64(gsi.ProvisionedThroughput.ReadCapacityUnits)
					g.WriteCapacity = aws.ToInt64(gsi.ProvisionedThroughput.WriteCapacityUnits)
				}
				item.GSIs = append(item.GSIs, g)
			}

			tags, err := c.api.ListTagsOfResource(ctx, &dynamodb.ListTagsOfResourceInput{ResourceArn: t.TableArn})
			if err != nil {
				return nil, cloud.Classify("dynamodb.ListTagsOfResource", err)
			}
			item.Tags = parseDynamoTags(tags.Tags)

			tables = append(tables, item)
		}
	}
	return tables, nil
}

// autoscaledTables returns the table names with at least one registered
// scalable target. Resource ids look like "table/name" or
// "table/name/index/idx"; both count for the table.
func (c *dynamoCollector) autoscaledTables(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	paginator := appautoscaling.NewDescribeScalableTargetsPaginator(c.scaling, &appautoscaling.DescribeScalableTargetsInput{
		ServiceNamespace: aastypes.ServiceNamespaceDynamodb,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("application-autoscaling.DescribeScalableTargets", err)
		}
		for _, target := range page.ScalableTargets {
			parts := strings.Split(aws.ToString(target.ResourceId), "/")
			if len(parts) >= 2 && parts[0] == "table" {
				out[parts[1]] = true
			}
		}
	}
	return out, nil
}

func parseDynamoTags(tags []ddbtypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
