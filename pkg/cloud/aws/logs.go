package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type logsAPI interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

type logGroupCollector struct {
	api    logsAPI
	region string
}

func newLogGroupCollector(api logsAPI, region string) *logGroupCollector {
	return &logGroupCollector{api: api, region: region}
}

func (c *logGroupCollector) LogGroups(ctx context.Context) ([]inventory.LogGroup, error) {
	var groups []inventory.LogGroup
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(c.api, &cloudwatchlogs.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("logs.DescribeLogGroups", err)
		}
		for _, lg := range page.LogGroups {
			name := aws.ToString(lg.LogGroupName)
			groups = append(groups, inventory.LogGroup{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: time.UnixMilli(aws.ToInt64(lg.CreationTime)),
				},
				RetentionDays: int(aws.ToInt32(lg.RetentionInDays)),
				StoredBytes:   aws.ToInt64(lg.StoredBytes),
			})
		}
	}
	return groups, nil
}
