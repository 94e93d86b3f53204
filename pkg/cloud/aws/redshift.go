package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type redshiftAPI interface {
	DescribeClusters(ctx context.Context, params *redshift.DescribeClustersInput, optFns ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error)
}

type redshiftCollector struct {
	api    redshiftAPI
	region string
}

func newRedshiftCollector(api redshiftAPI, region string) *redshiftCollector {
	return &redshiftCollector{api: api, region: region}
}

func (c *redshiftCollector) Warehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	var warehouses []inventory.Warehouse
	paginator := redshift.NewDescribeClustersPaginator(c.api, &redshift.DescribeClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("redshift.DescribeClusters", err)
		}
		for _, cl := range page.Clusters {
			id := aws.ToString(cl.ClusterIdentifier)
			warehouses = append(warehouses, inventory.Warehouse{
				Meta: inventory.Meta{
					ID:        id,
					Name:      id,
					Region:    c.region,
					CreatedAt: aws.ToTime(cl.ClusterCreateTime),
					Tags:      parseRedshiftTags(cl.Tags),
				},
				NodeType: aws.ToString(cl.NodeType),
				NumNodes: int(aws.ToInt32(cl.NumberOfNodes)),
				Status:   aws.ToString(cl.ClusterStatus),
			})
		}
	}
	return warehouses, nil
}

func parseRedshiftTags(tags []redshifttypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
