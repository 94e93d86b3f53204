package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type elasticacheAPI interface {
	DescribeCacheClusters(ctx context.Context, params *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error)
	DescribeReplicationGroups(ctx context.Context, params *elasticache.DescribeReplicationGroupsInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeReplicationGroupsOutput, error)
	ListTagsForResource(ctx context.Context, params *elasticache.ListTagsForResourceInput, optFns ...func(*elasticache.Options)) (*elasticache.ListTagsForResourceOutput, error)
}

type cacheCollector struct {
	api    elasticacheAPI
	region string
}

func newCacheCollector(api elasticacheAPI, region string) *cacheCollector {
	return &cacheCollector{api: api, region: region}
}

func (c *cacheCollector) CacheClusters(ctx context.Context) ([]inventory.CacheCluster, error) {
	roles, err := c.memberRoles(ctx)
	if err != nil {
		return nil, err
	}

	var clusters []inventory.CacheCluster
	paginator := elasticache.NewDescribeCacheClustersPaginator(c.api, &elasticache.DescribeCacheClustersInput{
		ShowCacheNodeInfo: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("elasticache.DescribeCacheClusters", err)
		}
		for _, cl := range page.CacheClusters {
			id := aws.ToString(cl.CacheClusterId)
			item := inventory.CacheCluster{
				Meta: inventory.Meta{
					ID:        id,
					Name:      id,
					Region:    c.region,
					CreatedAt: aws.ToTime(cl.CacheClusterCreateTime),
				},
				Engine:             aws.ToString(cl.Engine),
				EngineVersion:      aws.ToString(cl.EngineVersion),
				NodeType:           aws.ToString(cl.CacheNodeType),
				NumNodes:           int(aws.ToInt32(cl.NumCacheNodes)),
				Status:             aws.ToString(cl.CacheClusterStatus),
				ReplicationGroupID: aws.ToString(cl.ReplicationGroupId),
				IsReplica:          roles[id] == "replica",
			}
			if cl.ARN != nil {
				tags, err := c.api.ListTagsForResource(ctx, &elasticache.ListTagsForResourceInput{ResourceName: cl.ARN})
				if err != nil {
					return nil, cloud.Classify("elasticache.ListTagsForResource", err)
				}
				item.Tags = parseCacheTags(tags.TagList)
			}
			clusters = append(clusters, item)
		}
	}
	return clusters, nil
}

// memberRoles maps member cluster ids to their replication-group role
// ("primary" or "replica").
func (c *cacheCollector) memberRoles(ctx context.Context) (map[string]string, error) {
	roles := make(map[string]string)
	paginator := elasticache.NewDescribeReplicationGroupsPaginator(c.api, &elasticache.DescribeReplicationGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("elasticache.DescribeReplicationGroups", err)
		}
		for _, rg := range page.ReplicationGroups {
			for _, ng := range rg.NodeGroups {
				for _, member := range ng.NodeGroupMembers {
					roles[aws.ToString(member.CacheClusterId)] = aws.ToString(member.CurrentRole)
				}
			}
		}
	}
	return roles, nil
}

func parseCacheTags(tags []ectypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
