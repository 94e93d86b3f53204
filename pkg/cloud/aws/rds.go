package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBClusters(ctx context.Context, params *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
}

type rdsCollector struct {
	api    rdsAPI
	region string
}

func newRDSCollector(api rdsAPI, region string) *rdsCollector {
	return &rdsCollector{api: api, region: region}
}

// Databases enumerates RDS, DocumentDB and Neptune in one sweep; the Engine
// field keeps them apart downstream. Aurora Serverless v1 clusters have no
// instances, so clusters are folded in as their own entries.
func (c *rdsCollector) Databases(ctx context.Context) ([]inventory.Database, error) {
	serverlessClusters := make(map[string]bool)
	var dbs []inventory.Database

	clusters := rds.NewDescribeDBClustersPaginator(c.api, &rds.DescribeDBClustersInput{})
	for clusters.HasMorePages() {
		page, err := clusters.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("rds.DescribeDBClusters", err)
		}
		for _, cl := range page.DBClusters {
			id := aws.ToString(cl.DBClusterIdentifier)
			if cl.ServerlessV2ScalingConfiguration != nil {
				serverlessClusters[id] = true
			}
			if aws.ToString(cl.EngineMode) != "serverless" {
				continue
			}
			// v1: capacity lives on the cluster itself.
			dbs = append(dbs, inventory.Database{
				Meta: inventory.Meta{
					ID:        id,
					Name:      id,
					Region:    c.region,
					CreatedAt: aws.ToTime(cl.ClusterCreateTime),
					Tags:      parseRDSTags(cl.TagList),
				},
				Engine:        aws.ToString(cl.Engine),
				EngineVersion: aws.ToString(cl.EngineVersion),
				Class:         "serverless",
				Status:        aws.ToString(cl.Status),
				Serverless:    true,
				ClusterID:     id,
			})
		}
	}

	instances := rds.NewDescribeDBInstancesPaginator(c.api, &rds.DescribeDBInstancesInput{})
	for instances.HasMorePages() {
		page, err := instances.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("rds.DescribeDBInstances", err)
		}
		for _, db := range page.DBInstances {
			clusterID := aws.ToString(db.DBClusterIdentifier)
			class := aws.ToString(db.DBInstanceClass)
			dbs = append(dbs, inventory.Database{
				Meta: inventory.Meta{
					ID:        aws.ToString(db.DBInstanceIdentifier),
					Name:      aws.ToString(db.DBInstanceIdentifier),
					Region:    c.region,
					CreatedAt: aws.ToTime(db.InstanceCreateTime),
					Tags:      parseRDSTags(db.TagList),
				},
				Engine:        aws.ToString(db.Engine),
				EngineVersion: aws.ToString(db.EngineVersion),
				Class:         class,
				Status:        aws.ToString(db.DBInstanceStatus),
				MultiAZ:       aws.ToBool(db.MultiAZ),
				StorageGB:     int(aws.ToInt32(db.AllocatedStorage)),
				ReadReplica:   db.ReadReplicaSourceDBInstanceIdentifier != nil,
				Serverless:    strings.HasPrefix(class, "db.serverless") || serverlessClusters[clusterID],
				ClusterID:     clusterID,
			})
		}
	}
	return dbs, nil
}

func parseRDSTags(tags []rdstypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
