package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type ecsAPI interface {
	ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error)
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
	ListServices(ctx context.Context, params *ecs.ListServicesInput, optFns ...func(*ecs.Options)) (*ecs.ListServicesOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
}

type containerCollector struct {
	api    ecsAPI
	region string
}

func newContainerCollector(api ecsAPI, region string) *containerCollector {
	return &containerCollector{api: api, region: region}
}

func (c *containerCollector) ContainerClusters(ctx context.Context) ([]inventory.ContainerCluster, error) {
	var arns []string
	paginator := ecs.NewListClustersPaginator(c.api, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ecs.ListClusters", err)
		}
		arns = append(arns, page.ClusterArns...)
	}
	if len(arns) == 0 {
		return nil, nil
	}

	var clusters []inventory.ContainerCluster
	for start := 0; start < len(arns); start += 100 {
		end := min(start+100, len(arns))
		described, err := c.api.DescribeClusters(ctx, &ecs.DescribeClustersInput{
			Clusters: arns[start:end],
			Include:  []ecstypes.ClusterField{ecstypes.ClusterFieldTags},
		})
		if err != nil {
			return nil, cloud.Classify("ecs.DescribeClusters", err)
		}
		for _, cl := range described.Clusters {
			if aws.ToString(cl.Status) == "INACTIVE" {
				continue
			}
			item := inventory.ContainerCluster{
				Meta: inventory.Meta{
					ID:     aws.ToString(cl.ClusterArn),
					Name:   aws.ToString(cl.ClusterName),
					Region: c.region,
					Tags:   parseECSTags(cl.Tags),
				},
				Status:              aws.ToString(cl.Status),
				ActiveServices:      int(cl.ActiveServicesCount),
				RunningTasks:        int(cl.RunningTasksCount),
				RegisteredInstances: int(cl.RegisteredContainerInstancesCount),
			}
			services, err := c.services(ctx, aws.ToString(cl.ClusterArn), aws.ToString(cl.ClusterName))
			if err != nil {
				return nil, err
			}
			item.Services = services
			clusters = append(clusters, item)
		}
	}
	return clusters, nil
}

func (c *containerCollector) services(ctx context.Context, clusterArn, clusterName string) ([]inventory.ContainerService, error) {
	var arns []string
	paginator := ecs.NewListServicesPaginator(c.api, &ecs.ListServicesInput{Cluster: aws.String(clusterArn)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ecs.ListServices", err)
		}
		arns = append(arns, page.ServiceArns...)
	}

	var services []inventory.ContainerService
	// DescribeServices takes at most ten services per call.
	for start := 0; start < len(arns); start += 10 {
		end := min(start+10, len(arns))
		described, err := c.api.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  aws.String(clusterArn),
			Services: arns[start:end],
			Include:  []ecstypes.ServiceField{ecstypes.ServiceFieldTags},
		})
		if err != nil {
			return nil, cloud.Classify("ecs.DescribeServices", err)
		}
		for _, svc := range described.Services {
			if aws.ToString(svc.Status) == "INACTIVE" {
				continue
			}
			services = append(services, inventory.ContainerService{
				Meta: inventory.Meta{
					ID:        aws.ToString(svc.ServiceArn),
					Name:      aws.ToString(svc.ServiceName),
					Region:    c.region,
					CreatedAt: aws.ToTime(svc.CreatedAt),
					Tags:      parseECSTags(svc.Tags),
				},
				Cluster:      clusterName,
				DesiredCount: int(svc.DesiredCount),
				RunningCount: int(svc.RunningCount),
				LaunchType:   string(svc.LaunchType),
			})
		}
	}
	return services, nil
}

func parseECSTags(tags []ecstypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
