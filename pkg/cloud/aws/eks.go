package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type eksAPI interface {
	ListClusters(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
	ListNodegroups(ctx context.Context, params *eks.ListNodegroupsInput, optFns ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
}

type k8sCollector struct {
	api    eksAPI
	region string
}

func newK8sCollector(api eksAPI, region string) *k8sCollector {
	return &k8sCollector{api: api, region: region}
}

func (c *k8sCollector) K8sClusters(ctx context.Context) ([]inventory.K8sCluster, error) {
	var clusters []inventory.K8sCluster
	paginator := eks.NewListClustersPaginator(c.api, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("eks.ListClusters", err)
		}
		for _, name := range page.Clusters {
			described, err := c.api.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, cloud.Classify("eks.DescribeCluster", err)
			}
			cl := described.Cluster
			if cl == nil {
				continue
			}
			item := inventory.K8sCluster{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: aws.ToTime(cl.CreatedAt),
					Tags:      cl.Tags,
				},
				Status:  string(cl.Status),
				Version: aws.ToString(cl.Version),
				// Unknown until the live enricher fills them in.
				LiveNodes:     -1,
				LiveWorkloads: -1,
			}

			groups := eks.NewListNodegroupsPaginator(c.api, &eks.ListNodegroupsInput{ClusterName: aws.String(name)})
			for groups.HasMorePages() {
				groupPage, err := groups.NextPage(ctx)
				if err != nil {
					return nil, cloud.Classify("eks.ListNodegroups", err)
				}
				for _, groupName := range groupPage.Nodegroups {
					ng, err := c.api.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
						ClusterName:   aws.String(name),
						NodegroupName: aws.String(groupName),
					})
					if err != nil {
						return nil, cloud.Classify("eks.DescribeNodegroup", err)
					}
					if ng.Nodegroup == nil {
						continue
					}
					group := inventory.NodeGroup{
						Name:   groupName,
						Status: string(ng.Nodegroup.Status),
					}
					if sc := ng.Nodegroup.ScalingConfig; sc != nil {
						group.DesiredSize = int(aws.ToInt32(sc.DesiredSize))
					}
					item.NodeGroups = append(item.NodeGroups, group)
				}
			}
			clusters = append(clusters, item)
		}
	}
	return clusters, nil
}

// enrichClusters overlays live observations on collected EKS inventory when
// an enricher was configured. Best effort: a cluster the kubeconfig cannot
// reach keeps its unknown sentinels and the scan continues without it.
func (a *Adapter) enrichClusters(ctx context.Context, inv *inventory.Inventory) {
	if a.enricher == nil || len(inv.K8sClusters) == 0 {
		return
	}
	name := a.enrichCluster
	if name == "" {
		if len(inv.K8sClusters) > 1 {
			a.logger.Warn("cluster enrichment skipped",
				"region", inv.Region,
				"reason", "several clusters present and no cluster name configured")
			return
		}
		name = inv.K8sClusters[0].Name
	}
	if err := a.enricher.Enrich(ctx, inv, name); err != nil {
		a.logger.Warn("cluster enrichment failed", "cluster", name, "error", err)
	}
}
