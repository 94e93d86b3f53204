package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	ostypes "github.com/aws/aws-sdk-go-v2/service/opensearch/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type opensearchAPI interface {
	ListDomainNames(ctx context.Context, params *opensearch.ListDomainNamesInput, optFns ...func(*opensearch.Options)) (*opensearch.ListDomainNamesOutput, error)
	DescribeDomains(ctx context.Context, params *opensearch.DescribeDomainsInput, optFns ...func(*opensearch.Options)) (*opensearch.DescribeDomainsOutput, error)
	ListTags(ctx context.Context, params *opensearch.ListTagsInput, optFns ...func(*opensearch.Options)) (*opensearch.ListTagsOutput, error)
}

type searchCollector struct {
	api    opensearchAPI
	region string
}

func newSearchCollector(api opensearchAPI, region string) *searchCollector {
	return &searchCollector{api: api, region: region}
}

// SearchDomains lists OpenSearch and legacy Elasticsearch domains. The API
// exposes no creation time, so CreatedAt stays zero and age-based checks
// sit out for this type.
func (c *searchCollector) SearchDomains(ctx context.Context) ([]inventory.SearchDomain, error) {
	names, err := c.api.ListDomainNames(ctx, &opensearch.ListDomainNamesInput{})
	if err != nil {
		return nil, cloud.Classify("opensearch.ListDomainNames", err)
	}
	if len(names.DomainNames) == 0 {
		return nil, nil
	}

	var domains []inventory.SearchDomain
	// DescribeDomains takes at most five names per call.
	for start := 0; start < len(names.DomainNames); start += 5 {
		end := min(start+5, len(names.DomainNames))
		batch := make([]string, 0, end-start)
		for _, info := range names.DomainNames[start:end] {
			batch = append(batch, aws.ToString(info.DomainName))
		}
		described, err := c.api.DescribeDomains(ctx, &opensearch.DescribeDomainsInput{DomainNames: batch})
		if err != nil {
			return nil, cloud.Classify("opensearch.DescribeDomains", err)
		}
		for _, status := range described.DomainStatusList {
			if aws.ToBool(status.Deleted) {
				continue
			}
			name := aws.ToString(status.DomainName)
			item := inventory.SearchDomain{
				Meta: inventory.Meta{
					ID:     name,
					Name:   name,
					Region: c.region,
				},
				EngineVersion: aws.ToString(status.EngineVersion),
			}
			if status.ClusterConfig != nil {
				item.InstanceType = string(status.ClusterConfig.InstanceType)
				item.InstanceCount = int(aws.ToInt32(status.ClusterConfig.InstanceCount))
			}
			if status.ARN != nil {
				tags, err := c.api.ListTags(ctx, &opensearch.ListTagsInput{ARN: status.ARN})
				if err != nil {
					return nil, cloud.Classify("opensearch.ListTags", err)
				}
				item.Tags = parseSearchTags(tags.TagList)
			}
			domains = append(domains, item)
		}
	}
	return domains, nil
}

func parseSearchTags(tags []ostypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
