package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"
	waftypes "github.com/aws/aws-sdk-go-v2/service/wafv2/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type wafAPI interface {
	ListWebACLs(ctx context.Context, params *wafv2.ListWebACLsInput, optFns ...func(*wafv2.Options)) (*wafv2.ListWebACLsOutput, error)
	GetWebACL(ctx context.Context, params *wafv2.GetWebACLInput, optFns ...func(*wafv2.Options)) (*wafv2.GetWebACLOutput, error)
	ListResourcesForWebACL(ctx context.Context, params *wafv2.ListResourcesForWebACLInput, optFns ...func(*wafv2.Options)) (*wafv2.ListResourcesForWebACLOutput, error)
	ListTagsForResource(ctx context.Context, params *wafv2.ListTagsForResourceInput, optFns ...func(*wafv2.Options)) (*wafv2.ListTagsForResourceOutput, error)
}

type wafCollector struct {
	api    wafAPI
	region string
}

func newWAFCollector(api wafAPI, region string) *wafCollector {
	return &wafCollector{api: api, region: region}
}

// WebACLs lists regional web ACLs with their rule and association counts.
// ListWebACLs paginates on NextMarker by hand; the SDK generates no
// paginator for it.
func (c *wafCollector) WebACLs(ctx context.Context) ([]inventory.WebACL, error) {
	var acls []inventory.WebACL
	input := &wafv2.ListWebACLsInput{Scope: waftypes.ScopeRegional}
	for {
		page, err := c.api.ListWebACLs(ctx, input)
		if err != nil {
			return nil, cloud.Classify("wafv2.ListWebACLs", err)
		}
		for _, summary := range page.WebACLs {
			item := inventory.WebACL{
				Meta: inventory.Meta{
					ID:     aws.ToString(summary.Id),
					Name:   aws.ToString(summary.Name),
					Region: c.region,
				},
				Scope: string(waftypes.ScopeRegional),
			}

			acl, err := c.api.GetWebACL(ctx, &wafv2.GetWebACLInput{
				Name:  summary.Name,
				Id:    summary.Id,
				Scope: waftypes.ScopeRegional,
			})
			if err != nil {
				return nil, cloud.Classify("wafv2.GetWebACL", err)
			}
			if acl.WebACL != nil {
				item.RuleCount = len(acl.WebACL.Rules)
			}

			resources, err := c.api.ListResourcesForWebACL(ctx, &wafv2.ListResourcesForWebACLInput{
				WebACLArn: summary.ARN,
			})
			if err != nil {
				return nil, cloud.Classify("wafv2.ListResourcesForWebACL", err)
			}
			item.AssociatedResources = len(resources.ResourceArns)

			tags, err := c.api.ListTagsForResource(ctx, &wafv2.ListTagsForResourceInput{ResourceARN: summary.ARN})
			if err != nil {
				return nil, cloud.Classify("wafv2.ListTagsForResource", err)
			}
			if tags.TagInfoForResource != nil {
				item.Tags = parseWAFTags(tags.TagInfoForResource.TagList)
			}

			acls = append(acls, item)
		}
		if page.NextMarker == nil || aws.ToString(page.NextMarker) == "" {
			return acls, nil
		}
		input.NextMarker = page.NextMarker
	}
}

func parseWAFTags(tags []waftypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
