package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type route53API interface {
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ListHealthChecks(ctx context.Context, params *route53.ListHealthChecksInput, optFns ...func(*route53.Options)) (*route53.ListHealthChecksOutput, error)
	ListTagsForResources(ctx context.Context, params *route53.ListTagsForResourcesInput, optFns ...func(*route53.Options)) (*route53.ListTagsForResourcesOutput, error)
}

type dnsCollector struct {
	api route53API
}

func newDNSCollector(api route53API) *dnsCollector {
	return &dnsCollector{api: api}
}

// Zones lists hosted zones and health checks. A health check is in use when
// any record set across any zone references it.
func (c *dnsCollector) Zones(ctx context.Context) ([]inventory.Zone, []inventory.HealthCheck, error) {
	var zones []inventory.Zone
	referenced := make(map[string]bool)

	paginator := route53.NewListHostedZonesPaginator(c.api, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, cloud.Classify("route53.ListHostedZones", err)
		}
		for _, zone := range page.HostedZones {
			id := strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
			item := inventory.Zone{
				Meta: inventory.Meta{
					ID:     id,
					Name:   strings.TrimSuffix(aws.ToString(zone.Name), "."),
					Region: finding.RegionGlobal,
				},
				RecordCount: aws.ToInt64(zone.ResourceRecordSetCount),
			}
			if zone.Config != nil {
				item.Private = zone.Config.PrivateZone
			}
			if err := c.recordHealthCheckRefs(ctx, id, referenced); err != nil {
				return nil, nil, err
			}
			zones = append(zones, item)
		}
	}

	checks, err := c.healthChecks(ctx, referenced)
	if err != nil {
		return nil, nil, err
	}

	if err := c.attachTags(ctx, r53types.TagResourceTypeHostedzone, zoneMetas(zones)); err != nil {
		return nil, nil, err
	}
	return zones, checks, nil
}

// recordHealthCheckRefs walks a zone's record sets noting health-check ids.
// The operation paginates on a composite cursor, so no generated paginator
// exists.
func (c *dnsCollector) recordHealthCheckRefs(ctx context.Context, zoneID string, refs map[string]bool) error {
	input := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}
	for {
		page, err := c.api.ListResourceRecordSets(ctx, input)
		if err != nil {
			return cloud.Classify("route53.ListResourceRecordSets", err)
		}
		for _, rr := range page.ResourceRecordSets {
			if rr.HealthCheckId != nil {
				refs[*rr.HealthCheckId] = true
			}
		}
		if !page.IsTruncated {
			return nil
		}
		input.StartRecordName = page.NextRecordName
		input.StartRecordType = page.NextRecordType
		input.StartRecordIdentifier = page.NextRecordIdentifier
	}
}

func (c *dnsCollector) healthChecks(ctx context.Context, referenced map[string]bool) ([]inventory.HealthCheck, error) {
	var checks []inventory.HealthCheck
	paginator := route53.NewListHealthChecksPaginator(c.api, &route53.ListHealthChecksInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("route53.ListHealthChecks", err)
		}
		for _, hc := range page.HealthChecks {
			id := aws.ToString(hc.Id)
			checks = append(checks, inventory.HealthCheck{
				Meta: inventory.Meta{
					ID:     id,
					Name:   id,
					Region: finding.RegionGlobal,
				},
				InUse: referenced[id],
			})
		}
	}
	if err := c.attachTags(ctx, r53types.TagResourceTypeHealthcheck, checkMetas(checks)); err != nil {
		return nil, err
	}
	return checks, nil
}

// attachTags fills Tags on the given metas, ten resources per call.
func (c *dnsCollector) attachTags(ctx context.Context, rtype r53types.TagResourceType, metas []*inventory.Meta) error {
	byID := make(map[string]*inventory.Meta, len(metas))
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	for start := 0; start < len(ids); start += 10 {
		end := min(start+10, len(ids))
		tags, err := c.api.ListTagsForResources(ctx, &route53.ListTagsForResourcesInput{
			ResourceType: rtype,
			ResourceIds:  ids[start:end],
		})
		if err != nil {
			return cloud.Classify("route53.ListTagsForResources", err)
		}
		for _, set := range tags.ResourceTagSets {
			m, ok := byID[aws.ToString(set.ResourceId)]
			if !ok {
				continue
			}
			m.Tags = parseRoute53Tags(set.Tags)
			if name, ok := m.Tags["Name"]; ok && m.Name == m.ID {
				m.Name = name
			}
		}
	}
	return nil
}

func zoneMetas(zones []inventory.Zone) []*inventory.Meta {
	out := make([]*inventory.Meta, len(zones))
	for i := range zones {
		out[i] = &zones[i].Meta
	}
	return out
}

func checkMetas(checks []inventory.HealthCheck) []*inventory.Meta {
	out := make([]*inventory.Meta, len(checks))
	for i := range checks {
		out[i] = &checks[i].Meta
	}
	return out
}

func parseRoute53Tags(tags []r53types.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
