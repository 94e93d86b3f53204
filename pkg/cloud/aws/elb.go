package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type elbv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeListeners(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elbv2.DescribeTargetGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error)
	DescribeTargetHealth(ctx context.Context, params *elbv2.DescribeTargetHealthInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error)
	DescribeLoadBalancerAttributes(ctx context.Context, params *elbv2.DescribeLoadBalancerAttributesInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancerAttributesOutput, error)
	DescribeTags(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error)
}

type classicELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error)
	DescribeInstanceHealth(ctx context.Context, params *elb.DescribeInstanceHealthInput, optFns ...func(*elb.Options)) (*elb.DescribeInstanceHealthOutput, error)
	DescribeTags(ctx context.Context, params *elb.DescribeTagsInput, optFns ...func(*elb.Options)) (*elb.DescribeTagsOutput, error)
}

type elbCollector struct {
	v2      elbv2API
	classic classicELBAPI
	region  string
}

func newELBCollector(v2 elbv2API, classic classicELBAPI, region string) *elbCollector {
	return &elbCollector{v2: v2, classic: classic, region: region}
}

// LoadBalancers enumerates v2 and classic load balancers. The second
// return value is the set of instance ids currently failing a health
// check anywhere in the region.
func (c *elbCollector) LoadBalancers(ctx context.Context) ([]inventory.LoadBalancer, map[string]bool, error) {
	unhealthy := make(map[string]bool)

	lbs, err := c.collectV2(ctx, unhealthy)
	if err != nil {
		return nil, nil, err
	}
	classic, err := c.collectClassic(ctx, unhealthy)
	if err != nil {
		return nil, nil, err
	}
	return append(lbs, classic...), unhealthy, nil
}

func (c *elbCollector) collectV2(ctx context.Context, unhealthy map[string]bool) ([]inventory.LoadBalancer, error) {
	var lbs []inventory.LoadBalancer
	index := make(map[string]int) // arn -> lbs index

	paginator := elbv2.NewDescribeLoadBalancersPaginator(c.v2, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("elbv2.DescribeLoadBalancers", err)
		}
		for _, lb := range page.LoadBalancers {
			arn := aws.ToString(lb.LoadBalancerArn)
			item := inventory.LoadBalancer{
				Meta: inventory.Meta{
					ID:        arn,
					Name:      aws.ToString(lb.LoadBalancerName),
					Region:    c.region,
					CreatedAt: aws.ToTime(lb.CreatedTime),
				},
				Kind:   string(lb.Type),
				Scheme: string(lb.Scheme),
				VPCID:  aws.ToString(lb.VpcId),
				// ALBs always spread cross-zone; NLB attributes below
				// may flip this off.
				CrossZone: lb.Type == elbv2types.LoadBalancerTypeEnumApplication,
			}
			if lb.State != nil {
				item.State = string(lb.State.Code)
			}
			index[arn] = len(lbs)
			lbs = append(lbs, item)
		}
	}
	if len(lbs) == 0 {
		return nil, nil
	}

	for arn, i := range index {
		listeners, err := c.v2.DescribeListeners(ctx, &elbv2.DescribeListenersInput{LoadBalancerArn: aws.String(arn)})
		if err != nil {
			return nil, cloud.Classify("elbv2.DescribeListeners", err)
		}
		lbs[i].ListenerCount = len(listeners.Listeners)

		if lbs[i].Kind == string(elbv2types.LoadBalancerTypeEnumNetwork) {
			attrs, err := c.v2.DescribeLoadBalancerAttributes(ctx, &elbv2.DescribeLoadBalancerAttributesInput{LoadBalancerArn: aws.String(arn)})
			if err != nil {
				return nil, cloud.Classify("elbv2.DescribeLoadBalancerAttributes", err)
			}
			for _, a := range attrs.Attributes {
				if aws.ToString(a.Key) == "load_balancing.cross_zone.enabled" {
					lbs[i].CrossZone = aws.ToString(a.Value) == "true"
				}
			}
		}
	}

	// One target-group sweep covers every LB: each group names the
	// balancers it serves.
	tgPaginator := elbv2.NewDescribeTargetGroupsPaginator(c.v2, &elbv2.DescribeTargetGroupsInput{})
	for tgPaginator.HasMorePages() {
		page, err := tgPaginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("elbv2.DescribeTargetGroups", err)
		}
		for _, tg := range page.TargetGroups {
			if len(tg.LoadBalancerArns) == 0 {
				continue
			}
			health, err := c.v2.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{TargetGroupArn: tg.TargetGroupArn})
			if err != nil {
				return nil, cloud.Classify("elbv2.DescribeTargetHealth", err)
			}
			total, healthy := 0, 0
			for _, d := range health.TargetHealthDescriptions {
				total++
				state := elbv2types.TargetHealthStateEnum("")
				if d.TargetHealth != nil {
					state = d.TargetHealth.State
				}
				if state == elbv2types.TargetHealthStateEnumHealthy {
					healthy++
				} else if d.Target != nil {
					if id := aws.ToString(d.Target.Id); strings.HasPrefix(id, "i-") {
						unhealthy[id] = true
					}
				}
			}
			for _, arn := range tg.LoadBalancerArns {
				if i, ok := index[arn]; ok {
					lbs[i].TargetsTotal += total
					lbs[i].TargetsHealthy += healthy
				}
			}
		}
	}

	// Tags arrive in batches of twenty ARNs.
	arns := make([]string, 0, len(index))
	for arn := range index {
		arns = append(arns, arn)
	}
	for start := 0; start < len(arns); start += 20 {
		end := min(start+20, len(arns))
		tags, err := c.v2.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: arns[start:end]})
		if err != nil {
			return nil, cloud.Classify("elbv2.DescribeTags", err)
		}
		for _, desc := range tags.TagDescriptions {
			i, ok := index[aws.ToString(desc.ResourceArn)]
			if !ok {
				continue
			}
			lbs[i].Tags = parseELBV2Tags(desc.Tags)
		}
	}
	return lbs, nil
}

func (c *elbCollector) collectClassic(ctx context.Context, unhealthy map[string]bool) ([]inventory.LoadBalancer, error) {
	var lbs []inventory.LoadBalancer
	index := make(map[string]int) // name -> lbs index

	paginator := elb.NewDescribeLoadBalancersPaginator(c.classic, &elb.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("elb.DescribeLoadBalancers", err)
		}
		for _, lb := range page.LoadBalancerDescriptions {
			name := aws.ToString(lb.LoadBalancerName)
			item := inventory.LoadBalancer{
				Meta: inventory.Meta{
					ID:        name,
					Name:      name,
					Region:    c.region,
					CreatedAt: aws.ToTime(lb.CreatedTime),
				},
				Kind:          "classic",
				State:         "active",
				Scheme:        aws.ToString(lb.Scheme),
				VPCID:         aws.ToString(lb.VPCId),
				ListenerCount: len(lb.ListenerDescriptions),
				TargetsTotal:  len(lb.Instances),
				CrossZone:     true,
			}
			index[name] = len(lbs)
			lbs = append(lbs, item)
		}
	}
	if len(lbs) == 0 {
		return nil, nil
	}

	for name, i := range index {
		if lbs[i].TargetsTotal == 0 {
			continue
		}
		health, err := c.classic.DescribeInstanceHealth(ctx, &elb.DescribeInstanceHealthInput{LoadBalancerName: aws.String(name)})
		if err != nil {
			return nil, cloud.Classify("elb.DescribeInstanceHealth", err)
		}
		for _, st := range health.InstanceStates {
			if aws.ToString(st.State) == "InService" {
				lbs[i].TargetsHealthy++
			} else if st.InstanceId != nil {
				unhealthy[*st.InstanceId] = true
			}
		}
	}

	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	for start := 0; start < len(names); start += 20 {
		end := min(start+20, len(names))
		tags, err := c.classic.DescribeTags(ctx, &elb.DescribeTagsInput{LoadBalancerNames: names[start:end]})
		if err != nil {
			return nil, cloud.Classify("elb.DescribeTags", err)
		}
		for _, desc := range tags.TagDescriptions {
			i, ok := index[aws.ToString(desc.LoadBalancerName)]
			if !ok {
				continue
			}
			lbs[i].Tags = parseClassicELBTags(desc.Tags)
		}
	}
	return lbs, nil
}

func parseELBV2Tags(tags []elbv2types.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}

func parseClassicELBTags(tags []elbtypes.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
