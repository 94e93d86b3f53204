package aws

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type ec2API interface {
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DescribeNatGateways(ctx context.Context, params *ec2.DescribeNatGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
	DescribeVpcEndpoints(ctx context.Context, params *ec2.DescribeVpcEndpointsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointsOutput, error)
	DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

type ec2Collector struct {
	api    ec2API
	region string
}

func newEC2Collector(api ec2API, region string) *ec2Collector {
	return &ec2Collector{api: api, region: region}
}

func (c *ec2Collector) meta(id string, created time.Time, tags map[string]string) inventory.Meta {
	return inventory.Meta{ID: id, Name: tags["Name"], Region: c.region, CreatedAt: created, Tags: tags}
}

func (c *ec2Collector) Volumes(ctx context.Context) ([]inventory.Volume, error) {
	var out []inventory.Volume
	paginator := ec2.NewDescribeVolumesPaginator(c.api, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeVolumes", err)
		}
		for _, v := range page.Volumes {
			vol := inventory.Volume{
				Meta:            c.meta(aws.ToString(v.VolumeId), aws.ToTime(v.CreateTime), parseEC2Tags(v.Tags)),
				State:           string(v.State),
				Type:            string(v.VolumeType),
				SizeGiB:         int(aws.ToInt32(v.Size)),
				IOPS:            int(aws.ToInt32(v.Iops)),
				ThroughputMiBps: int(aws.ToInt32(v.Throughput)),
				Encrypted:       aws.ToBool(v.Encrypted),
			}
			for _, att := range v.Attachments {
				if att.State == ec2types.VolumeAttachmentStateAttached || att.State == ec2types.VolumeAttachmentStateAttaching {
					vol.AttachedTo = aws.ToString(att.InstanceId)
					break
				}
			}
			out = append(out, vol)
		}
	}
	return out, nil
}

// sourceImagePattern pulls the AMI id out of CreateImage descriptions like
// "Created by CreateImage(i-0abc) for ami-0def from vol-0123".
var sourceImagePattern = regexp.MustCompile(`\bami-[0-9a-f]+\b`)

func (c *ec2Collector) Snapshots(ctx context.Context) ([]inventory.Snapshot, error) {
	var out []inventory.Snapshot
	paginator := ec2.NewDescribeSnapshotsPaginator(c.api, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeSnapshots", err)
		}
		for _, s := range page.Snapshots {
			desc := aws.ToString(s.Description)
			snap := inventory.Snapshot{
				Meta:        c.meta(aws.ToString(s.SnapshotId), aws.ToTime(s.StartTime), parseEC2Tags(s.Tags)),
				State:       string(s.State),
				VolumeID:    aws.ToString(s.VolumeId),
				SizeGiB:     int(aws.ToInt32(s.VolumeSize)),
				Description: desc,
				Encrypted:   aws.ToBool(s.Encrypted),
			}
			if strings.Contains(desc, "CreateImage") {
				snap.SourceImageID = sourceImagePattern.FindString(desc)
			}
			out = append(out, snap)
		}
	}
	return out, nil
}

func (c *ec2Collector) Instances(ctx context.Context) ([]inventory.Instance, error) {
	var out []inventory.Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.api, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeInstances", err)
		}
		for _, res := range page.Reservations {
			for _, in := range res.Instances {
				state := ""
				if in.State != nil {
					state = string(in.State.Name)
				}
				if state == "terminated" || state == "shutting-down" {
					continue
				}
				inst := inventory.Instance{
					Meta:     c.meta(aws.ToString(in.InstanceId), aws.ToTime(in.LaunchTime), parseEC2Tags(in.Tags)),
					State:    state,
					Type:     string(in.InstanceType),
					Platform: aws.ToString(in.PlatformDetails),
					Spot:     in.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot,
				}
				if state == "stopped" {
					since, exact := parseStateTransitionTime(aws.ToString(in.StateTransitionReason))
					if !exact {
						// The transition reason carries no timestamp on
						// some code paths; the launch time bounds the
						// stop from above.
						since = aws.ToTime(in.LaunchTime)
					}
					inst.StoppedSince = since
					inst.StoppedSinceEstimated = !exact
				}
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

// parseStateTransitionTime extracts the timestamp EC2 embeds in reasons
// like "User initiated (2025-06-01 12:34:56 GMT)".
func parseStateTransitionTime(reason string) (time.Time, bool) {
	open := strings.LastIndexByte(reason, '(')
	end := strings.LastIndexByte(reason, ')')
	if open < 0 || end <= open {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05 MST", reason[open+1:end])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *ec2Collector) Addresses(ctx context.Context) ([]inventory.PublicIP, error) {
	out, err := c.api.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, cloud.Classify("ec2.DescribeAddresses", err)
	}
	ips := make([]inventory.PublicIP, 0, len(out.Addresses))
	for _, a := range out.Addresses {
		id := aws.ToString(a.AllocationId)
		if id == "" {
			id = aws.ToString(a.PublicIp)
		}
		ips = append(ips, inventory.PublicIP{
			Meta:               c.meta(id, time.Time{}, parseEC2Tags(a.Tags)),
			Address:            aws.ToString(a.PublicIp),
			AssociationID:      aws.ToString(a.AssociationId),
			InstanceID:         aws.ToString(a.InstanceId),
			NetworkInterfaceID: aws.ToString(a.NetworkInterfaceId),
		})
	}
	return ips, nil
}

// NatGateways returns the gateways plus the allocation ids of the public
// addresses fronting them, so the caller can mark those addresses.
func (c *ec2Collector) NatGateways(ctx context.Context) ([]inventory.NatGateway, map[string]string, error) {
	var out []inventory.NatGateway
	natByAllocation := make(map[string]string)
	paginator := ec2.NewDescribeNatGatewaysPaginator(c.api, &ec2.DescribeNatGatewaysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, cloud.Classify("ec2.DescribeNatGateways", err)
		}
		for _, n := range page.NatGateways {
			state := string(n.State)
			if state == "deleted" || state == "deleting" {
				continue
			}
			id := aws.ToString(n.NatGatewayId)
			out = append(out, inventory.NatGateway{
				Meta:     c.meta(id, aws.ToTime(n.CreateTime), parseEC2Tags(n.Tags)),
				State:    state,
				VPCID:    aws.ToString(n.VpcId),
				SubnetID: aws.ToString(n.SubnetId),
			})
			for _, addr := range n.NatGatewayAddresses {
				if alloc := aws.ToString(addr.AllocationId); alloc != "" {
					natByAllocation[alloc] = id
				}
			}
		}
	}
	return out, natByAllocation, nil
}

func (c *ec2Collector) RouteTables(ctx context.Context) ([]inventory.RouteTable, error) {
	var out []inventory.RouteTable
	paginator := ec2.NewDescribeRouteTablesPaginator(c.api, &ec2.DescribeRouteTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeRouteTables", err)
		}
		for _, rt := range page.RouteTables {
			table := inventory.RouteTable{
				Meta:  c.meta(aws.ToString(rt.RouteTableId), time.Time{}, parseEC2Tags(rt.Tags)),
				VPCID: aws.ToString(rt.VpcId),
			}
			for _, r := range rt.Routes {
				table.Routes = append(table.Routes, inventory.Route{
					DestinationCIDR: aws.ToString(r.DestinationCidrBlock),
					NatGatewayID:    aws.ToString(r.NatGatewayId),
					GatewayID:       aws.ToString(r.GatewayId),
				})
			}
			for _, assoc := range rt.Associations {
				if aws.ToBool(assoc.Main) {
					table.Main = true
				}
				if sn := aws.ToString(assoc.SubnetId); sn != "" {
					table.SubnetAssociations = append(table.SubnetAssociations, sn)
				}
			}
			out = append(out, table)
		}
	}
	return out, nil
}

func (c *ec2Collector) Subnets(ctx context.Context) ([]inventory.Subnet, error) {
	var out []inventory.Subnet
	paginator := ec2.NewDescribeSubnetsPaginator(c.api, &ec2.DescribeSubnetsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeSubnets", err)
		}
		for _, s := range page.Subnets {
			out = append(out, inventory.Subnet{
				Meta:  c.meta(aws.ToString(s.SubnetId), time.Time{}, parseEC2Tags(s.Tags)),
				VPCID: aws.ToString(s.VpcId),
				AZ:    aws.ToString(s.AvailabilityZone),
			})
		}
	}
	return out, nil
}

func (c *ec2Collector) NetworkInterfaces(ctx context.Context) ([]inventory.NetworkInterface, error) {
	var out []inventory.NetworkInterface
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(c.api, &ec2.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeNetworkInterfaces", err)
		}
		for _, eni := range page.NetworkInterfaces {
			out = append(out, inventory.NetworkInterface{
				Meta:        c.meta(aws.ToString(eni.NetworkInterfaceId), time.Time{}, parseEC2Tags(eni.TagSet)),
				Status:      string(eni.Status),
				Description: aws.ToString(eni.Description),
			})
		}
	}
	return out, nil
}

func (c *ec2Collector) VPCEndpoints(ctx context.Context) ([]inventory.VPCEndpoint, error) {
	var out []inventory.VPCEndpoint
	paginator := ec2.NewDescribeVpcEndpointsPaginator(c.api, &ec2.DescribeVpcEndpointsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeVpcEndpoints", err)
		}
		for _, ep := range page.VpcEndpoints {
			out = append(out, inventory.VPCEndpoint{
				Meta:        c.meta(aws.ToString(ep.VpcEndpointId), aws.ToTime(ep.CreationTimestamp), parseEC2Tags(ep.Tags)),
				VPCID:       aws.ToString(ep.VpcId),
				ServiceName: aws.ToString(ep.ServiceName),
				Type:        string(ep.VpcEndpointType),
			})
		}
	}
	return out, nil
}

func (c *ec2Collector) InternetGateways(ctx context.Context) ([]inventory.InternetGateway, error) {
	var out []inventory.InternetGateway
	paginator := ec2.NewDescribeInternetGatewaysPaginator(c.api, &ec2.DescribeInternetGatewaysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeInternetGateways", err)
		}
		for _, igw := range page.InternetGateways {
			g := inventory.InternetGateway{
				Meta: c.meta(aws.ToString(igw.InternetGatewayId), time.Time{}, parseEC2Tags(igw.Tags)),
			}
			for _, att := range igw.Attachments {
				if v := aws.ToString(att.VpcId); v != "" {
					g.AttachedVPCs = append(g.AttachedVPCs, v)
				}
			}
			out = append(out, g)
		}
	}
	return out, nil
}

func (c *ec2Collector) Images(ctx context.Context) ([]inventory.Image, error) {
	var out []inventory.Image
	paginator := ec2.NewDescribeImagesPaginator(c.api, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, cloud.Classify("ec2.DescribeImages", err)
		}
		for _, img := range page.Images {
			created, _ := time.Parse(time.RFC3339, aws.ToString(img.CreationDate))
			image := inventory.Image{
				Meta:   c.meta(aws.ToString(img.ImageId), created, parseEC2Tags(img.Tags)),
				State:  string(img.State),
				Public: aws.ToBool(img.Public),
			}
			if image.Name == "" {
				image.Name = aws.ToString(img.Name)
			}
			for _, bdm := range img.BlockDeviceMappings {
				if bdm.Ebs != nil {
					if id := aws.ToString(bdm.Ebs.SnapshotId); id != "" {
						image.SnapshotIDs = append(image.SnapshotIDs, id)
					}
				}
			}
			out = append(out, image)
		}
	}
	return out, nil
}

func parseEC2Tags(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
