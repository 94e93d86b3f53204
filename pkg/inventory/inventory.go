package inventory

import (
	"github.com/wastewatch/wastewatch/pkg/finding"
)

// CollectError records one resource type that could not be enumerated.
// A collection may be partial: one broken API never voids a region.
type CollectError struct {
	ResourceType finding.ResourceType
	Err          error
}

// Inventory is everything the adapter learned about one region. Support
// collections (route tables, interfaces, images, ...) exist so scenarios
// can resolve relationships without further provider calls.
type Inventory struct {
	Region string

	Volumes           []Volume
	PublicIPs         []PublicIP
	Snapshots         []Snapshot
	Instances         []Instance
	LoadBalancers     []LoadBalancer
	NatGateways       []NatGateway
	Databases         []Database
	Tables            []Table
	CacheClusters     []CacheCluster
	Warehouses        []Warehouse
	SearchDomains     []SearchDomain
	Streams           []Stream
	Buckets           []Bucket
	Functions         []Function
	LogGroups         []LogGroup
	Repos             []Repo
	ContainerClusters []ContainerCluster
	K8sClusters       []K8sCluster
	Zones             []Zone
	HealthChecks      []HealthCheck
	WebACLs           []WebACL
	Roles             []Role

	RouteTables       []RouteTable
	Subnets           []Subnet
	NetworkInterfaces []NetworkInterface
	VPCEndpoints      []VPCEndpoint
	InternetGateways  []InternetGateway
	Images            []Image

	// LaunchedImageIDs holds AMI IDs seen in launch events over the
	// provenance window. Present only when the event digest succeeded.
	LaunchedImageIDs map[string]bool

	// UnhealthyTargets holds instance IDs currently failing target-group
	// health checks in this region.
	UnhealthyTargets map[string]bool

	Skipped []CollectError

	instanceByID map[string]*Instance
	volumeByID   map[string]*Volume
	imageByID    map[string]*Image
	subnetByID   map[string]*Subnet
}

// Finalize builds the lookup indexes. The collector calls it once after
// enumeration finishes; afterwards the inventory is read-only and safe for
// concurrent scenario evaluation.
func (inv *Inventory) Finalize() {
	inv.instanceByID = make(map[string]*Instance, len(inv.Instances))
	for i := range inv.Instances {
		inv.instanceByID[inv.Instances[i].ID] = &inv.Instances[i]
	}
	inv.volumeByID = make(map[string]*Volume, len(inv.Volumes))
	for i := range inv.Volumes {
		inv.volumeByID[inv.Volumes[i].ID] = &inv.Volumes[i]
	}
	inv.imageByID = make(map[string]*Image, len(inv.Images))
	for i := range inv.Images {
		inv.imageByID[inv.Images[i].ID] = &inv.Images[i]
	}
	inv.subnetByID = make(map[string]*Subnet, len(inv.Subnets))
	for i := range inv.Subnets {
		inv.subnetByID[inv.Subnets[i].ID] = &inv.Subnets[i]
	}
}

func (inv *Inventory) InstanceByID(id string) *Instance {
	return inv.instanceByID[id]
}

func (inv *Inventory) VolumeByID(id string) *Volume {
	return inv.volumeByID[id]
}

func (inv *Inventory) ImageByID(id string) *Image {
	return inv.imageByID[id]
}

func (inv *Inventory) SubnetByID(id string) *Subnet {
	return inv.subnetByID[id]
}

// RouteTablesForVPC returns the VPC's route tables.
func (inv *Inventory) RouteTablesForVPC(vpcID string) []RouteTable {
	var out []RouteTable
	for _, rt := range inv.RouteTables {
		if rt.VPCID == vpcID {
			out = append(out, rt)
		}
	}
	return out
}

// RoutesToNat returns the route tables carrying a route through the given
// NAT gateway.
func (inv *Inventory) RoutesToNat(natID string) []RouteTable {
	var out []RouteTable
	for _, rt := range inv.RouteTables {
		for _, r := range rt.Routes {
			if r.NatGatewayID == natID {
				out = append(out, rt)
				break
			}
		}
	}
	return out
}

// VPCHasInternetGateway reports whether any IGW is attached to the VPC.
func (inv *Inventory) VPCHasInternetGateway(vpcID string) bool {
	for _, igw := range inv.InternetGateways {
		for _, v := range igw.AttachedVPCs {
			if v == vpcID {
				return true
			}
		}
	}
	return false
}

// VPCHasGatewayEndpoint reports whether the VPC has a gateway endpoint
// whose service name ends with the given suffix ("s3", "dynamodb").
func (inv *Inventory) VPCHasGatewayEndpoint(vpcID, serviceSuffix string) bool {
	for _, ep := range inv.VPCEndpoints {
		if ep.VPCID == vpcID && ep.Type == "Gateway" && hasSuffix(ep.ServiceName, serviceSuffix) {
			return true
		}
	}
	return false
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// SubnetIsPublic reports whether the subnet routes 0.0.0.0/0 through an
// internet gateway, either via an explicit association or the VPC's main
// route table.
func (inv *Inventory) SubnetIsPublic(subnetID string) bool {
	sn := inv.SubnetByID(subnetID)
	if sn == nil {
		return false
	}

	var main *RouteTable
	for i, rt := range inv.RouteTables {
		if rt.VPCID != sn.VPCID {
			continue
		}
		if rt.Main {
			main = &inv.RouteTables[i]
		}
		for _, assoc := range rt.SubnetAssociations {
			if assoc == subnetID {
				return tableReachesInternet(rt)
			}
		}
	}
	if main != nil {
		return tableReachesInternet(*main)
	}
	return false
}

func tableReachesInternet(rt RouteTable) bool {
	for _, r := range rt.Routes {
		if r.DestinationCIDR == "0.0.0.0/0" && len(r.GatewayID) > 4 && r.GatewayID[:4] == "igw-" {
			return true
		}
	}
	return false
}

// SnapshotsForVolume returns the volume's snapshots, newest first not
// guaranteed; callers sort as needed.
func (inv *Inventory) SnapshotsForVolume(volumeID string) []Snapshot {
	var out []Snapshot
	for _, s := range inv.Snapshots {
		if s.VolumeID == volumeID {
			out = append(out, s)
		}
	}
	return out
}

// VolumesForInstance returns the volumes attached to one instance.
func (inv *Inventory) VolumesForInstance(instanceID string) []Volume {
	var out []Volume
	for _, v := range inv.Volumes {
		if v.AttachedTo == instanceID {
			out = append(out, v)
		}
	}
	return out
}

// PublicIPsForInstance counts addresses bound to one instance.
func (inv *Inventory) PublicIPsForInstance(instanceID string) []PublicIP {
	var out []PublicIP
	for _, ip := range inv.PublicIPs {
		if ip.InstanceID == instanceID {
			out = append(out, ip)
		}
	}
	return out
}

// NatGatewaysInVPCAndAZ groups NATs sharing a VPC and availability zone,
// resolved through their subnets.
func (inv *Inventory) NatGatewaysInVPCAndAZ(vpcID, az string) []NatGateway {
	var out []NatGateway
	for _, nat := range inv.NatGateways {
		if nat.VPCID != vpcID {
			continue
		}
		if sn := inv.SubnetByID(nat.SubnetID); sn != nil && sn.AZ == az {
			out = append(out, nat)
		}
	}
	return out
}

// ImageWasLaunched reports whether the AMI appeared in any launch event
// during the provenance window. ok is false when the digest is missing and
// absence cannot be asserted.
func (inv *Inventory) ImageWasLaunched(imageID string) (launched, ok bool) {
	if inv.LaunchedImageIDs == nil {
		return false, false
	}
	return inv.LaunchedImageIDs[imageID], true
}
