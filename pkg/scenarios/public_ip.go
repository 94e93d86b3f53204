package scenarios

import (
	"context"
	"fmt"
	"sort"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "unassociated",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Allocated public address associated with nothing",
		Detect:       detectUnassociatedIPs,
	})
	Register(Scenario{
		ID:           "associated_stopped_instance",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Public address held by a stopped instance",
		Detect:       detectIPsOnStoppedInstances,
	})
	Register(Scenario{
		ID:           "extra_per_instance",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "More than one public address on a single instance without an HA tag",
		Detect:       detectExtraIPsPerInstance,
	})
	Register(Scenario{
		ID:           "detached_interface",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Public address bound to a network interface that is attached to nothing",
		Detect:       detectIPsOnDetachedInterfaces,
	})
	Register(Scenario{
		ID:           "never_associated",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address never associated with anything since allocation",
		Detect:       detectNeverAssociatedIPs,
	})
	Register(Scenario{
		ID:           "idle_nat_association",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address fronting a NAT gateway that moves almost no traffic",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectIPsOnIdleNATs,
	})
	Register(Scenario{
		ID:           "zero_traffic_instance",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address on an instance that moved no network bytes across the lookback",
		Telemetry:    []string{"AWS/EC2 NetworkIn", "AWS/EC2 NetworkOut"},
		Detect:       detectIPsOnZeroTrafficInstances,
	})
	Register(Scenario{
		ID:           "low_traffic_instance",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address on an instance that moved only a token amount of traffic",
		Telemetry:    []string{"AWS/EC2 NetworkIn", "AWS/EC2 NetworkOut"},
		Detect:       detectIPsOnLowTrafficInstances,
	})
	Register(Scenario{
		ID:           "nat_no_connections",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address fronting a NAT gateway with zero active connections all lookback",
		Telemetry:    []string{"AWS/NATGateway ActiveConnectionCount"},
		Detect:       detectIPsOnConnectionlessNATs,
	})
	Register(Scenario{
		ID:           "unhealthy_target_ip",
		ResourceType: finding.TypePublicIP,
		Kind:         finding.CostAbsolute,
		Doc:          "Address on an instance that is failing its load balancer health checks",
		Detect:       detectIPsOnUnhealthyTargets,
	})
}

func natTraffic(ctx context.Context, sc *Context, natID string) metricops.Sample {
	return sc.Daily(ctx, finding.TypePublicIP, "AWS/NATGateway", "BytesOutToDestination", "Sum",
		map[string]string{"NatGatewayId": natID})
}

func instanceNetwork(ctx context.Context, sc *Context, rt finding.ResourceType, id string) (in, out metricops.Sample) {
	dims := map[string]string{"InstanceId": id}
	in = sc.Daily(ctx, rt, "AWS/EC2", "NetworkIn", "Sum", dims)
	out = sc.Daily(ctx, rt, "AWS/EC2", "NetworkOut", "Sum", dims)
	return in, out
}

func detectUnassociatedIPs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.AssociationID != "" {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "unassociated",
			"address is allocated but associated with nothing", sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		f.Metadata.SetDetail("address", ip.Address)
		out = append(out, f)
	}
	return out
}

func detectIPsOnStoppedInstances(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.InstanceID == "" {
			continue
		}
		inst := sc.Inventory.InstanceByID(ip.InstanceID)
		if inst == nil || inst.State != "stopped" || inst.StoppedSince.IsZero() {
			continue
		}
		stoppedDays := finding.AgeDays(inst.StoppedSince, sc.Now)
		qualifier := ""
		if inst.StoppedSinceEstimated {
			qualifier = "at least "
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "associated_stopped_instance",
			fmt.Sprintf("bound to %s, stopped for %s%d days; the address bills the whole time", ip.InstanceID, qualifier, stoppedDays),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, sc.Rules.LadderFor(finding.TypePublicIP).ForAge(stoppedDays))
		f.Metadata.AlreadyWasted = finding.WastedToDate(f.MonthlyCost, stoppedDays)
		f.Metadata.SetDetail("instance_id", ip.InstanceID)
		f.Metadata.SetSignal("instance_stopped_days", float64(stoppedDays))
		out = append(out, f)
	}
	return out
}

func detectExtraIPsPerInstance(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.PublicIP
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		addrs := sc.Inventory.PublicIPsForInstance(inst.ID)
		if len(addrs) <= 1 || inst.HasAnyTagKey(r.HAExemptTagKeys) {
			continue
		}
		// Keep the longest-held address, flag the rest. Unknown
		// allocation times sort last so a known history always wins the
		// keeper slot; the ID tiebreak keeps reruns stable.
		sort.Slice(addrs, func(i, j int) bool {
			ti, tj := addrs[i].CreatedAt, addrs[j].CreatedAt
			if ti.IsZero() != tj.IsZero() {
				return !ti.IsZero()
			}
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return addrs[i].ID < addrs[j].ID
		})
		for _, ip := range addrs[1:] {
			if ip.HasAnyTagKey(r.HAExemptTagKeys) {
				continue
			}
			f := sc.newFinding(finding.TypePublicIP, ip.Meta, "extra_per_instance",
				fmt.Sprintf("%s holds %d public addresses and carries no HA tag", inst.ID, len(addrs)),
				sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
			f.Metadata.SetDetail("instance_id", inst.ID)
			f.Metadata.SetSignal("addresses_on_instance", float64(len(addrs)))
			out = append(out, f)
		}
	}
	return out
}

func detectIPsOnDetachedInterfaces(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.NetworkInterfaceID == "" || ip.InstanceID != "" || ip.NatGatewayID != "" {
			continue
		}
		for _, eni := range sc.Inventory.NetworkInterfaces {
			if eni.ID != ip.NetworkInterfaceID || eni.Status != "available" {
				continue
			}
			f := sc.newFinding(finding.TypePublicIP, ip.Meta, "detached_interface",
				fmt.Sprintf("bound to %s, which is attached to nothing", eni.ID),
				sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
			raise(&f, finding.ConfidenceMedium)
			f.Metadata.SetDetail("network_interface_id", eni.ID)
			out = append(out, f)
		}
	}
	return out
}

func detectNeverAssociatedIPs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if !ip.NeverAssociated || ip.AssociationID != "" {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "never_associated",
			"allocation events show the address was never associated with anything",
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		f.Metadata.SetDetail("address", ip.Address)
		f.Metadata.SetDetail("evidence_source", "allocation event digest")
		out = append(out, f)
	}
	return out
}

func detectIPsOnIdleNATs(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypePublicIP)
	threshold := sc.Rules.NATGateway.LowTrafficGBMonth
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.NatGatewayID == "" {
			continue
		}
		traffic := natTraffic(ctx, sc, ip.NatGatewayID)
		if !fullWindow(days, traffic) {
			continue
		}
		gbMonth := traffic.Sum() / float64(days) * 30 / (1 << 30)
		if gbMonth >= threshold {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "idle_nat_association",
			fmt.Sprintf("fronts %s, which moved %.2f GB/month against a %.0f GB floor", ip.NatGatewayID, gbMonth, threshold),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("nat_gateway_id", ip.NatGatewayID)
		f.Metadata.SetSignal("traffic_gb_month", gbMonth)
		out = append(out, f)
	}
	return out
}

func detectIPsOnZeroTrafficInstances(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypePublicIP)
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		inst := ipRunningInstance(sc, ip)
		if inst == nil {
			continue
		}
		in, netOut := instanceNetwork(ctx, sc, finding.TypePublicIP, inst.ID)
		if !fullWindow(days, in, netOut) {
			continue
		}
		bytes := in.Sum() + netOut.Sum()
		if sc.Rules.Traffic.Classify(bytes) != "dead" {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "zero_traffic_instance",
			fmt.Sprintf("bound to %s, which moved %.0f bytes in %d days", inst.ID, bytes, days),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("instance_id", inst.ID)
		f.Metadata.SetSignal("network_bytes", bytes)
		out = append(out, f)
	}
	return out
}

func detectIPsOnLowTrafficInstances(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypePublicIP)
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		inst := ipRunningInstance(sc, ip)
		if inst == nil {
			continue
		}
		in, netOut := instanceNetwork(ctx, sc, finding.TypePublicIP, inst.ID)
		if !fullWindow(days, in, netOut) {
			continue
		}
		bytes := in.Sum() + netOut.Sum()
		if sc.Rules.Traffic.Classify(bytes) != "trickle" {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "low_traffic_instance",
			fmt.Sprintf("bound to %s, which moved only %.1f MB in %d days", inst.ID, bytes/(1<<20), days),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("instance_id", inst.ID)
		f.Metadata.SetSignal("network_bytes", bytes)
		out = append(out, f)
	}
	return out
}

func detectIPsOnConnectionlessNATs(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypePublicIP)
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.NatGatewayID == "" {
			continue
		}
		conns := sc.Daily(ctx, finding.TypePublicIP, "AWS/NATGateway", "ActiveConnectionCount", "Maximum",
			map[string]string{"NatGatewayId": ip.NatGatewayID})
		if !fullWindow(days, conns) || conns.Max() > 0 {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "nat_no_connections",
			fmt.Sprintf("fronts %s, which held zero active connections for %d days", ip.NatGatewayID, days),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("nat_gateway_id", ip.NatGatewayID)
		out = append(out, f)
	}
	return out
}

func detectIPsOnUnhealthyTargets(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, ip := range sc.Inventory.PublicIPs {
		if ip.InstanceID == "" || !sc.Inventory.UnhealthyTargets[ip.InstanceID] {
			continue
		}
		f := sc.newFinding(finding.TypePublicIP, ip.Meta, "unhealthy_target_ip",
			fmt.Sprintf("bound to %s, which is failing its load balancer health checks", ip.InstanceID),
			sc.Pricer.PublicIPMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("instance_id", ip.InstanceID)
		out = append(out, f)
	}
	return out
}

// ipRunningInstance resolves the running instance behind an address, nil
// when the address fronts anything else.
func ipRunningInstance(sc *Context, ip inventory.PublicIP) *inventory.Instance {
	if ip.InstanceID == "" {
		return nil
	}
	inst := sc.Inventory.InstanceByID(ip.InstanceID)
	if inst == nil || inst.State != "running" {
		return nil
	}
	return inst
}
