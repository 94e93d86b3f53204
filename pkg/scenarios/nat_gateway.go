package scenarios

import (
	"context"
	"fmt"
	"sort"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "no_routes",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway no route table points at",
		Detect:       detectRoutelessNATs,
	})
	Register(Scenario{
		ID:           "zero_traffic",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway that moved nothing across the whole lookback",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectZeroTrafficNATs,
	})
	Register(Scenario{
		ID:           "orphaned_routes",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway routed to only by tables no subnet uses",
		Detect:       detectOrphanedRouteNATs,
	})
	Register(Scenario{
		ID:           "vpc_without_igw",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway in a VPC with no internet gateway to forward through",
		Detect:       detectNATsWithoutIGW,
	})
	Register(Scenario{
		ID:           "public_subnet_nat",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway whose own subnet has no internet route",
		Detect:       detectMisplacedNATs,
	})
	Register(Scenario{
		ID:           "redundant_az_nat",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "Second NAT gateway in the same VPC and availability zone",
		Detect:       detectRedundantAZNATs,
	})
	Register(Scenario{
		ID:           "low_traffic_nat",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway whose hourly rate dwarfs the traffic it moves",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectLowTrafficNATs,
	})
	Register(Scenario{
		ID:           "endpoint_candidate",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostSavings,
		Doc:          "NAT traffic a free gateway endpoint could carry instead",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectEndpointCandidates,
	})
	Register(Scenario{
		ID:           "nat_business_hours",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostSavings,
		Doc:          "Non-production NAT gateway used only during business hours",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectBusinessHoursNATs,
	})
	Register(Scenario{
		ID:           "traffic_migrated",
		ResourceType: finding.TypeNATGateway,
		Kind:         finding.CostAbsolute,
		Doc:          "NAT gateway whose traffic collapsed after a migration",
		Telemetry:    []string{"AWS/NATGateway BytesOutToDestination"},
		Detect:       detectMigratedNATs,
	})
}

// natGBMonth reads the gateway's outbound volume and scales it to a
// monthly rate. ok is false without a full window of data.
func natGBMonth(ctx context.Context, sc *Context, natID string, days int) (float64, bool) {
	traffic := sc.Daily(ctx, finding.TypeNATGateway, "AWS/NATGateway", "BytesOutToDestination", "Sum",
		map[string]string{"NatGatewayId": natID})
	if !fullWindow(days, traffic) {
		return 0, false
	}
	return traffic.Sum() / float64(days) * 30 / (1 << 30), true
}

func detectRoutelessNATs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" || len(sc.Inventory.RoutesToNat(nat.ID)) > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "no_routes",
			"no route table points at this gateway; nothing can send traffic through it",
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("vpc_id", nat.VPCID)
		out = append(out, f)
	}
	return out
}

func detectZeroTrafficNATs(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeNATGateway)
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		gbMonth, ok := natGBMonth(ctx, sc, nat.ID, days)
		if !ok || gbMonth > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "zero_traffic",
			fmt.Sprintf("moved zero bytes in %d days of telemetry", days),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("lookback_days", float64(days))
		out = append(out, f)
	}
	return out
}

func detectOrphanedRouteNATs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		tables := sc.Inventory.RoutesToNat(nat.ID)
		if len(tables) == 0 {
			continue
		}
		orphaned := true
		for _, t := range tables {
			if t.Main || len(t.SubnetAssociations) > 0 {
				orphaned = false
				break
			}
		}
		if !orphaned {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "orphaned_routes",
			fmt.Sprintf("%d route tables point here but none is associated with a subnet", len(tables)),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("route_tables", float64(len(tables)))
		out = append(out, f)
	}
	return out
}

func detectNATsWithoutIGW(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" || sc.Inventory.VPCHasInternetGateway(nat.VPCID) {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "vpc_without_igw",
			fmt.Sprintf("%s has no internet gateway; the NAT has nowhere to forward", nat.VPCID),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("vpc_id", nat.VPCID)
		out = append(out, f)
	}
	return out
}

func detectMisplacedNATs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" || !sc.Inventory.VPCHasInternetGateway(nat.VPCID) {
			continue
		}
		if sc.Inventory.SubnetIsPublic(nat.SubnetID) {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "public_subnet_nat",
			fmt.Sprintf("subnet %s has no internet gateway route; egress dies at the NAT", nat.SubnetID),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("subnet_id", nat.SubnetID)
		out = append(out, f)
	}
	return out
}

func detectRedundantAZNATs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	seen := map[string]bool{}
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		sn := sc.Inventory.SubnetByID(nat.SubnetID)
		if sn == nil {
			continue
		}
		key := nat.VPCID + "/" + sn.AZ
		if seen[key] {
			continue
		}
		seen[key] = true
		group := sc.Inventory.NatGatewaysInVPCAndAZ(nat.VPCID, sn.AZ)
		if len(group) <= 1 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for _, extra := range group[1:] {
			f := sc.newFinding(finding.TypeNATGateway, extra.Meta, "redundant_az_nat",
				fmt.Sprintf("%d NAT gateways share %s in %s; one per zone is the pattern", len(group), sn.AZ, nat.VPCID),
				sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
			raise(&f, finding.ConfidenceMedium)
			f.Metadata.SetDetail("availability_zone", sn.AZ)
			f.Metadata.SetSignal("gateways_in_zone", float64(len(group)))
			out = append(out, f)
		}
	}
	return out
}

func detectLowTrafficNATs(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NATGateway
	_, _, days := sc.Lookback(finding.TypeNATGateway)
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		gbMonth, ok := natGBMonth(ctx, sc, nat.ID, days)
		if !ok || gbMonth == 0 || gbMonth >= r.LowTrafficGBMonth {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "low_traffic_nat",
			fmt.Sprintf("moves %.2f GB/month against a %.0f GB floor; the hourly rate dwarfs the work", gbMonth, r.LowTrafficGBMonth),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("traffic_gb_month", gbMonth)
		out = append(out, f)
	}
	return out
}

func detectEndpointCandidates(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeNATGateway)
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		var missing []string
		for _, svc := range []string{"s3", "dynamodb"} {
			if !sc.Inventory.VPCHasGatewayEndpoint(nat.VPCID, svc) {
				missing = append(missing, svc)
			}
		}
		if len(missing) == 0 {
			continue
		}
		gbMonth, ok := natGBMonth(ctx, sc, nat.ID, days)
		if !ok || gbMonth == 0 {
			continue
		}
		savings := sc.Pricer.NATDataProcessedMonthly(gbMonth)
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "endpoint_candidate",
			fmt.Sprintf("%s lacks gateway endpoints for %v; up to %.1f GB/month pays NAT processing a free endpoint would carry", nat.VPCID, missing, gbMonth),
			savings, finding.CostSavings)
		f.Metadata.SetDetail("missing_endpoints", fmt.Sprint(missing))
		f.Metadata.SetSignal("traffic_gb_month", gbMonth)
		out = append(out, f)
	}
	return out
}

func detectBusinessHoursNATs(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NATGateway
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" || !nat.EnvMatches(r.NonProdTagValues) {
			continue
		}
		traffic := sc.Hourly(ctx, finding.TypeNATGateway, "AWS/NATGateway", "BytesOutToDestination", "Sum",
			map[string]string{"NatGatewayId": nat.ID})
		if traffic.Missing || traffic.Sum() == 0 {
			continue
		}
		share := metricops.BusinessShare(traffic.Points)
		if share < r.BusinessHoursSharePct {
			continue
		}
		monthly := sc.Pricer.NATGatewayMonthly()
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "nat_business_hours",
			fmt.Sprintf("non-production gateway with %.1f%% of traffic inside business hours", share),
			monthly*offHoursShare, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("business_hours_share_pct", share)
		out = append(out, f)
	}
	return out
}

func detectMigratedNATs(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NATGateway
	var out []finding.Finding
	for _, nat := range sc.Inventory.NatGateways {
		if nat.State != "available" {
			continue
		}
		traffic := sc.DailyOver(ctx, 90, "AWS/NATGateway", "BytesOutToDestination", "Sum",
			map[string]string{"NatGatewayId": nat.ID})
		if !fullWindow(90, traffic) {
			continue
		}
		ratio, ok := metricops.TrendRatio(traffic.Points)
		if !ok || ratio > 1-r.TrafficDropPct/100 {
			continue
		}
		f := sc.newFinding(finding.TypeNATGateway, nat.Meta, "traffic_migrated",
			fmt.Sprintf("traffic collapsed to %.1f%% of its earlier volume over 90 days; whatever used it has moved", ratio*100),
			sc.Pricer.NATGatewayMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("trend_ratio", ratio)
		out = append(out, f)
	}
	return out
}
