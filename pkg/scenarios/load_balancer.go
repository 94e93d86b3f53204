package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "no_targets",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostAbsolute,
		Doc:          "Load balancer with nothing registered behind it",
		Detect:       detectTargetlessLBs,
	})
	Register(Scenario{
		ID:           "all_targets_unhealthy",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostAbsolute,
		Doc:          "Load balancer whose every target is failing health checks",
		Detect:       detectAllUnhealthyLBs,
	})
	Register(Scenario{
		ID:           "no_listeners",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostAbsolute,
		Doc:          "Load balancer with no listeners, unreachable by construction",
		Detect:       detectListenerlessLBs,
	})
	Register(Scenario{
		ID:           "zero_requests",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostAbsolute,
		Doc:          "Load balancer that served nothing across the whole lookback",
		Telemetry:    []string{"AWS/ApplicationELB RequestCount", "AWS/ELB RequestCount"},
		Detect:       detectZeroRequestLBs,
	})
	Register(Scenario{
		ID:           "legacy_classic_lb",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostSavings,
		Doc:          "Classic load balancer still running where an application LB costs less",
		Detect:       detectClassicLBs,
	})
	Register(Scenario{
		ID:           "cross_zone_disabled",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostSavings,
		Doc:          "Cross-zone balancing off while traffic pays the inter-zone toll",
		Telemetry:    []string{"AWS/NetworkELB ProcessedBytes", "AWS/ELB EstimatedProcessedBytes"},
		Detect:       detectCrossZoneDisabled,
	})
	Register(Scenario{
		ID:           "business_hours_lb",
		ResourceType: finding.TypeLoadBalancer,
		Kind:         finding.CostSavings,
		Doc:          "Load balancer whose traffic lives almost entirely in business hours",
		Telemetry:    []string{"AWS/ApplicationELB RequestCount"},
		Detect:       detectBusinessHoursLBs,
	})
}

// lbDims maps a balancer onto its CloudWatch namespace and dimension. The
// v2 families key metrics on the trailing ARN segment, classic on the name.
func lbDims(lb inventory.LoadBalancer) (namespace string, dims map[string]string) {
	switch lb.Kind {
	case "classic":
		return "AWS/ELB", map[string]string{"LoadBalancerName": lb.ID}
	case "network":
		return "AWS/NetworkELB", map[string]string{"LoadBalancer": lbARNSuffix(lb.ID)}
	case "gateway":
		return "AWS/GatewayELB", map[string]string{"LoadBalancer": lbARNSuffix(lb.ID)}
	default:
		return "AWS/ApplicationELB", map[string]string{"LoadBalancer": lbARNSuffix(lb.ID)}
	}
}

func lbARNSuffix(arn string) string {
	if _, after, found := strings.Cut(arn, ":loadbalancer/"); found {
		return after
	}
	return arn
}

// lbTrafficMetric names the volume metric for the balancer family. Request
// counting only exists on the HTTP-aware families; the rest report bytes.
func lbTrafficMetric(kind string) string {
	switch kind {
	case "application":
		return "RequestCount"
	case "classic":
		return "RequestCount"
	default:
		return "ProcessedBytes"
	}
}

func detectTargetlessLBs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		if lb.TargetsTotal != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "no_targets",
			fmt.Sprintf("%s load balancer with nothing registered behind it", lb.Kind),
			sc.Pricer.LoadBalancerMonthly(lb.Kind), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("kind", lb.Kind)
		out = append(out, f)
	}
	return out
}

func detectAllUnhealthyLBs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		if lb.TargetsTotal == 0 || lb.TargetsHealthy != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "all_targets_unhealthy",
			fmt.Sprintf("all %d targets are failing health checks; nothing can serve", lb.TargetsTotal),
			sc.Pricer.LoadBalancerMonthly(lb.Kind), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("targets_total", float64(lb.TargetsTotal))
		out = append(out, f)
	}
	return out
}

func detectListenerlessLBs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		if lb.ListenerCount != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "no_listeners",
			"no listeners are configured; no request can ever reach it",
			sc.Pricer.LoadBalancerMonthly(lb.Kind), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("kind", lb.Kind)
		out = append(out, f)
	}
	return out
}

func detectZeroRequestLBs(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeLoadBalancer)
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		namespace, dims := lbDims(lb)
		metric := lbTrafficMetric(lb.Kind)
		traffic := sc.Daily(ctx, finding.TypeLoadBalancer, namespace, metric, "Sum", dims)
		if !fullWindow(days, traffic) || traffic.Sum() > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "zero_requests",
			fmt.Sprintf("served zero %s over %d days", strings.ToLower(metric), days),
			sc.Pricer.LoadBalancerMonthly(lb.Kind), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("lookback_days", float64(days))
		out = append(out, f)
	}
	return out
}

func detectClassicLBs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		if lb.Kind != "classic" {
			continue
		}
		cur := sc.Pricer.LoadBalancerMonthly("classic")
		tgt := sc.Pricer.LoadBalancerMonthly("application")
		savings := cur - tgt
		if savings < 0 {
			savings = 0
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "legacy_classic_lb",
			"classic load balancer; the application family costs less per hour and is where new features land",
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_kind", "application")
		out = append(out, f)
	}
	return out
}

func detectCrossZoneDisabled(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeLoadBalancer)
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		if lb.CrossZone || lb.TargetsTotal < 2 {
			continue
		}
		if lb.Kind != "classic" && lb.Kind != "network" {
			continue
		}
		namespace, dims := lbDims(lb)
		metric := "ProcessedBytes"
		if lb.Kind == "classic" {
			metric = "EstimatedProcessedBytes"
		}
		traffic := sc.Daily(ctx, finding.TypeLoadBalancer, namespace, metric, "Sum", dims)
		if !fullWindow(days, traffic) || traffic.Sum() == 0 {
			continue
		}
		gbMonth := traffic.Sum() / float64(days) * 30 / (1 << 30)
		// With zone spread uneven, roughly half the bytes hop zones.
		savings := sc.Pricer.CrossAZTransferMonthly(gbMonth / 2)
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "cross_zone_disabled",
			fmt.Sprintf("cross-zone balancing is off while %.1f GB/month flows through %d targets", gbMonth, lb.TargetsTotal),
			savings, finding.CostSavings)
		f.Metadata.SetSignal("traffic_gb_month", gbMonth)
		out = append(out, f)
	}
	return out
}

func detectBusinessHoursLBs(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.LoadBalancer
	var out []finding.Finding
	for _, lb := range sc.Inventory.LoadBalancers {
		namespace, dims := lbDims(lb)
		traffic := sc.Hourly(ctx, finding.TypeLoadBalancer, namespace, lbTrafficMetric(lb.Kind), "Sum", dims)
		if traffic.Missing || traffic.Sum() == 0 {
			continue
		}
		share := metricops.BusinessShare(traffic.Points)
		if share < r.BusinessHoursSharePct {
			continue
		}
		monthly := sc.Pricer.LoadBalancerMonthly(lb.Kind)
		f := sc.newFinding(finding.TypeLoadBalancer, lb.Meta, "business_hours_lb",
			fmt.Sprintf("%.1f%% of traffic falls inside business hours; the balancer idles nights and weekends", share),
			monthly*offHoursShare, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("business_hours_share_pct", share)
		out = append(out, f)
	}
	return out
}
