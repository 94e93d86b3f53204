package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/metricops"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

func init() {
	Register(Scenario{
		ID:           "stopped_long_term",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostAbsolute,
		Doc:          "Instance stopped for weeks while its volumes keep billing",
		Detect:       detectStoppedInstances,
	})
	Register(Scenario{
		ID:           "low_cpu",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Running instance averaging well under its shape's capacity",
		Telemetry:    []string{"AWS/EC2 CPUUtilization"},
		Detect:       detectLowCPUInstances,
	})
	Register(Scenario{
		ID:           "previous_generation",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Instance on a shape generation the provider has since superseded",
		Detect:       detectPreviousGenInstances,
	})
	Register(Scenario{
		ID:           "burstable_credits_unused",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Burstable instance that never spends its CPU credits",
		Telemetry:    []string{"AWS/EC2 CPUCreditBalance"},
		Detect:       detectUnusedBurstCredits,
	})
	Register(Scenario{
		ID:           "nonprod_always_on",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Non-production instance running around the clock",
		Telemetry:    []string{"AWS/EC2 CPUUtilization"},
		Detect:       detectNonProdAlwaysOn,
	})
	Register(Scenario{
		ID:           "untagged_instance",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostAbsolute,
		Doc:          "Running instance with no tags recording an owner",
		Detect:       detectUntaggedInstances,
	})
	Register(Scenario{
		ID:           "idle_running",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostAbsolute,
		Doc:          "Running instance with idle CPU and a dead network",
		Telemetry:    []string{"AWS/EC2 CPUUtilization", "AWS/EC2 NetworkIn", "AWS/EC2 NetworkOut"},
		Detect:       detectIdleRunningInstances,
	})
	Register(Scenario{
		ID:           "rightsizing_headroom",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Instance whose peak and average both fit a smaller shape",
		Telemetry:    []string{"AWS/EC2 CPUUtilization"},
		Detect:       detectRightsizingHeadroom,
	})
	Register(Scenario{
		ID:           "spot_candidate",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "On-demand instance with load flat enough to tolerate interruption",
		Telemetry:    []string{"AWS/EC2 CPUUtilization"},
		Detect:       detectSpotCandidates,
	})
	Register(Scenario{
		ID:           "schedulable_workload",
		ResourceType: finding.TypeInstance,
		Kind:         finding.CostSavings,
		Doc:          "Instance whose traffic lives almost entirely in business hours",
		Telemetry:    []string{"AWS/EC2 NetworkIn", "AWS/EC2 NetworkOut"},
		Detect:       detectSchedulableWorkloads,
	})
}

// Stopping outside weekday 08:00-18:00 UTC recovers the rest of the week.
const offHoursShare = 118.0 / 168.0

// modernFamily maps superseded shape families to their current equivalent.
var modernFamily = map[string]string{
	"t1": "t3", "t2": "t3",
	"m1": "m5", "m2": "r5", "m3": "m5", "m4": "m5",
	"c1": "c5", "c3": "c5", "c4": "c5",
	"r3": "r5", "r4": "r5",
	"i2": "i3", "d2": "d3",
}

func instanceCPU(ctx context.Context, sc *Context, id string) (avg, peak metricops.Sample) {
	dims := map[string]string{"InstanceId": id}
	avg = sc.Daily(ctx, finding.TypeInstance, "AWS/EC2", "CPUUtilization", "Average", dims)
	peak = sc.Daily(ctx, finding.TypeInstance, "AWS/EC2", "CPUUtilization", "Maximum", dims)
	return avg, peak
}

// downsizeSavings prices moving one shape size down. ok is false at the
// bottom of a family or off the price table.
func downsizeSavings(sc *Context, instanceType string) (target string, savings float64, ok bool) {
	target, ok = pricing.SmallerShape(instanceType)
	if !ok {
		return "", 0, false
	}
	cur, curExact := sc.Pricer.InstanceMonthly(instanceType)
	tgt, tgtExact := sc.Pricer.InstanceMonthly(target)
	if !curExact || !tgtExact || cur <= tgt {
		return "", 0, false
	}
	return target, cur - tgt, true
}

func detectStoppedInstances(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "stopped" || inst.StoppedSince.IsZero() {
			continue
		}
		stoppedDays := finding.AgeDays(inst.StoppedSince, sc.Now)
		if stoppedDays < r.StoppedMinDays {
			continue
		}
		var storage float64
		vols := sc.Inventory.VolumesForInstance(inst.ID)
		for _, v := range vols {
			m, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
			storage += m
		}
		qualifier := ""
		if inst.StoppedSinceEstimated {
			qualifier = "at least "
		}
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "stopped_long_term",
			fmt.Sprintf("stopped for %s%d days; %d attached volumes keep billing", qualifier, stoppedDays, len(vols)),
			storage, finding.CostAbsolute)
		raise(&f, sc.Rules.LadderFor(finding.TypeInstance).ForAge(stoppedDays))
		f.Metadata.AlreadyWasted = finding.WastedToDate(f.MonthlyCost, stoppedDays)
		f.Metadata.SetSignal("stopped_days", float64(stoppedDays))
		f.Metadata.SetSignal("attached_volumes", float64(len(vols)))
		out = append(out, f)
	}
	return out
}

func detectLowCPUInstances(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" {
			continue
		}
		avg, _ := instanceCPU(ctx, sc, inst.ID)
		if !fullWindow(days, avg) || avg.Avg() >= r.LowCPUPct {
			continue
		}
		target, savings, ok := downsizeSavings(sc, inst.Type)
		if !ok {
			continue
		}
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "low_cpu",
			fmt.Sprintf("%s averaged %.1f%% CPU over %d days; %s would serve", inst.Type, avg.Avg(), days, target),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_type", target)
		f.Metadata.SetSignal("avg_cpu_pct", avg.Avg())
		out = append(out, f)
	}
	return out
}

func detectPreviousGenInstances(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" {
			continue
		}
		fam := pricing.InstanceFamily(inst.Type)
		if !containsFold(r.PreviousGenFamilies, fam) {
			continue
		}
		targetFam, known := modernFamily[fam]
		if !known {
			continue
		}
		size := strings.TrimPrefix(inst.Type, fam+".")
		target := targetFam + "." + size
		cur, curExact := sc.Pricer.InstanceMonthly(inst.Type)
		tgt, tgtExact := sc.Pricer.InstanceMonthly(target)
		savings := 0.0
		if curExact && tgtExact && cur > tgt {
			savings = cur - tgt
		}
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "previous_generation",
			fmt.Sprintf("%s is a superseded generation; %s is the current equivalent", inst.Type, target),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_type", target)
		out = append(out, f)
	}
	return out
}

func detectUnusedBurstCredits(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" || !strings.HasPrefix(inst.Type, "t") {
			continue
		}
		dims := map[string]string{"InstanceId": inst.ID}
		balance := sc.Daily(ctx, finding.TypeInstance, "AWS/EC2", "CPUCreditBalance", "Average", dims)
		if !fullWindow(days, balance) {
			continue
		}
		peak := balance.Max()
		if peak == 0 || balance.Min() < peak*r.BurstableCreditFloor/100 {
			continue
		}
		target, savings, ok := downsizeSavings(sc, inst.Type)
		if !ok {
			continue
		}
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "burstable_credits_unused",
			fmt.Sprintf("credit balance never dropped below %.0f%% of its ceiling in %d days; the burst capacity goes unused", r.BurstableCreditFloor, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_type", target)
		f.Metadata.SetSignal("min_credit_balance", balance.Min())
		out = append(out, f)
	}
	return out
}

func detectNonProdAlwaysOn(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" || !inst.EnvMatches(r.NonProdTagValues) {
			continue
		}
		avg, _ := instanceCPU(ctx, sc, inst.ID)
		if !fullWindow(days, avg) {
			continue
		}
		monthly, _ := sc.Pricer.InstanceMonthly(inst.Type)
		savings := monthly * offHoursShare
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "nonprod_always_on",
			fmt.Sprintf("non-production instance ran every day for %d days; an off-hours schedule recovers %.0f%% of the bill", days, offHoursShare*100),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("on_demand_monthly_usd", finding.RoundCents(monthly))
		out = append(out, f)
	}
	return out
}

func detectUntaggedInstances(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" || !inst.Untagged() {
			continue
		}
		monthly, exact := sc.Pricer.InstanceMonthly(inst.Type)
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "untagged_instance",
			fmt.Sprintf("running %s with no tags; nothing records why it exists", inst.Type),
			monthly, finding.CostAbsolute)
		f.Metadata.SetDetail("instance_type", inst.Type)
		if !exact {
			f.Metadata.SetDetail("price_basis", "flat fallback rate")
		}
		out = append(out, f)
	}
	return out
}

func detectIdleRunningInstances(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" {
			continue
		}
		if finding.AgeDays(inst.CreatedAt, sc.Now) < r.MinIdleDays {
			continue
		}
		avg, _ := instanceCPU(ctx, sc, inst.ID)
		in, netOut := instanceNetwork(ctx, sc, finding.TypeInstance, inst.ID)
		if !fullWindow(days, avg, in, netOut) {
			continue
		}
		bytes := in.Sum() + netOut.Sum()
		if avg.Avg() >= r.IdleCPUPct || sc.Rules.Traffic.Classify(bytes) != "dead" {
			continue
		}
		monthly, _ := sc.Pricer.InstanceMonthly(inst.Type)
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "idle_running",
			fmt.Sprintf("%s averaged %.1f%% CPU and moved %.0f bytes in %d days", inst.Type, avg.Avg(), bytes, days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("avg_cpu_pct", avg.Avg())
		f.Metadata.SetSignal("network_bytes", bytes)
		out = append(out, f)
	}
	return out
}

func detectRightsizingHeadroom(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" {
			continue
		}
		avg, peak := instanceCPU(ctx, sc, inst.ID)
		if !fullWindow(days, avg, peak) {
			continue
		}
		if peak.Max() >= r.RightsizePeakPct || avg.Avg() >= r.RightsizeAvgPct {
			continue
		}
		target, savings, ok := downsizeSavings(sc, inst.Type)
		if !ok {
			continue
		}
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "rightsizing_headroom",
			fmt.Sprintf("%s peaked at %.1f%% and averaged %.1f%% CPU over %d days; %s fits with room to spare", inst.Type, peak.Max(), avg.Avg(), days, target),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("target_type", target)
		f.Metadata.SetSignal("peak_cpu_pct", peak.Max())
		f.Metadata.SetSignal("avg_cpu_pct", avg.Avg())
		out = append(out, f)
	}
	return out
}

func detectSpotCandidates(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	_, _, days := sc.Lookback(finding.TypeInstance)
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" || inst.Spot {
			continue
		}
		avg, _ := instanceCPU(ctx, sc, inst.ID)
		if !fullWindow(days, avg) {
			continue
		}
		stddev := metricops.StdDev(avg.Points)
		if stddev >= r.SpotStdDevPct {
			continue
		}
		monthly, exact := sc.Pricer.InstanceMonthly(inst.Type)
		if !exact {
			continue
		}
		savings := sc.Pricer.SpotSavingsMonthly(monthly)
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "spot_candidate",
			fmt.Sprintf("CPU varied only %.1f points over %d days; load this flat tolerates spot interruption", stddev, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("cpu_stddev", stddev)
		f.Metadata.SetSignal("on_demand_monthly_usd", finding.RoundCents(monthly))
		out = append(out, f)
	}
	return out
}

func detectSchedulableWorkloads(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Instance
	var out []finding.Finding
	for _, inst := range sc.Inventory.Instances {
		if inst.State != "running" {
			continue
		}
		dims := map[string]string{"InstanceId": inst.ID}
		in := sc.Hourly(ctx, finding.TypeInstance, "AWS/EC2", "NetworkIn", "Sum", dims)
		netOut := sc.Hourly(ctx, finding.TypeInstance, "AWS/EC2", "NetworkOut", "Sum", dims)
		if in.Missing || netOut.Missing {
			continue
		}
		points := append(append([]metricops.Point{}, in.Points...), netOut.Points...)
		share := metricops.BusinessShare(points)
		if share < r.BusinessHoursSharePct {
			continue
		}
		monthly, _ := sc.Pricer.InstanceMonthly(inst.Type)
		savings := monthly * offHoursShare
		f := sc.newFinding(finding.TypeInstance, inst.Meta, "schedulable_workload",
			fmt.Sprintf("%.1f%% of network traffic falls inside business hours; the instance can sleep nights and weekends", share),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("business_hours_share_pct", share)
		out = append(out, f)
	}
	return out
}

// containsFold reports a case-insensitive membership test.
func containsFold(hay []string, want string) bool {
	for _, h := range hay {
		if strings.EqualFold(h, want) {
			return true
		}
	}
	return false
}
