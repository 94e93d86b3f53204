package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "unattached",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostAbsolute,
		Doc:          "Volume in the available state, attached to nothing",
		Detect:       detectUnattachedVolumes,
	})
	Register(Scenario{
		ID:           "attached_stopped_instance",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostAbsolute,
		Doc:          "Volume attached to an instance that has been stopped for weeks",
		Detect:       detectVolumesOnStoppedInstances,
	})
	Register(Scenario{
		ID:           "zero_io",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostAbsolute,
		Doc:          "Attached volume with no read or write activity across the whole lookback",
		Telemetry:    []string{"AWS/EBS VolumeReadOps", "AWS/EBS VolumeWriteOps"},
		Detect:       detectZeroIOVolumes,
	})
	Register(Scenario{
		ID:           "legacy_gp2",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "Large gp2 volume that gp3 would serve at a lower rate",
		Detect:       detectLegacyGP2,
	})
	Register(Scenario{
		ID:           "max_durability_untagged",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "Untagged io2 volume paying for the top durability tier with no recorded owner",
		Detect:       detectUntaggedMaxDurability,
	})
	Register(Scenario{
		ID:           "overprovisioned_iops",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "Provisioned IOPS far above the observed peak",
		Telemetry:    []string{"AWS/EBS VolumeReadOps", "AWS/EBS VolumeWriteOps"},
		Detect:       detectOverprovisionedIOPS,
	})
	Register(Scenario{
		ID:           "overprovisioned_throughput",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "Provisioned throughput far above the observed peak",
		Telemetry:    []string{"AWS/EBS VolumeReadBytes", "AWS/EBS VolumeWriteBytes"},
		Detect:       detectOverprovisionedThroughput,
	})
	Register(Scenario{
		ID:           "iops_underutilized",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "io1/io2 volume averaging a small fraction of its provisioned IOPS",
		Telemetry:    []string{"AWS/EBS VolumeReadOps", "AWS/EBS VolumeWriteOps"},
		Detect:       detectUnderutilizedIOPS,
	})
	Register(Scenario{
		ID:           "throughput_underutilized",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "gp3 volume averaging a small fraction of its provisioned throughput",
		Telemetry:    []string{"AWS/EBS VolumeReadBytes", "AWS/EBS VolumeWriteBytes"},
		Detect:       detectUnderutilizedThroughput,
	})
	Register(Scenario{
		ID:           "volume_tier_downgrade",
		ResourceType: finding.TypeVolume,
		Kind:         finding.CostSavings,
		Doc:          "io1/io2 volume whose observed peak fits inside the gp3 baseline",
		Telemetry:    []string{"AWS/EBS VolumeReadOps", "AWS/EBS VolumeWriteOps"},
		Detect:       detectVolumeTierDowngrade,
	})
}

// gp3 bundles 3000 IOPS and 125 MiB/s before any provisioned extras bill.
const (
	gp3BaseIOPS       = 3000
	gp3BaseThroughput = 125
)

func volumeOps(ctx context.Context, sc *Context, id string) (reads, writes metricops.Sample) {
	dims := map[string]string{"VolumeId": id}
	reads = sc.Daily(ctx, finding.TypeVolume, "AWS/EBS", "VolumeReadOps", "Sum", dims)
	writes = sc.Daily(ctx, finding.TypeVolume, "AWS/EBS", "VolumeWriteOps", "Sum", dims)
	return reads, writes
}

func volumeBytes(ctx context.Context, sc *Context, id string) (reads, writes metricops.Sample) {
	dims := map[string]string{"VolumeId": id}
	reads = sc.Daily(ctx, finding.TypeVolume, "AWS/EBS", "VolumeReadBytes", "Sum", dims)
	writes = sc.Daily(ctx, finding.TypeVolume, "AWS/EBS", "VolumeWriteBytes", "Sum", dims)
	return reads, writes
}

func detectUnattachedVolumes(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.State != "available" || v.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		monthly, parts := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		f := sc.newFinding(finding.TypeVolume, v.Meta, "unattached",
			"volume is in the available state with no attachment", monthly, finding.CostAbsolute)
		f.Metadata.SetDetail("volume_type", v.Type)
		f.Metadata.SetSignal("size_gib", float64(v.SizeGiB))
		for part, usd := range parts {
			f.Metadata.SetSignal("monthly_"+part+"_usd", finding.RoundCents(usd))
		}
		out = append(out, f)
	}
	return out
}

func detectVolumesOnStoppedInstances(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.State != "in-use" || v.AttachedTo == "" || v.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		inst := sc.Inventory.InstanceByID(v.AttachedTo)
		if inst == nil || inst.State != "stopped" || inst.StoppedSince.IsZero() {
			continue
		}
		stoppedDays := finding.AgeDays(inst.StoppedSince, sc.Now)
		if stoppedDays < r.AttachedStoppedMinDays {
			continue
		}
		qualifier := ""
		if inst.StoppedSinceEstimated {
			qualifier = "at least "
		}
		monthly, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		f := sc.newFinding(finding.TypeVolume, v.Meta, "attached_stopped_instance",
			fmt.Sprintf("attached to %s, which has been stopped for %s%d days", v.AttachedTo, qualifier, stoppedDays),
			monthly, finding.CostAbsolute)
		// The waste clock starts when the instance stopped, not when the
		// volume was created.
		raise(&f, sc.Rules.LadderFor(finding.TypeVolume).ForAge(stoppedDays))
		f.Metadata.AlreadyWasted = finding.WastedToDate(f.MonthlyCost, stoppedDays)
		f.Metadata.SetDetail("instance_id", v.AttachedTo)
		f.Metadata.SetSignal("instance_stopped_days", float64(stoppedDays))
		out = append(out, f)
	}
	return out
}

func detectZeroIOVolumes(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	_, _, days := sc.Lookback(finding.TypeVolume)
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.State != "in-use" || v.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		reads, writes := volumeOps(ctx, sc, v.ID)
		if !fullWindow(days, reads, writes) {
			continue
		}
		if reads.Sum()+writes.Sum() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		f := sc.newFinding(finding.TypeVolume, v.Meta, "zero_io",
			fmt.Sprintf("attached but performed no read or write operations in %d days", days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("instance_id", v.AttachedTo)
		f.Metadata.SetSignal("lookback_days", float64(days))
		out = append(out, f)
	}
	return out
}

func detectLegacyGP2(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.Type != "gp2" || v.SizeGiB < r.LegacyMinSizeGiB {
			continue
		}
		// gp2 performance scales with size, so the gp3 target must
		// provision past its baseline for volumes over a terabyte.
		gp2IOPS := min(max(3*v.SizeGiB, 100), 16000)
		cur, _ := sc.Pricer.VolumeMonthly("gp2", v.SizeGiB, 0, 0)
		tgt, _ := sc.Pricer.VolumeMonthly("gp3", v.SizeGiB, gp2IOPS, 0)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "legacy_gp2",
			fmt.Sprintf("%d GiB gp2 volume; gp3 matches its %d IOPS at a lower rate", v.SizeGiB, gp2IOPS),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_type", "gp3")
		f.Metadata.SetSignal("size_gib", float64(v.SizeGiB))
		out = append(out, f)
	}
	return out
}

func detectUntaggedMaxDurability(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.Type != "io2" || !v.Untagged() || v.IOPS > 16000 {
			continue
		}
		cur, _ := sc.Pricer.VolumeMonthly("io2", v.SizeGiB, v.IOPS, 0)
		tgt, _ := sc.Pricer.VolumeMonthly("gp3", v.SizeGiB, v.IOPS, 0)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "max_durability_untagged",
			"untagged io2 volume; nothing records why it needs the top durability tier",
			savings, finding.CostSavings)
		f.Metadata.SetDetail("target_type", "gp3")
		f.Metadata.SetSignal("provisioned_iops", float64(v.IOPS))
		out = append(out, f)
	}
	return out
}

func detectOverprovisionedIOPS(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	_, _, days := sc.Lookback(finding.TypeVolume)
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		provisioned := paidIOPS(v)
		if provisioned == 0 || v.State != "in-use" {
			continue
		}
		reads, writes := volumeOps(ctx, sc, v.ID)
		if !fullWindow(days, reads, writes) {
			continue
		}
		peak := (reads.Max() + writes.Max()) / 86400
		if peak*r.IOPSHeadroomFactor >= float64(provisioned) {
			continue
		}
		target := max(int(peak*r.DowngradeSafetyFactor), iopsFloor(v.Type))
		cur, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		tgt, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, target, v.ThroughputMiBps)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "overprovisioned_iops",
			fmt.Sprintf("provisioned for %d IOPS but peaked at %.0f over %d days", provisioned, peak, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("provisioned_iops", float64(provisioned))
		f.Metadata.SetSignal("peak_iops", peak)
		f.Metadata.SetSignal("target_iops", float64(target))
		out = append(out, f)
	}
	return out
}

func detectOverprovisionedThroughput(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	_, _, days := sc.Lookback(finding.TypeVolume)
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.Type != "gp3" || v.ThroughputMiBps <= gp3BaseThroughput || v.State != "in-use" {
			continue
		}
		rb, wb := volumeBytes(ctx, sc, v.ID)
		if !fullWindow(days, rb, wb) {
			continue
		}
		peak := (rb.Max() + wb.Max()) / 86400 / (1 << 20) // MiB/s
		if peak*r.ThroughputHeadroom >= float64(v.ThroughputMiBps) {
			continue
		}
		target := max(int(peak*r.DowngradeSafetyFactor), gp3BaseThroughput)
		cur, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		tgt, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, target)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "overprovisioned_throughput",
			fmt.Sprintf("provisioned for %d MiB/s but peaked at %.1f over %d days", v.ThroughputMiBps, peak, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("provisioned_mibps", float64(v.ThroughputMiBps))
		f.Metadata.SetSignal("peak_mibps", peak)
		f.Metadata.SetSignal("target_mibps", float64(target))
		out = append(out, f)
	}
	return out
}

func detectUnderutilizedIOPS(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if (v.Type != "io1" && v.Type != "io2") || v.IOPS == 0 || v.State != "in-use" {
			continue
		}
		reads, writes := volumeOps(ctx, sc, v.ID)
		secs := observedSeconds(reads, writes)
		if secs == 0 {
			continue
		}
		avg := (reads.Sum() + writes.Sum()) / secs
		util := avg / float64(v.IOPS) * 100
		if util >= r.IOPSUtilizationPct {
			continue
		}
		target := max(int(avg*r.DowngradeSafetyFactor), 100)
		cur, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, 0)
		tgt, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, target, 0)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "iops_underutilized",
			fmt.Sprintf("averages %.1f%% of its %d provisioned IOPS", util, v.IOPS),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("avg_iops", avg)
		f.Metadata.SetSignal("utilization_pct", util)
		f.Metadata.SetSignal("target_iops", float64(target))
		out = append(out, f)
	}
	return out
}

func detectUnderutilizedThroughput(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if v.Type != "gp3" || v.ThroughputMiBps <= gp3BaseThroughput || v.State != "in-use" {
			continue
		}
		rb, wb := volumeBytes(ctx, sc, v.ID)
		secs := observedSeconds(rb, wb)
		if secs == 0 {
			continue
		}
		avg := (rb.Sum() + wb.Sum()) / secs / (1 << 20) // MiB/s
		util := avg / float64(v.ThroughputMiBps) * 100
		if util >= r.ThroughputUtilization {
			continue
		}
		target := max(int(avg*r.DowngradeSafetyFactor), gp3BaseThroughput)
		cur, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, v.ThroughputMiBps)
		tgt, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, target)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "throughput_underutilized",
			fmt.Sprintf("averages %.1f%% of its %d MiB/s provisioned throughput", util, v.ThroughputMiBps),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("avg_mibps", avg)
		f.Metadata.SetSignal("utilization_pct", util)
		f.Metadata.SetSignal("target_mibps", float64(target))
		out = append(out, f)
	}
	return out
}

func detectVolumeTierDowngrade(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Volume
	_, _, days := sc.Lookback(finding.TypeVolume)
	var out []finding.Finding
	for _, v := range sc.Inventory.Volumes {
		if (v.Type != "io1" && v.Type != "io2") || v.State != "in-use" || v.SizeGiB > 16384 {
			continue
		}
		reads, writes := volumeOps(ctx, sc, v.ID)
		if !fullWindow(days, reads, writes) {
			continue
		}
		peak := (reads.Max() + writes.Max()) / 86400
		if peak*r.DowngradeSafetyFactor > gp3BaseIOPS {
			continue
		}
		cur, _ := sc.Pricer.VolumeMonthly(v.Type, v.SizeGiB, v.IOPS, 0)
		tgt, _ := sc.Pricer.VolumeMonthly("gp3", v.SizeGiB, gp3BaseIOPS, gp3BaseThroughput)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeVolume, v.Meta, "volume_tier_downgrade",
			fmt.Sprintf("%s volume peaked at %.0f IOPS in %d days; the gp3 baseline covers it", v.Type, peak, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("target_type", "gp3")
		f.Metadata.SetSignal("peak_iops", peak)
		out = append(out, f)
	}
	return out
}

// paidIOPS returns the IOPS the volume is billed for: the whole figure on
// io1/io2, only beyond the bundled baseline on gp3, zero otherwise.
func paidIOPS(v inventory.Volume) int {
	switch v.Type {
	case "gp3":
		if v.IOPS > gp3BaseIOPS {
			return v.IOPS
		}
	case "io1", "io2":
		return v.IOPS
	}
	return 0
}

func iopsFloor(volType string) int {
	if volType == "gp3" {
		return gp3BaseIOPS
	}
	return 100
}
