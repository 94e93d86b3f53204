package scenarios

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "stream_idle",
		ResourceType: finding.TypeStream,
		Kind:         finding.CostAbsolute,
		Doc:          "Stream that received nothing across the whole lookback",
		Telemetry:    []string{"AWS/Kinesis IncomingBytes"},
		Detect:       detectIdleStreams,
	})
	Register(Scenario{
		ID:           "excessive_retention",
		ResourceType: finding.TypeStream,
		Kind:         finding.CostSavings,
		Doc:          "Extended retention paid for while consumers read in real time",
		Telemetry:    []string{"AWS/Kinesis GetRecords.IteratorAgeMilliseconds"},
		Detect:       detectExcessiveRetention,
	})
	Register(Scenario{
		ID:           "overprovisioned_shards",
		ResourceType: finding.TypeStream,
		Kind:         finding.CostSavings,
		Doc:          "Shard count far above the observed throughput",
		Telemetry:    []string{"AWS/Kinesis IncomingBytes"},
		Detect:       detectOverprovisionedShards,
	})
	Register(Scenario{
		ID:           "stream_no_consumers",
		ResourceType: finding.TypeStream,
		Kind:         finding.CostAbsolute,
		Doc:          "Stream written to but never read",
		Telemetry:    []string{"AWS/Kinesis IncomingBytes", "AWS/Kinesis GetRecords.Bytes"},
		Detect:       detectUnreadStreams,
	})
}

// A shard ingests at most one MiB per second.
const shardCapacityBytesPerSec = 1 << 20

func detectIdleStreams(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeStream)
	var out []finding.Finding
	for _, s := range sc.Inventory.Streams {
		if s.Status != "ACTIVE" {
			continue
		}
		incoming := sc.Daily(ctx, finding.TypeStream, "AWS/Kinesis", "IncomingBytes", "Sum",
			map[string]string{"StreamName": s.ID})
		if !fullWindow(days, incoming) || incoming.Sum() > 0 {
			continue
		}
		monthly := sc.Pricer.StreamMonthly(s.ShardCount, s.RetentionHours)
		f := sc.newFinding(finding.TypeStream, s.Meta, "stream_idle",
			fmt.Sprintf("%d shards received zero bytes in %d days", s.ShardCount, days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("shards", float64(s.ShardCount))
		out = append(out, f)
	}
	return out
}

func detectExcessiveRetention(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Stream
	_, _, days := sc.Lookback(finding.TypeStream)
	var out []finding.Finding
	for _, s := range sc.Inventory.Streams {
		if s.Status != "ACTIVE" || s.RetentionHours <= r.RetentionBaselineHours {
			continue
		}
		iterAge := sc.Daily(ctx, finding.TypeStream, "AWS/Kinesis", "GetRecords.IteratorAgeMilliseconds", "Maximum",
			map[string]string{"StreamName": s.ID})
		if !fullWindow(days, iterAge) {
			continue
		}
		// Consumers that lag under an hour never reach back into the
		// extended window they pay for.
		if iterAge.Max() >= float64(time.Hour/time.Millisecond) {
			continue
		}
		savings := sc.Pricer.StreamMonthly(s.ShardCount, s.RetentionHours) - sc.Pricer.StreamMonthly(s.ShardCount, r.RetentionBaselineHours)
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeStream, s.Meta, "excessive_retention",
			fmt.Sprintf("%d hours of retention while consumers lag at most %.0f seconds", s.RetentionHours, iterAge.Max()/1000),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("retention_hours", float64(s.RetentionHours))
		f.Metadata.SetSignal("max_iterator_age_ms", iterAge.Max())
		out = append(out, f)
	}
	return out
}

func detectOverprovisionedShards(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Stream
	_, _, days := sc.Lookback(finding.TypeStream)
	var out []finding.Finding
	for _, s := range sc.Inventory.Streams {
		if s.Status != "ACTIVE" || s.ShardCount <= 1 {
			continue
		}
		incoming := sc.Daily(ctx, finding.TypeStream, "AWS/Kinesis", "IncomingBytes", "Sum",
			map[string]string{"StreamName": s.ID})
		if !fullWindow(days, incoming) || incoming.Sum() == 0 {
			continue
		}
		secs := observedSeconds(incoming)
		avgBytesPerSec := incoming.Sum() / secs
		capacity := float64(s.ShardCount) * shardCapacityBytesPerSec
		util := avgBytesPerSec / capacity * 100
		if util >= r.ShardUtilizationPct {
			continue
		}
		target := int(math.Ceil(avgBytesPerSec * 2 / shardCapacityBytesPerSec))
		if target < 1 {
			target = 1
		}
		if target >= s.ShardCount {
			continue
		}
		savings := float64(s.ShardCount-target) * sc.Pricer.StreamShardMonthly()
		f := sc.newFinding(finding.TypeStream, s.Meta, "overprovisioned_shards",
			fmt.Sprintf("%d shards run at %.2f%% of capacity; %d would absorb the load twice over", s.ShardCount, util, target),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("utilization_pct", util)
		f.Metadata.SetSignal("target_shards", float64(target))
		out = append(out, f)
	}
	return out
}

func detectUnreadStreams(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeStream)
	var out []finding.Finding
	for _, s := range sc.Inventory.Streams {
		if s.Status != "ACTIVE" {
			continue
		}
		dims := map[string]string{"StreamName": s.ID}
		incoming := sc.Daily(ctx, finding.TypeStream, "AWS/Kinesis", "IncomingBytes", "Sum", dims)
		read := sc.Daily(ctx, finding.TypeStream, "AWS/Kinesis", "GetRecords.Bytes", "Sum", dims)
		if !fullWindow(days, incoming) || incoming.Sum() == 0 {
			continue
		}
		if !read.Missing && read.Sum() > 0 {
			continue
		}
		monthly := sc.Pricer.StreamMonthly(s.ShardCount, s.RetentionHours)
		f := sc.newFinding(finding.TypeStream, s.Meta, "stream_no_consumers",
			fmt.Sprintf("received %.1f MB over %d days but nothing ever read a record", incoming.Sum()/(1<<20), days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("incoming_bytes", incoming.Sum())
		f.Metadata.SetSignal("registered_consumers", float64(s.ConsumerCount))
		out = append(out, f)
	}
	return out
}
