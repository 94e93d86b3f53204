package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/metricops"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

func init() {
	Register(Scenario{
		ID:           "cache_idle",
		ResourceType: finding.TypeCacheCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Cache cluster that served no commands across the whole lookback",
		Telemetry:    []string{"AWS/ElastiCache CacheHits", "AWS/ElastiCache CacheMisses"},
		Detect:       detectIdleCaches,
	})
	Register(Scenario{
		ID:           "cache_oversized",
		ResourceType: finding.TypeCacheCluster,
		Kind:         finding.CostSavings,
		Doc:          "Cache node far above what its load and working set need",
		Telemetry:    []string{"AWS/ElastiCache CPUUtilization", "AWS/ElastiCache DatabaseMemoryUsagePercentage"},
		Detect:       detectOversizedCaches,
	})
	Register(Scenario{
		ID:           "cache_outdated_engine",
		ResourceType: finding.TypeCacheCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Cache engine past end of life",
		Detect:       detectOutdatedCaches,
	})
	Register(Scenario{
		ID:           "cache_idle_replica",
		ResourceType: finding.TypeCacheCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Cache replica no client reads from",
		Telemetry:    []string{"AWS/ElastiCache CacheHits", "AWS/ElastiCache CacheMisses"},
		Detect:       detectIdleCacheReplicas,
	})
}

// cacheCommands reads the hit/miss counters, which differ by engine.
func cacheCommands(ctx context.Context, sc *Context, engine, id string) (hits, misses metricops.Sample) {
	dims := map[string]string{"CacheClusterId": id}
	if engine == "memcached" {
		hits = sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "CmdGet", "Sum", dims)
		misses = sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "CmdSet", "Sum", dims)
		return hits, misses
	}
	hits = sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "CacheHits", "Sum", dims)
	misses = sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "CacheMisses", "Sum", dims)
	return hits, misses
}

func detectIdleCaches(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeCacheCluster)
	var out []finding.Finding
	for _, c := range sc.Inventory.CacheClusters {
		if c.Status != "available" || c.IsReplica {
			continue
		}
		hits, misses := cacheCommands(ctx, sc, c.Engine, c.ID)
		if !fullWindow(days, hits, misses) || hits.Sum()+misses.Sum() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.CacheMonthly(c.NodeType, c.NumNodes)
		f := sc.newFinding(finding.TypeCacheCluster, c.Meta, "cache_idle",
			fmt.Sprintf("%s cluster served zero commands in %d days", c.Engine, days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine", c.Engine)
		f.Metadata.SetSignal("nodes", float64(c.NumNodes))
		out = append(out, f)
	}
	return out
}

func detectOversizedCaches(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.CacheCluster
	_, _, days := sc.Lookback(finding.TypeCacheCluster)
	var out []finding.Finding
	for _, c := range sc.Inventory.CacheClusters {
		if c.Status != "available" {
			continue
		}
		dims := map[string]string{"CacheClusterId": c.ID}
		cpu := sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "CPUUtilization", "Average", dims)
		if !fullWindow(days, cpu) || cpu.Avg() >= r.OversizeCPUPct {
			continue
		}
		// Memory pressure only reports on redis; memcached sizes on CPU alone.
		if c.Engine != "memcached" {
			mem := sc.Daily(ctx, finding.TypeCacheCluster, "AWS/ElastiCache", "DatabaseMemoryUsagePercentage", "Average", dims)
			if !fullWindow(days, mem) || mem.Avg() >= r.OversizeMemoryPct {
				continue
			}
		}
		target, ok := pricing.SmallerCacheNode(c.NodeType)
		if !ok {
			continue
		}
		cur, curExact := sc.Pricer.CacheMonthly(c.NodeType, c.NumNodes)
		tgt, tgtExact := sc.Pricer.CacheMonthly(target, c.NumNodes)
		if !curExact || !tgtExact || cur <= tgt {
			continue
		}
		f := sc.newFinding(finding.TypeCacheCluster, c.Meta, "cache_oversized",
			fmt.Sprintf("%s averaged %.1f%% CPU over %d days; %s would serve", c.NodeType, cpu.Avg(), days, target),
			cur-tgt, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_node_type", target)
		f.Metadata.SetSignal("avg_cpu_pct", cpu.Avg())
		out = append(out, f)
	}
	return out
}

func detectOutdatedCaches(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.CacheCluster
	var out []finding.Finding
	for _, c := range sc.Inventory.CacheClusters {
		if !eolMatch(c.Engine, c.EngineVersion, r.EOLEngineVersions) {
			continue
		}
		surcharge := sc.Pricer.ExtendedSupportMonthly(c.NodeType) * float64(c.NumNodes)
		f := sc.newFinding(finding.TypeCacheCluster, c.Meta, "cache_outdated_engine",
			fmt.Sprintf("%s %s is past end of life and accrues the extended-support surcharge", c.Engine, c.EngineVersion),
			surcharge, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine_version", c.Engine+" "+c.EngineVersion)
		out = append(out, f)
	}
	return out
}

func detectIdleCacheReplicas(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeCacheCluster)
	var out []finding.Finding
	for _, c := range sc.Inventory.CacheClusters {
		if c.Status != "available" || !c.IsReplica {
			continue
		}
		hits, misses := cacheCommands(ctx, sc, c.Engine, c.ID)
		if !fullWindow(days, hits, misses) || hits.Sum()+misses.Sum() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.CacheMonthly(c.NodeType, c.NumNodes)
		f := sc.newFinding(finding.TypeCacheCluster, c.Meta, "cache_idle_replica",
			fmt.Sprintf("replica in %s served zero reads in %d days; the primary carries everything", c.ReplicationGroupID, days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("replication_group", c.ReplicationGroupID)
		out = append(out, f)
	}
	return out
}
