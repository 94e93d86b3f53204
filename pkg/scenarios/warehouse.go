package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "warehouse_idle",
		ResourceType: finding.TypeWarehouse,
		Kind:         finding.CostAbsolute,
		Doc:          "Warehouse cluster nobody connected to across the whole lookback",
		Telemetry:    []string{"AWS/Redshift DatabaseConnections"},
		Detect:       detectIdleWarehouses,
	})
	Register(Scenario{
		ID:           "warehouse_underutilized",
		ResourceType: finding.TypeWarehouse,
		Kind:         finding.CostSavings,
		Doc:          "Multi-node warehouse loafing far under capacity",
		Telemetry:    []string{"AWS/Redshift CPUUtilization"},
		Detect:       detectUnderutilizedWarehouses,
	})
	Register(Scenario{
		ID:           "warehouse_near_empty",
		ResourceType: finding.TypeWarehouse,
		Kind:         finding.CostSavings,
		Doc:          "Multi-node warehouse holding almost no data",
		Telemetry:    []string{"AWS/Redshift PercentageDiskSpaceUsed"},
		Detect:       detectNearEmptyWarehouses,
	})
	Register(Scenario{
		ID:           "warehouse_old_generation",
		ResourceType: finding.TypeWarehouse,
		Kind:         finding.CostSavings,
		Doc:          "Warehouse on a node generation the provider has since superseded",
		Detect:       detectOldGenWarehouses,
	})
}

// oldGenWarehouseTarget maps superseded node types to the current line.
var oldGenWarehouseTarget = map[string]string{
	"dc1.large":   "dc2.large",
	"dc1.8xlarge": "dc2.8xlarge",
	"ds2.xlarge":  "ra3.xlplus",
	"ds2.8xlarge": "ra3.4xlarge",
}

func detectIdleWarehouses(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeWarehouse)
	var out []finding.Finding
	for _, w := range sc.Inventory.Warehouses {
		if w.Status != "available" {
			continue
		}
		conns := sc.Daily(ctx, finding.TypeWarehouse, "AWS/Redshift", "DatabaseConnections", "Maximum",
			map[string]string{"ClusterIdentifier": w.ID})
		if !fullWindow(days, conns) || conns.Max() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.WarehouseMonthly(w.NodeType, w.NumNodes)
		f := sc.newFinding(finding.TypeWarehouse, w.Meta, "warehouse_idle",
			fmt.Sprintf("%d %s nodes held zero connections for %d days", w.NumNodes, w.NodeType, days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("nodes", float64(w.NumNodes))
		out = append(out, f)
	}
	return out
}

func detectUnderutilizedWarehouses(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Warehouse
	_, _, days := sc.Lookback(finding.TypeWarehouse)
	var out []finding.Finding
	for _, w := range sc.Inventory.Warehouses {
		if w.Status != "available" || w.NumNodes <= 1 {
			continue
		}
		cpu := sc.Daily(ctx, finding.TypeWarehouse, "AWS/Redshift", "CPUUtilization", "Average",
			map[string]string{"ClusterIdentifier": w.ID})
		if !fullWindow(days, cpu) || cpu.Avg() >= r.UnderutilCPUPct {
			continue
		}
		cur, curExact := sc.Pricer.WarehouseMonthly(w.NodeType, w.NumNodes)
		tgt, tgtExact := sc.Pricer.WarehouseMonthly(w.NodeType, w.NumNodes-1)
		if !curExact || !tgtExact {
			continue
		}
		f := sc.newFinding(finding.TypeWarehouse, w.Meta, "warehouse_underutilized",
			fmt.Sprintf("averaged %.1f%% CPU across %d nodes over %d days; one fewer node would serve", cpu.Avg(), w.NumNodes, days),
			cur-tgt, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("avg_cpu_pct", cpu.Avg())
		f.Metadata.SetSignal("target_nodes", float64(w.NumNodes-1))
		out = append(out, f)
	}
	return out
}

func detectNearEmptyWarehouses(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Warehouse
	_, _, days := sc.Lookback(finding.TypeWarehouse)
	var out []finding.Finding
	for _, w := range sc.Inventory.Warehouses {
		if w.Status != "available" || w.NumNodes <= 1 {
			continue
		}
		disk := sc.Daily(ctx, finding.TypeWarehouse, "AWS/Redshift", "PercentageDiskSpaceUsed", "Average",
			map[string]string{"ClusterIdentifier": w.ID})
		if !fullWindow(days, disk) || disk.Avg() >= r.NearEmptyDiskPct {
			continue
		}
		cur, curExact := sc.Pricer.WarehouseMonthly(w.NodeType, w.NumNodes)
		tgt, tgtExact := sc.Pricer.WarehouseMonthly(w.NodeType, 1)
		if !curExact || !tgtExact {
			continue
		}
		f := sc.newFinding(finding.TypeWarehouse, w.Meta, "warehouse_near_empty",
			fmt.Sprintf("%d nodes hold %.2f%% of their disk; a single node fits the data many times over", w.NumNodes, disk.Avg()),
			cur-tgt, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("disk_used_pct", disk.Avg())
		out = append(out, f)
	}
	return out
}

func detectOldGenWarehouses(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Warehouse
	var out []finding.Finding
	for _, w := range sc.Inventory.Warehouses {
		prefix, _, found := strings.Cut(w.NodeType, ".")
		if !found || !containsFold(r.OldGenNodePrefixes, prefix) {
			continue
		}
		target, known := oldGenWarehouseTarget[w.NodeType]
		if !known {
			continue
		}
		cur, curExact := sc.Pricer.WarehouseMonthly(w.NodeType, w.NumNodes)
		tgt, tgtExact := sc.Pricer.WarehouseMonthly(target, w.NumNodes)
		savings := 0.0
		if curExact && tgtExact && cur > tgt {
			savings = cur - tgt
		}
		f := sc.newFinding(finding.TypeWarehouse, w.Meta, "warehouse_old_generation",
			fmt.Sprintf("%s is a superseded node generation; %s is the current equivalent", w.NodeType, target),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_node_type", target)
		out = append(out, f)
	}
	return out
}
