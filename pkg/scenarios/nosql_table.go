package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "overprovisioned_capacity",
		ResourceType: finding.TypeNoSQLTable,
		Kind:         finding.CostSavings,
		Doc:          "Provisioned table capacity far above consumption",
		Telemetry:    []string{"AWS/DynamoDB ConsumedReadCapacityUnits", "AWS/DynamoDB ConsumedWriteCapacityUnits"},
		Detect:       detectOverprovisionedTables,
	})
	Register(Scenario{
		ID:           "empty_table",
		ResourceType: finding.TypeNoSQLTable,
		Kind:         finding.CostAbsolute,
		Doc:          "Table that has held zero items for long enough to matter",
		Detect:       detectEmptyTables,
	})
	Register(Scenario{
		ID:           "unused_gsi",
		ResourceType: finding.TypeNoSQLTable,
		Kind:         finding.CostSavings,
		Doc:          "Secondary index no query ever touches",
		Telemetry:    []string{"AWS/DynamoDB ConsumedReadCapacityUnits"},
		Detect:       detectUnusedGSIs,
	})
	Register(Scenario{
		ID:           "hot_partition",
		ResourceType: finding.TypeNoSQLTable,
		Kind:         finding.CostSavings,
		Doc:          "Table throttling on one key while its average sits idle",
		Telemetry:    []string{"AWS/DynamoDB ReadThrottleEvents", "AWS/DynamoDB WriteThrottleEvents"},
		Detect:       detectHotPartitions,
	})
	Register(Scenario{
		ID:           "no_autoscaling",
		ResourceType: finding.TypeNoSQLTable,
		Kind:         finding.CostSavings,
		Doc:          "Provisioned table pinned to fixed capacity with no autoscaling",
		Detect:       detectTablesWithoutAutoscaling,
	})
}

func tableConsumed(ctx context.Context, sc *Context, name string) (reads, writes metricops.Sample) {
	dims := map[string]string{"TableName": name}
	reads = sc.Daily(ctx, finding.TypeNoSQLTable, "AWS/DynamoDB", "ConsumedReadCapacityUnits", "Sum", dims)
	writes = sc.Daily(ctx, finding.TypeNoSQLTable, "AWS/DynamoDB", "ConsumedWriteCapacityUnits", "Sum", dims)
	return reads, writes
}

func detectOverprovisionedTables(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NoSQLTable
	_, _, days := sc.Lookback(finding.TypeNoSQLTable)
	var out []finding.Finding
	for _, t := range sc.Inventory.Tables {
		if t.BillingMode != "PROVISIONED" || t.ReadCapacity == 0 {
			continue
		}
		reads, writes := tableConsumed(ctx, sc, t.ID)
		if !fullWindow(days, reads, writes) {
			continue
		}
		secs := observedSeconds(reads, writes)
		if secs == 0 {
			continue
		}
		avgRCU := reads.Sum() / secs
		avgWCU := writes.Sum() / secs
		if avgRCU*r.CapacityHeadroomFactor >= float64(t.ReadCapacity) ||
			avgWCU*r.CapacityHeadroomFactor >= float64(t.WriteCapacity) {
			continue
		}
		targetRCU := max(avgRCU*2, 1)
		targetWCU := max(avgWCU*2, 1)
		cur := sc.Pricer.TableMonthly(float64(t.ReadCapacity), float64(t.WriteCapacity), 0)
		tgt := sc.Pricer.TableMonthly(targetRCU, targetWCU, 0)
		savings := cur - tgt
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeNoSQLTable, t.Meta, "overprovisioned_capacity",
			fmt.Sprintf("provisioned %d/%d RCU/WCU but consumed %.1f/%.1f on average over %d days", t.ReadCapacity, t.WriteCapacity, avgRCU, avgWCU, days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("avg_consumed_rcu", avgRCU)
		f.Metadata.SetSignal("avg_consumed_wcu", avgWCU)
		f.Metadata.SetSignal("target_rcu", targetRCU)
		f.Metadata.SetSignal("target_wcu", targetWCU)
		out = append(out, f)
	}
	return out
}

func detectEmptyTables(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NoSQLTable
	var out []finding.Finding
	for _, t := range sc.Inventory.Tables {
		if t.ItemCount != 0 {
			continue
		}
		age := finding.AgeDays(t.CreatedAt, sc.Now)
		if age < r.EmptyMinAgeDays {
			continue
		}
		var monthly float64
		if t.BillingMode == "PROVISIONED" {
			monthly = sc.Pricer.TableMonthly(float64(t.ReadCapacity), float64(t.WriteCapacity), 0)
		}
		f := sc.newFinding(finding.TypeNoSQLTable, t.Meta, "empty_table",
			fmt.Sprintf("held zero items for its whole %d day life", age),
			monthly, finding.CostAbsolute)
		f.Metadata.SetDetail("billing_mode", t.BillingMode)
		out = append(out, f)
	}
	return out
}

func detectUnusedGSIs(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeNoSQLTable)
	var out []finding.Finding
	for _, t := range sc.Inventory.Tables {
		if t.BillingMode != "PROVISIONED" {
			continue
		}
		for _, gsi := range t.GSIs {
			reads := sc.Daily(ctx, finding.TypeNoSQLTable, "AWS/DynamoDB", "ConsumedReadCapacityUnits", "Sum",
				map[string]string{"TableName": t.ID, "GlobalSecondaryIndexName": gsi.Name})
			if !fullWindow(days, reads) || reads.Sum() > 0 {
				continue
			}
			savings := sc.Pricer.TableMonthly(float64(gsi.ReadCapacity), float64(gsi.WriteCapacity), 0)
			if savings <= 0 {
				continue
			}
			f := sc.newFinding(finding.TypeNoSQLTable, t.Meta, "unused_gsi",
				fmt.Sprintf("index %s consumed zero read capacity in %d days; every write still pays to maintain it", gsi.Name, days),
				savings, finding.CostSavings)
			raise(&f, finding.ConfidenceHigh)
			f.Metadata.SetDetail("index_name", gsi.Name)
			out = append(out, f)
		}
	}
	return out
}

func detectHotPartitions(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.NoSQLTable
	_, _, days := sc.Lookback(finding.TypeNoSQLTable)
	var out []finding.Finding
	for _, t := range sc.Inventory.Tables {
		if t.BillingMode != "PROVISIONED" || t.ReadCapacity == 0 {
			continue
		}
		dims := map[string]string{"TableName": t.ID}
		readThrottles := sc.Daily(ctx, finding.TypeNoSQLTable, "AWS/DynamoDB", "ReadThrottleEvents", "Sum", dims)
		writeThrottles := sc.Daily(ctx, finding.TypeNoSQLTable, "AWS/DynamoDB", "WriteThrottleEvents", "Sum", dims)
		throttles := readThrottles.Sum() + writeThrottles.Sum()
		if throttles == 0 {
			continue
		}
		reads, writes := tableConsumed(ctx, sc, t.ID)
		if !fullWindow(days, reads, writes) {
			continue
		}
		secs := observedSeconds(reads, writes)
		if secs == 0 {
			continue
		}
		avgRCU := reads.Sum() / secs
		// Throttling despite a mostly idle average means one key is hot
		// and the whole table is provisioned around it.
		if avgRCU*r.SkewFactor >= float64(t.ReadCapacity) {
			continue
		}
		targetRCU := max(avgRCU*2, 1)
		savings := sc.Pricer.TableMonthly(float64(t.ReadCapacity), 0, 0) - sc.Pricer.TableMonthly(targetRCU, 0, 0)
		if savings <= 0 {
			continue
		}
		f := sc.newFinding(finding.TypeNoSQLTable, t.Meta, "hot_partition",
			fmt.Sprintf("%.0f throttle events despite %.1f%% average utilization; one hot key is sizing the whole table", throttles, avgRCU/float64(t.ReadCapacity)*100),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("throttle_events", throttles)
		f.Metadata.SetSignal("avg_consumed_rcu", avgRCU)
		out = append(out, f)
	}
	return out
}

func detectTablesWithoutAutoscaling(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, t := range sc.Inventory.Tables {
		if t.BillingMode != "PROVISIONED" || t.HasAutoscaling {
			continue
		}
		f := sc.newFinding(finding.TypeNoSQLTable, t.Meta, "no_autoscaling",
			fmt.Sprintf("pinned to %d/%d RCU/WCU with no autoscaling; capacity never follows load", t.ReadCapacity, t.WriteCapacity),
			0, finding.CostSavings)
		f.Metadata.SetSignal("provisioned_rcu", float64(t.ReadCapacity))
		f.Metadata.SetSignal("provisioned_wcu", float64(t.WriteCapacity))
		out = append(out, f)
	}
	return out
}
