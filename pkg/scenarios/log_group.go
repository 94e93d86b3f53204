package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "no_retention_policy",
		ResourceType: finding.TypeLogGroup,
		Kind:         finding.CostAbsolute,
		Doc:          "Log group retaining forever; storage only ever grows",
		Detect:       detectNoRetention,
	})
	Register(Scenario{
		ID:           "idle_log_group",
		ResourceType: finding.TypeLogGroup,
		Kind:         finding.CostAbsolute,
		Doc:          "Log group nothing writes to anymore",
		Telemetry:    []string{"AWS/Logs IncomingBytes"},
		Detect:       detectIdleLogGroups,
	})
}

func detectNoRetention(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.LogGroup
	var out []finding.Finding
	for _, lg := range sc.Inventory.LogGroups {
		storedGB := float64(lg.StoredBytes) / (1 << 30)
		if lg.RetentionDays != 0 || storedGB < r.MinStoredGB {
			continue
		}
		f := sc.newFinding(finding.TypeLogGroup, lg.Meta, "no_retention_policy",
			fmt.Sprintf("never-expire retention has accumulated %.1f GB", storedGB),
			sc.Pricer.LogStorageMonthly(storedGB), finding.CostAbsolute)
		f.Metadata.SetSignal("stored_gb", storedGB)
		out = append(out, f)
	}
	return out
}

func detectIdleLogGroups(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeLogGroup)
	var out []finding.Finding
	for _, lg := range sc.Inventory.LogGroups {
		if lg.StoredBytes == 0 {
			continue
		}
		incoming := sc.Daily(ctx, finding.TypeLogGroup, "AWS/Logs", "IncomingBytes", "Sum",
			map[string]string{"LogGroupName": lg.ID})
		if !fullWindow(days, incoming) || incoming.Sum() > 0 {
			continue
		}
		storedGB := float64(lg.StoredBytes) / (1 << 30)
		f := sc.newFinding(finding.TypeLogGroup, lg.Meta, "idle_log_group",
			fmt.Sprintf("no incoming events in %d days; %.1f GB of history just sits", days, storedGB),
			sc.Pricer.LogStorageMonthly(storedGB), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("stored_gb", storedGB)
		out = append(out, f)
	}
	return out
}
