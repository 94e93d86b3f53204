package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "empty_zone",
		ResourceType: finding.TypeDNSZone,
		Kind:         finding.CostAbsolute,
		Doc:          "Hosted zone holding only its own NS and SOA records",
		Detect:       detectEmptyZones,
	})
	Register(Scenario{
		ID:           "unused_health_check",
		ResourceType: finding.TypeDNSZone,
		Kind:         finding.CostAbsolute,
		Doc:          "Health check no record set references",
		Detect:       detectUnusedHealthChecks,
	})
}

// Every zone carries one NS and one SOA record it cannot shed.
const zoneBaselineRecords = 2

func detectEmptyZones(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, z := range sc.Inventory.Zones {
		if z.RecordCount > zoneBaselineRecords {
			continue
		}
		f := sc.newFinding(finding.TypeDNSZone, z.Meta, "empty_zone",
			"zone holds only its own NS and SOA records; nothing resolves through it",
			sc.Pricer.HostedZoneMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		if z.Private {
			f.Metadata.SetDetail("zone_type", "private")
		}
		out = append(out, f)
	}
	return out
}

func detectUnusedHealthChecks(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, hc := range sc.Inventory.HealthChecks {
		if hc.InUse {
			continue
		}
		f := sc.newFinding(finding.TypeDNSZone, hc.Meta, "unused_health_check",
			fmt.Sprintf("health check %s probes an endpoint no record set references", hc.DisplayName()),
			sc.Pricer.HealthCheckMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		out = append(out, f)
	}
	return out
}
