package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "unused_role",
		ResourceType: finding.TypeIAMRole,
		Kind:         finding.CostAbsolute,
		Doc:          "Role nothing has assumed in months",
		Detect:       detectUnusedRoles,
	})
	Register(Scenario{
		ID:           "never_used_role",
		ResourceType: finding.TypeIAMRole,
		Kind:         finding.CostAbsolute,
		Doc:          "Role created and never assumed",
		Detect:       detectNeverUsedRoles,
	})
}

func detectUnusedRoles(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.IAMRole
	ladder := sc.Rules.LadderFor(finding.TypeIAMRole)
	var out []finding.Finding
	for _, role := range sc.Inventory.Roles {
		if role.ServiceLinked || role.LastUsed.IsZero() {
			continue
		}
		idleDays := finding.AgeDays(role.LastUsed, sc.Now)
		if idleDays <= r.UnusedDays {
			continue
		}
		// Roles are free; the waste is attack surface, not dollars.
		f := sc.newFinding(finding.TypeIAMRole, role.Meta, "unused_role",
			fmt.Sprintf("last assumed %d days ago; standing credentials nobody uses", idleDays),
			0, finding.CostAbsolute)
		raise(&f, ladder.ForAge(idleDays))
		f.Metadata.SetSignal("idle_days", float64(idleDays))
		out = append(out, f)
	}
	return out
}

func detectNeverUsedRoles(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.IAMRole
	var out []finding.Finding
	for _, role := range sc.Inventory.Roles {
		if role.ServiceLinked || !role.LastUsed.IsZero() {
			continue
		}
		age := finding.AgeDays(role.CreatedAt, sc.Now)
		if age <= r.NeverUsedMinDays {
			continue
		}
		f := sc.newFinding(finding.TypeIAMRole, role.Meta, "never_used_role",
			fmt.Sprintf("created %d days ago and never assumed", age),
			0, finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		out = append(out, f)
	}
	return out
}
