package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "unassociated_acl",
		ResourceType: finding.TypeWAFACL,
		Kind:         finding.CostAbsolute,
		Doc:          "Web ACL attached to nothing",
		Detect:       detectUnassociatedACLs,
	})
	Register(Scenario{
		ID:           "empty_acl",
		ResourceType: finding.TypeWAFACL,
		Kind:         finding.CostAbsolute,
		Doc:          "Web ACL with no rules; it inspects nothing",
		Detect:       detectEmptyACLs,
	})
}

func detectUnassociatedACLs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, acl := range sc.Inventory.WebACLs {
		if acl.AssociatedResources != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeWAFACL, acl.Meta, "unassociated_acl",
			fmt.Sprintf("ACL with %d rules protects no resource", acl.RuleCount),
			sc.Pricer.WebACLMonthly(acl.RuleCount), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("scope", acl.Scope)
		out = append(out, f)
	}
	return out
}

func detectEmptyACLs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, acl := range sc.Inventory.WebACLs {
		if acl.RuleCount != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeWAFACL, acl.Meta, "empty_acl",
			"ACL has no rules; the base fee buys zero inspection",
			sc.Pricer.WebACLMonthly(0), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("scope", acl.Scope)
		out = append(out, f)
	}
	return out
}
