package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func init() {
	Register(Scenario{
		ID:           "eks_empty_cluster",
		ResourceType: finding.TypeK8sCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Control plane billed with no node groups behind it",
		Detect:       detectEmptyK8sClusters,
	})
	Register(Scenario{
		ID:           "ghost_nodegroup",
		ResourceType: finding.TypeK8sCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Node groups want capacity the cluster never sees",
		Detect:       detectGhostNodegroups,
	})
	Register(Scenario{
		ID:           "workloadless_cluster",
		ResourceType: finding.TypeK8sCluster,
		Kind:         finding.CostAbsolute,
		Doc:          "Nodes up, nothing scheduled on them",
		Detect:       detectWorkloadlessClusters,
	})
}

func detectEmptyK8sClusters(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.K8sCluster
	var out []finding.Finding
	for _, cl := range sc.Inventory.K8sClusters {
		if cl.Status != "ACTIVE" || len(cl.NodeGroups) > 0 {
			continue
		}
		// LiveNodes -1 means no live view; node-group absence is enough.
		if cl.LiveNodes > 0 {
			continue
		}
		age := finding.AgeDays(cl.CreatedAt, sc.Now)
		if age <= r.EmptyClusterDays {
			continue
		}
		f := sc.newFinding(finding.TypeK8sCluster, cl.Meta, "eks_empty_cluster",
			fmt.Sprintf("control plane up for %d days with no node groups", age),
			sc.Pricer.EKSClusterMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		out = append(out, f)
	}
	return out
}

func detectGhostNodegroups(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, cl := range sc.Inventory.K8sClusters {
		if cl.Status != "ACTIVE" || cl.LiveNodes != 0 {
			continue
		}
		desired := 0
		for _, ng := range cl.NodeGroups {
			desired += ng.DesiredSize
		}
		if desired == 0 {
			continue
		}
		f := sc.newFinding(finding.TypeK8sCluster, cl.Meta, "ghost_nodegroup",
			fmt.Sprintf("node groups want %d nodes but none have joined the cluster", desired),
			sc.Pricer.EKSClusterMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("desired_nodes", float64(desired))
		out = append(out, f)
	}
	return out
}

func detectWorkloadlessClusters(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, cl := range sc.Inventory.K8sClusters {
		if cl.Status != "ACTIVE" || cl.LiveNodes <= 0 || cl.LiveWorkloads != 0 {
			continue
		}
		f := sc.newFinding(finding.TypeK8sCluster, cl.Meta, "workloadless_cluster",
			fmt.Sprintf("%d nodes are up with nothing scheduled beyond system pods", cl.LiveNodes),
			sc.Pricer.EKSClusterMonthly(), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("live_nodes", float64(cl.LiveNodes))
		out = append(out, f)
	}
	return out
}
