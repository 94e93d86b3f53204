package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func TestEmptyK8sCluster(t *testing.T) {
	inv := &inventory.Inventory{
		K8sClusters: []inventory.K8sCluster{
			// No live view (-1): node-group absence alone carries the claim.
			{Meta: meta("eks-abandoned", 30), Status: "ACTIVE", LiveNodes: -1, LiveWorkloads: -1},
			{Meta: meta("eks-new", 10), Status: "ACTIVE", LiveNodes: -1, LiveWorkloads: -1},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectEmptyK8sClusters(context.Background(), sc), "eks_empty_cluster")
	if f.ResourceID != "eks-abandoned" {
		t.Fatalf("flagged %s, want eks-abandoned", f.ResourceID)
	}
	// The control plane fee.
	if f.MonthlyCost != 72.00 {
		t.Errorf("monthly = %.2f, want 72.00", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
}

func TestGhostNodegroupNeedsLiveView(t *testing.T) {
	groups := []inventory.NodeGroup{{Name: "workers", DesiredSize: 3, Status: "ACTIVE"}}

	// Without cluster access LiveNodes stays -1 and the claim cannot be made.
	inv := &inventory.Inventory{
		K8sClusters: []inventory.K8sCluster{
			{Meta: meta("eks-blind", 60), Status: "ACTIVE", NodeGroups: groups, LiveNodes: -1, LiveWorkloads: -1},
		},
	}
	sc := testContext(t, inv, nil)
	if fs := detectGhostNodegroups(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("ghost_nodegroup fired without a live node count: %+v", fs)
	}

	inv = &inventory.Inventory{
		K8sClusters: []inventory.K8sCluster{
			{Meta: meta("eks-ghost", 60), Status: "ACTIVE", NodeGroups: groups, LiveNodes: 0, LiveWorkloads: -1},
		},
	}
	sc = testContext(t, inv, nil)
	f := requireOne(t, detectGhostNodegroups(context.Background(), sc), "ghost_nodegroup")
	if f.Metadata.Signals["desired_nodes"] != 3 {
		t.Errorf("desired_nodes = %.0f, want 3", f.Metadata.Signals["desired_nodes"])
	}
}

func TestWorkloadlessCluster(t *testing.T) {
	inv := &inventory.Inventory{
		K8sClusters: []inventory.K8sCluster{
			{Meta: meta("eks-idle", 90), Status: "ACTIVE", LiveNodes: 5, LiveWorkloads: 0},
			// Unknown workload count is not zero workloads.
			{Meta: meta("eks-opaque", 90), Status: "ACTIVE", LiveNodes: 5, LiveWorkloads: -1},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectWorkloadlessClusters(context.Background(), sc), "workloadless_cluster")
	if f.ResourceID != "eks-idle" {
		t.Fatalf("flagged %s, want eks-idle", f.ResourceID)
	}
	if f.Metadata.Signals["live_nodes"] != 5 {
		t.Errorf("live_nodes = %.0f, want 5", f.Metadata.Signals["live_nodes"])
	}
}
