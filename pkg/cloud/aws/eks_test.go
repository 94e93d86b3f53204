package aws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type stubEnricher struct {
	asked     []string
	err       error
	nodes     int
	workloads int
}

func (s *stubEnricher) Enrich(_ context.Context, inv *inventory.Inventory, name string) error {
	s.asked = append(s.asked, name)
	if s.err != nil {
		return s.err
	}
	for i := range inv.K8sClusters {
		if inv.K8sClusters[i].Name == name {
			inv.K8sClusters[i].LiveNodes = s.nodes
			inv.K8sClusters[i].LiveWorkloads = s.workloads
		}
	}
	return nil
}

func clusterInventory(names ...string) *inventory.Inventory {
	inv := &inventory.Inventory{Region: "us-east-1"}
	for _, name := range names {
		inv.K8sClusters = append(inv.K8sClusters, inventory.K8sCluster{
			Meta:          inventory.Meta{ID: name, Name: name, Region: "us-east-1"},
			Status:        "ACTIVE",
			LiveNodes:     -1,
			LiveWorkloads: -1,
		})
	}
	return inv
}

func enrichAdapter(e ClusterEnricher, cluster string) *Adapter {
	return &Adapter{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		enricher:      e,
		enrichCluster: cluster,
	}
}

func TestEnrichClustersFillsOnlyCluster(t *testing.T) {
	stub := &stubEnricher{nodes: 3, workloads: 7}
	inv := clusterInventory("prod")

	enrichAdapter(stub, "").enrichClusters(context.Background(), inv)

	if len(stub.asked) != 1 || stub.asked[0] != "prod" {
		t.Fatalf("enricher asked about %v, want [prod]", stub.asked)
	}
	if got := inv.K8sClusters[0].LiveNodes; got != 3 {
		t.Errorf("LiveNodes = %d, want 3", got)
	}
	if got := inv.K8sClusters[0].LiveWorkloads; got != 7 {
		t.Errorf("LiveWorkloads = %d, want 7", got)
	}
}

func TestEnrichClustersHonorsConfiguredName(t *testing.T) {
	stub := &stubEnricher{nodes: 2, workloads: 4}
	inv := clusterInventory("staging", "prod")

	enrichAdapter(stub, "prod").enrichClusters(context.Background(), inv)

	if len(stub.asked) != 1 || stub.asked[0] != "prod" {
		t.Fatalf("enricher asked about %v, want [prod]", stub.asked)
	}
	if inv.K8sClusters[0].LiveNodes != -1 {
		t.Error("unnamed cluster lost its unknown sentinel")
	}
	if inv.K8sClusters[1].LiveNodes != 2 {
		t.Errorf("named cluster LiveNodes = %d, want 2", inv.K8sClusters[1].LiveNodes)
	}
}

func TestEnrichClustersSkipsAmbiguousRegion(t *testing.T) {
	stub := &stubEnricher{}
	inv := clusterInventory("staging", "prod")

	enrichAdapter(stub, "").enrichClusters(context.Background(), inv)

	if len(stub.asked) != 0 {
		t.Errorf("enricher consulted for %v despite ambiguity", stub.asked)
	}
	for _, cl := range inv.K8sClusters {
		if cl.LiveNodes != -1 || cl.LiveWorkloads != -1 {
			t.Errorf("cluster %s lost its unknown sentinels", cl.Name)
		}
	}
}

func TestEnrichClustersFailsOpen(t *testing.T) {
	stub := &stubEnricher{err: errors.New("cluster unreachable")}
	inv := clusterInventory("prod")

	enrichAdapter(stub, "").enrichClusters(context.Background(), inv)

	if inv.K8sClusters[0].LiveNodes != -1 {
		t.Error("failed enrichment overwrote the unknown sentinel")
	}

	// No enricher configured at all is a quiet no-op.
	enrichAdapter(nil, "").enrichClusters(context.Background(), inv)
}
