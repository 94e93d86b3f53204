package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func TestUnassociatedAddressGrading(t *testing.T) {
	inv := &inventory.Inventory{
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-10d", 10), Address: "203.0.113.10"},
			{Meta: meta("eipalloc-used", 10), Address: "203.0.113.11", AssociationID: "eipassoc-1", InstanceID: "i-1"},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectUnassociatedIPs(context.Background(), sc), "unassociated")
	if f.MonthlyCost != 3.60 {
		t.Errorf("monthly cost = %.2f, want 3.60", f.MonthlyCost)
	}
	// Ten days idle sits past the 7-day rung on the address ladder.
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
	if f.Metadata.AlreadyWasted != 1.20 {
		t.Errorf("already_wasted = %.2f, want 1.20", f.Metadata.AlreadyWasted)
	}
	if f.CostKind != finding.CostAbsolute {
		t.Errorf("cost kind = %s, want absolute", f.CostKind)
	}
}

func TestUnassociatedAddressFreshAllocationGradesLow(t *testing.T) {
	inv := &inventory.Inventory{
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-new", 1), Address: "203.0.113.9"},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectUnassociatedIPs(context.Background(), sc), "unassociated")
	if f.Metadata.Confidence != finding.ConfidenceLow {
		t.Errorf("day-old address graded %s, want low", f.Metadata.Confidence)
	}
}

func TestExtraAddressesKeepLongestHeldFlagRest(t *testing.T) {
	inv := &inventory.Inventory{
		Instances: []inventory.Instance{
			{Meta: meta("i-multi", 100), State: "running", Type: "m5.large"},
		},
		// The longest-held address carries the highest ID, so sorting by
		// ID instead of allocation age would pick the wrong keeper.
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-a", 80), InstanceID: "i-multi", AssociationID: "as-1"},
			{Meta: meta("eipalloc-b", 90), InstanceID: "i-multi", AssociationID: "as-2"},
			{Meta: meta("eipalloc-z", 100), InstanceID: "i-multi", AssociationID: "as-3"},
		},
	}
	sc := testContext(t, inv, nil)

	fs := detectExtraIPsPerInstance(context.Background(), sc)
	if len(fs) != 2 {
		t.Fatalf("expected 2 extra-address findings, got %d", len(fs))
	}
	for _, f := range fs {
		if f.ResourceID == "eipalloc-z" {
			t.Errorf("longest-held address flagged; it should be the keeper")
		}
		if f.Metadata.Signals["addresses_on_instance"] != 3 {
			t.Errorf("addresses_on_instance = %.0f, want 3", f.Metadata.Signals["addresses_on_instance"])
		}
	}
}

func TestExtraAddressesUnknownAllocationTimeNeverKept(t *testing.T) {
	inv := &inventory.Inventory{
		Instances: []inventory.Instance{
			{Meta: meta("i-multi", 100), State: "running", Type: "m5.large"},
		},
		PublicIPs: []inventory.PublicIP{
			// No allocation event in the digest: CreatedAt stays zero.
			{Meta: inventory.Meta{ID: "eipalloc-mystery", Name: "eipalloc-mystery", Region: "us-east-1"}, InstanceID: "i-multi", AssociationID: "as-1"},
			{Meta: meta("eipalloc-known", 50), InstanceID: "i-multi", AssociationID: "as-2"},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectExtraIPsPerInstance(context.Background(), sc), "extra_per_instance")
	if f.ResourceID != "eipalloc-mystery" {
		t.Errorf("flagged %s; the address with known history should be the keeper", f.ResourceID)
	}
}

func TestExtraAddressesHATagExempts(t *testing.T) {
	m := meta("i-ha", 100)
	m.Tags = map[string]string{"failover": "pair-a"}
	inv := &inventory.Inventory{
		Instances: []inventory.Instance{{Meta: m, State: "running", Type: "m5.large"}},
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-a", 100), InstanceID: "i-ha", AssociationID: "as-1"},
			{Meta: meta("eipalloc-b", 90), InstanceID: "i-ha", AssociationID: "as-2"},
		},
	}
	sc := testContext(t, inv, nil)

	if fs := detectExtraIPsPerInstance(context.Background(), sc); len(fs) != 0 {
		t.Errorf("HA-tagged instance still flagged: %+v", fs)
	}
}

func TestNeverAssociatedRequiresDigestEvidence(t *testing.T) {
	inv := &inventory.Inventory{
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-x", 200), Address: "203.0.113.12"},
		},
	}
	sc := testContext(t, inv, nil)

	// Without digest confirmation the address is merely unassociated.
	if fs := detectNeverAssociatedIPs(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("never_associated fired without digest evidence: %+v", fs)
	}

	inv.PublicIPs[0].NeverAssociated = true
	f := requireOne(t, detectNeverAssociatedIPs(context.Background(), sc), "never_associated")
	if f.Metadata.Detail["evidence_source"] != "allocation event digest" {
		t.Errorf("evidence_source = %q", f.Metadata.Detail["evidence_source"])
	}
}

func TestAddressOnStoppedInstanceClockStartsAtStop(t *testing.T) {
	inv := &inventory.Inventory{
		Instances: []inventory.Instance{
			{
				Meta:         meta("i-stopped", 300),
				State:        "stopped",
				Type:         "t3.medium",
				StoppedSince: testNow.AddDate(0, 0, -45),
			},
		},
		PublicIPs: []inventory.PublicIP{
			{Meta: meta("eipalloc-s", 300), InstanceID: "i-stopped", AssociationID: "as-9"},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectIPsOnStoppedInstances(context.Background(), sc), "associated_stopped_instance")
	// 45 days stopped at 3.60/mo, regardless of the address's own age.
	if f.Metadata.AlreadyWasted != 5.40 {
		t.Errorf("already_wasted = %.2f, want 5.40", f.Metadata.AlreadyWasted)
	}
	if f.Metadata.Signals["instance_stopped_days"] != 45 {
		t.Errorf("instance_stopped_days = %.0f, want 45", f.Metadata.Signals["instance_stopped_days"])
	}
}
