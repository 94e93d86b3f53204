package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func TestUnattachedVolume(t *testing.T) {
	inv := &inventory.Inventory{
		Volumes: []inventory.Volume{
			{Meta: meta("vol-idle", 45), State: "available", Type: "gp2", SizeGiB: 100},
			{Meta: meta("vol-used", 45), State: "in-use", Type: "gp2", SizeGiB: 100, AttachedTo: "i-1"},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectUnattachedVolumes(context.Background(), sc), "unattached")
	if f.MonthlyCost != 10.00 {
		t.Errorf("100 GiB gp2 = %.2f, want 10.00", f.MonthlyCost)
	}
	if f.CostKind != finding.CostAbsolute {
		t.Errorf("cost kind = %s, want absolute", f.CostKind)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("45 day old volume graded %s, want high", f.Metadata.Confidence)
	}
	if f.Metadata.AlreadyWasted != 15.00 {
		t.Errorf("already_wasted = %.2f, want 15.00 (45 days at 10/mo)", f.Metadata.AlreadyWasted)
	}
}

func TestUnattachedVolumeComplianceTagExempt(t *testing.T) {
	m := meta("vol-hold", 400)
	m.Tags = map[string]string{"legal-hold": "case-1841"}
	inv := &inventory.Inventory{
		Volumes: []inventory.Volume{{Meta: m, State: "available", Type: "gp2", SizeGiB: 500}},
	}
	sc := testContext(t, inv, nil)

	if fs := detectUnattachedVolumes(context.Background(), sc); len(fs) != 0 {
		t.Errorf("compliance-tagged volume still flagged: %+v", fs)
	}
}

func TestZeroIODemandsFullTelemetry(t *testing.T) {
	inv := &inventory.Inventory{
		Volumes: []inventory.Volume{
			{Meta: meta("vol-quiet", 60), State: "in-use", Type: "gp3", SizeGiB: 50, AttachedTo: "i-1"},
		},
	}

	// Missing telemetry must not fire.
	sc := testContext(t, inv, nil)
	if fs := detectZeroIOVolumes(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("zero_io fired on missing telemetry: %+v", fs)
	}

	// A full window of zeros must.
	sc = testContext(t, inv, stubMetrics{
		"VolumeReadOps":  dailySeries(30, 0),
		"VolumeWriteOps": dailySeries(30, 0),
	})
	f := requireOne(t, detectZeroIOVolumes(context.Background(), sc), "zero_io")
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
}

func TestLegacyGP2Savings(t *testing.T) {
	inv := &inventory.Inventory{
		Volumes: []inventory.Volume{
			{Meta: meta("vol-gp2", 200), State: "in-use", Type: "gp2", SizeGiB: 500},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectLegacyGP2(context.Background(), sc), "legacy_gp2")
	if f.CostKind != finding.CostSavings {
		t.Errorf("cost kind = %s, want savings", f.CostKind)
	}
	// 500 GiB: gp2 50.00 vs gp3 40.00, and 1500 equivalent IOPS sit
	// inside the gp3 baseline.
	if f.MonthlyCost != 10.00 {
		t.Errorf("savings = %.2f, want 10.00", f.MonthlyCost)
	}
	if f.Metadata.AlreadyWasted != 0 {
		t.Errorf("savings finding carries already_wasted %.2f", f.Metadata.AlreadyWasted)
	}
}

func TestOverprovisionedIOPSTargetsObservedPeak(t *testing.T) {
	inv := &inventory.Inventory{
		Volumes: []inventory.Volume{
			{Meta: meta("vol-io1", 90), State: "in-use", Type: "io1", SizeGiB: 100, IOPS: 10000},
		},
	}
	// 864k ops/day = 10 IOPS sustained peak, far under 10000 provisioned.
	sc := testContext(t, inv, stubMetrics{
		"VolumeReadOps":  dailySeries(30, 432000),
		"VolumeWriteOps": dailySeries(30, 432000),
	})

	f := requireOne(t, detectOverprovisionedIOPS(context.Background(), sc), "overprovisioned_iops")
	if f.MonthlyCost <= 0 {
		t.Errorf("savings = %.2f, want positive", f.MonthlyCost)
	}
	if f.Metadata.Signals["target_iops"] >= 10000 {
		t.Errorf("target_iops = %.0f, want well under the provisioned 10000", f.Metadata.Signals["target_iops"])
	}
}
