package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

// Invocations only exist as a metric when something runs, so both silence
// scenarios run against an empty metric source here.
func TestSilentFunctionsSplitOnAge(t *testing.T) {
	inv := &inventory.Inventory{
		Functions: []inventory.Function{
			{Meta: meta("fn-young", 45), Runtime: "python3.12", MemoryMB: 2048, ProvisionedConcurrency: 2},
			{Meta: meta("fn-old", 120), Runtime: "python3.12", MemoryMB: 512},
			{Meta: meta("fn-fresh", 10), Runtime: "python3.12", MemoryMB: 128},
		},
	}
	sc := testContext(t, inv, nil)

	// Lived its whole 45 days inside the 90 day window: never invoked.
	f := requireOne(t, detectNeverInvoked(context.Background(), sc), "never_invoked")
	if f.ResourceID != "fn-young" {
		t.Fatalf("never_invoked flagged %s, want fn-young", f.ResourceID)
	}
	// 2 warm instances of 2 GiB at 10.80/GiB-month.
	if f.MonthlyCost != 43.20 {
		t.Errorf("idle cost = %.2f, want 43.20", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}

	// Predates the window: it used to exist, now nothing calls it.
	f = requireOne(t, detectZeroInvocations(context.Background(), sc), "zero_invocations")
	if f.ResourceID != "fn-old" {
		t.Fatalf("zero_invocations flagged %s, want fn-old", f.ResourceID)
	}
	// No provisioned concurrency, so silence costs nothing yet.
	if f.MonthlyCost != 0 {
		t.Errorf("idle cost = %.2f, want 0", f.MonthlyCost)
	}
}

func TestAllErrorsBillsTheRetries(t *testing.T) {
	inv := &inventory.Inventory{
		Functions: []inventory.Function{
			{Meta: meta("fn-broken", 200), Runtime: "nodejs18.x", MemoryMB: 1024},
		},
	}
	sc := testContext(t, inv, stubMetrics{
		"Invocations": dailySeries(90, 1000),
		"Errors":      dailySeries(90, 1000),
		"Duration":    dailySeries(90, 500),
	})

	f := requireOne(t, detectAllErrors(context.Background(), sc), "all_errors")
	if f.Metadata.Signals["error_rate_pct"] != 100 {
		t.Errorf("error_rate_pct = %.1f, want 100", f.Metadata.Signals["error_rate_pct"])
	}
	// 30000 invocations/month at 500ms on 1 GiB = 15000 GB-seconds.
	if f.MonthlyCost != 0.25 {
		t.Errorf("compute = %.2f, want 0.25", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
}

func TestUnusedProvisionedConcurrency(t *testing.T) {
	inv := &inventory.Inventory{
		Functions: []inventory.Function{
			{Meta: meta("fn-warm", 60), Runtime: "provided.al2023", MemoryMB: 1024, ProvisionedConcurrency: 4},
		},
	}

	// Healthy utilization keeps it quiet.
	sc := testContext(t, inv, stubMetrics{
		"ProvisionedConcurrencyUtilization": dailySeries(90, 0.5),
	})
	if fs := detectUnusedProvisioned(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("fired at 50%% utilization: %+v", fs)
	}

	// No utilization samples at all: the warm pool has never answered.
	sc = testContext(t, inv, nil)
	f := requireOne(t, detectUnusedProvisioned(context.Background(), sc), "provisioned_concurrency_unused")
	// 4 warm GiB at 10.80.
	if f.MonthlyCost != 43.20 {
		t.Errorf("savings = %.2f, want 43.20", f.MonthlyCost)
	}
	if f.CostKind != finding.CostSavings {
		t.Errorf("cost kind = %s, want savings", f.CostKind)
	}
	if f.Metadata.Signals["provisioned_concurrency"] != 4 {
		t.Errorf("provisioned_concurrency = %.0f, want 4", f.Metadata.Signals["provisioned_concurrency"])
	}
}

func TestDeprecatedRuntime(t *testing.T) {
	inv := &inventory.Inventory{
		Functions: []inventory.Function{
			{Meta: meta("fn-ancient", 400), Runtime: "python2.7", MemoryMB: 128},
			{Meta: meta("fn-modern", 400), Runtime: "python3.12", MemoryMB: 128},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectDeprecatedRuntime(context.Background(), sc), "deprecated_runtime")
	if f.ResourceID != "fn-ancient" {
		t.Fatalf("flagged %s, want fn-ancient", f.ResourceID)
	}
	if f.MonthlyCost != 0 {
		t.Errorf("deprecated runtime bills %.2f, want 0; the cost is operational", f.MonthlyCost)
	}
	if f.Metadata.Detail["runtime"] != "python2.7" {
		t.Errorf("runtime = %q, want python2.7", f.Metadata.Detail["runtime"])
	}
}
