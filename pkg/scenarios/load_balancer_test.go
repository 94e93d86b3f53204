package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func TestTargetlessLB(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-empty", 30), Kind: "application", ListenerCount: 2},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectTargetlessLBs(context.Background(), sc), "no_targets")
	if f.MonthlyCost != 16.20 {
		t.Errorf("application LB monthly = %.2f, want 16.20", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
	if f.Metadata.Detail["kind"] != "application" {
		t.Errorf("kind = %q, want application", f.Metadata.Detail["kind"])
	}
}

func TestAllTargetsUnhealthy(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-sick", 30), Kind: "application", ListenerCount: 1, TargetsTotal: 3, TargetsHealthy: 0},
			{Meta: meta("lb-fine", 30), Kind: "application", ListenerCount: 1, TargetsTotal: 3, TargetsHealthy: 1},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectAllUnhealthyLBs(context.Background(), sc), "all_targets_unhealthy")
	if f.ResourceID != "lb-sick" {
		t.Fatalf("flagged %s, want lb-sick", f.ResourceID)
	}
	if f.Metadata.Signals["targets_total"] != 3 {
		t.Errorf("targets_total = %.0f, want 3", f.Metadata.Signals["targets_total"])
	}
}

func TestZeroRequestsNeedsFullWindow(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-quiet", 60), Kind: "application", ListenerCount: 1, TargetsTotal: 2, TargetsHealthy: 2},
		},
	}

	sc := testContext(t, inv, nil)
	if fs := detectZeroRequestLBs(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("zero_requests fired on missing telemetry: %+v", fs)
	}

	sc = testContext(t, inv, stubMetrics{"RequestCount": dailySeries(30, 0)})
	f := requireOne(t, detectZeroRequestLBs(context.Background(), sc), "zero_requests")
	if f.MonthlyCost != 16.20 {
		t.Errorf("monthly = %.2f, want 16.20", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
}

func TestClassicLBSavings(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-old", 200), Kind: "classic", ListenerCount: 1, TargetsTotal: 2, TargetsHealthy: 2},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectClassicLBs(context.Background(), sc), "legacy_classic_lb")
	// classic 18.00 vs application 16.20.
	if f.MonthlyCost != 1.80 {
		t.Errorf("savings = %.2f, want 1.80", f.MonthlyCost)
	}
	if f.CostKind != finding.CostSavings {
		t.Errorf("cost kind = %s, want savings", f.CostKind)
	}
	if f.Metadata.Detail["target_kind"] != "application" {
		t.Errorf("target_kind = %q, want application", f.Metadata.Detail["target_kind"])
	}
}

func TestCrossZoneDisabledTransferToll(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-nlb", 90), Kind: "network", ListenerCount: 1, TargetsTotal: 2, TargetsHealthy: 2},
		},
	}
	// 2 GiB/day through the balancer, 60 GB/month.
	sc := testContext(t, inv, stubMetrics{
		"ProcessedBytes": dailySeries(30, 2*(1<<30)),
	})

	f := requireOne(t, detectCrossZoneDisabled(context.Background(), sc), "cross_zone_disabled")
	if f.Metadata.Signals["traffic_gb_month"] != 60 {
		t.Errorf("traffic_gb_month = %.1f, want 60", f.Metadata.Signals["traffic_gb_month"])
	}
	// Half the bytes hop zones at 0.02/GB both ways.
	if f.MonthlyCost != 0.60 {
		t.Errorf("savings = %.2f, want 0.60", f.MonthlyCost)
	}
}

// businessHourSeries emits hourly points carrying value only strictly inside
// weekday business hours, zero elsewhere.
func businessHourSeries(days int, value float64) metricops.Sample {
	var s metricops.Sample
	for h := days * 24; h > 0; h-- {
		ts := testNow.Add(-time.Duration(h) * time.Hour)
		v := 0.0
		if wd := ts.Weekday(); wd >= time.Monday && wd <= time.Friday && ts.Hour() >= 9 && ts.Hour() < 17 {
			v = value
		}
		s.Points = append(s.Points, metricops.Point{Time: ts, Value: v})
	}
	return s
}

func TestBusinessHoursLB(t *testing.T) {
	inv := &inventory.Inventory{
		LoadBalancers: []inventory.LoadBalancer{
			{Meta: meta("lb-office", 90), Kind: "application", ListenerCount: 1, TargetsTotal: 2, TargetsHealthy: 2},
		},
	}
	sc := testContext(t, inv, stubMetrics{
		"RequestCount": businessHourSeries(14, 100),
	})

	f := requireOne(t, detectBusinessHoursLBs(context.Background(), sc), "business_hours_lb")
	if f.Metadata.Signals["business_hours_share_pct"] != 100 {
		t.Errorf("business share = %.1f, want 100", f.Metadata.Signals["business_hours_share_pct"])
	}
	// 16.20 monthly, 118 of 168 weekly hours recoverable.
	if f.MonthlyCost != 11.38 {
		t.Errorf("savings = %.2f, want 11.38", f.MonthlyCost)
	}
}

func TestLBARNSuffix(t *testing.T) {
	arn := "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/web/50dc6c495c0c9188"
	if got := lbARNSuffix(arn); got != "app/web/50dc6c495c0c9188" {
		t.Errorf("lbARNSuffix = %q", got)
	}
	if got := lbARNSuffix("plain-name"); got != "plain-name" {
		t.Errorf("non-ARN input rewritten to %q", got)
	}
}
