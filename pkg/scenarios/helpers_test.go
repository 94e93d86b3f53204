package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/rules"
)

// testNow pins the scan clock so ages grade deterministically.
var testNow = time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

// stubMetrics answers queries from a fixed table keyed by "Name Stat",
// falling back to "Name" alone. Anything unlisted comes back Missing, the
// same shape scenarios see when telemetry is unavailable.
type stubMetrics map[string]metricops.Sample

func (m stubMetrics) Metric(_ context.Context, q cloud.MetricQuery) (metricops.Sample, error) {
	if s, ok := m[q.Name+" "+q.Stat]; ok {
		return s, nil
	}
	if s, ok := m[q.Name]; ok {
		return s, nil
	}
	return metricops.Sample{Metric: q.Namespace + "/" + q.Name, Stat: q.Stat, Missing: true}, nil
}

// dailySeries is one datapoint per day ending at testNow, all carrying the
// same value. days should match the type's lookback for full-window tests.
func dailySeries(days int, value float64) metricops.Sample {
	var s metricops.Sample
	for i := days; i > 0; i-- {
		s.Points = append(s.Points, metricops.Point{
			Time:  testNow.AddDate(0, 0, -i),
			Value: value,
		})
	}
	return s
}

func testContext(t *testing.T, inv *inventory.Inventory, metrics cloud.MetricSource) *Context {
	t.Helper()
	if inv == nil {
		inv = &inventory.Inventory{Region: "us-east-1"}
	}
	inv.Finalize()
	if metrics == nil {
		metrics = stubMetrics{}
	}
	defaults := rules.Defaults()
	return &Context{
		Region:    "us-east-1",
		Account:   "123456789012",
		Inventory: inv,
		Metrics:   metrics,
		Rules:     &defaults,
		Pricer:    pricing.New().Region("us-east-1"),
		Now:       testNow,
	}
}

// meta builds resource metadata aged the given number of days.
func meta(id string, ageDays int) inventory.Meta {
	return inventory.Meta{
		ID:        id,
		Name:      id,
		Region:    "us-east-1",
		CreatedAt: testNow.AddDate(0, 0, -ageDays),
	}
}

func requireOne(t *testing.T, fs []finding.Finding, orphanType string) finding.Finding {
	t.Helper()
	if len(fs) != 1 {
		t.Fatalf("expected exactly 1 %s finding, got %d: %+v", orphanType, len(fs), fs)
	}
	if got := fs[0].Metadata.OrphanType; got != orphanType {
		t.Fatalf("orphan_type = %q, want %q", got, orphanType)
	}
	return fs[0]
}
