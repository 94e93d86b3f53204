package scenarios

import (
	"context"
	"log/slog"
	"time"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/rules"
)

// Context is everything a Detect function may consult: the finished region
// inventory, the memoized metric source, the merged rule set, regional
// prices, and a fixed clock so one scan grades consistently end to end.
type Context struct {
	Region    string
	Account   string
	Inventory *inventory.Inventory
	Metrics   cloud.MetricSource
	Rules     *rules.Set
	Pricer    *pricing.Pricer
	Now       time.Time
	Logger    *slog.Logger
}

// Lookback returns the telemetry window for a resource type.
func (sc *Context) Lookback(rt finding.ResourceType) (start, end time.Time, days int) {
	days = sc.Rules.CommonFor(rt).LookbackDays
	if days <= 0 {
		days = 30
	}
	end = sc.Now
	start = end.AddDate(0, 0, -days)
	return start, end, days
}

// Daily fetches one metric at day granularity over the type's lookback.
// Telemetry failures are logged and come back as Missing samples: scenarios
// treat unavailable data as weak evidence, never as an error.
func (sc *Context) Daily(ctx context.Context, rt finding.ResourceType, namespace, name, stat string, dims map[string]string) metricops.Sample {
	start, end, _ := sc.Lookback(rt)
	sample, err := sc.Metrics.Metric(ctx, cloud.MetricQuery{
		Namespace:  namespace,
		Name:       name,
		Dimensions: dims,
		Stat:       stat,
		Period:     24 * time.Hour,
		Start:      start,
		End:        end,
	})
	if err != nil {
		if sc.Logger != nil {
			sc.Logger.Debug("metric unavailable",
				"namespace", namespace, "metric", name, "error", err)
		}
		return metricops.Sample{Metric: namespace + "/" + name, Stat: stat, Missing: true}
	}
	return sample
}

// DailyOver is Daily with an explicit window, for trend scenarios that need
// more history than the type's lookback.
func (sc *Context) DailyOver(ctx context.Context, days int, namespace, name, stat string, dims map[string]string) metricops.Sample {
	end := sc.Now
	start := end.AddDate(0, 0, -days)
	sample, err := sc.Metrics.Metric(ctx, cloud.MetricQuery{
		Namespace:  namespace,
		Name:       name,
		Dimensions: dims,
		Stat:       stat,
		Period:     24 * time.Hour,
		Start:      start,
		End:        end,
	})
	if err != nil {
		if sc.Logger != nil {
			sc.Logger.Debug("metric unavailable",
				"namespace", namespace, "metric", name, "error", err)
		}
		return metricops.Sample{Metric: namespace + "/" + name, Stat: stat, Missing: true}
	}
	return sample
}

// Hourly is Daily at hour granularity, for business-hours profiling.
func (sc *Context) Hourly(ctx context.Context, rt finding.ResourceType, namespace, name, stat string, dims map[string]string) metricops.Sample {
	start, end, _ := sc.Lookback(rt)
	sample, err := sc.Metrics.Metric(ctx, cloud.MetricQuery{
		Namespace:  namespace,
		Name:       name,
		Dimensions: dims,
		Stat:       stat,
		Period:     time.Hour,
		Start:      start,
		End:        end,
	})
	if err != nil {
		if sc.Logger != nil {
			sc.Logger.Debug("metric unavailable",
				"namespace", namespace, "metric", name, "error", err)
		}
		return metricops.Sample{Metric: namespace + "/" + name, Stat: stat, Missing: true}
	}
	return sample
}

// newFinding builds a graded finding for one inventory item: age from the
// clock, confidence floored by the type's ladder, burn-to-date for absolute
// costs. Scenarios may raise the confidence afterwards, never lower it.
func (sc *Context) newFinding(rt finding.ResourceType, meta inventory.Meta, orphanType, reason string, monthly float64, kind finding.CostKind) finding.Finding {
	region := meta.Region
	if region == "" {
		region = sc.Region
	}
	f := finding.Finding{
		ResourceType: rt,
		ResourceID:   meta.ID,
		ResourceName: meta.DisplayName(),
		Region:       region,
		MonthlyCost:  finding.RoundCents(monthly),
		CostKind:     kind,
		Tags:         meta.Tags,
		Metadata: finding.Evidence{
			OrphanType: orphanType,
			Reason:     reason,
			AgeDays:    finding.AgeDays(meta.CreatedAt, sc.Now),
		},
	}
	f.ApplyFloor(sc.Rules.LadderFor(rt))
	if kind == finding.CostAbsolute {
		f.Metadata.AlreadyWasted = finding.WastedToDate(f.MonthlyCost, f.Metadata.AgeDays)
	}
	return f
}

// raise lifts a finding's confidence to at least the given grade.
func raise(f *finding.Finding, c finding.Confidence) {
	f.Metadata.Confidence = finding.MaxConfidence(f.Metadata.Confidence, c)
}

// fullWindow reports whether every sample covers the whole lookback. The
// scenarios that assert "nothing happened" demand this before firing.
func fullWindow(days int, samples ...metricops.Sample) bool {
	for _, s := range samples {
		if s.Missing || s.Presence(days) != metricops.PresenceFull {
			return false
		}
	}
	return true
}

// observedSeconds converts daily datapoint coverage into seconds, for
// turning summed counters into per-second rates. Zero means no data at all.
func observedSeconds(samples ...metricops.Sample) float64 {
	n := 0
	for _, s := range samples {
		if c := s.Count(); c > n {
			n = c
		}
	}
	return float64(n) * 86400
}
