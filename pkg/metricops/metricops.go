// Package metricops reduces raw telemetry series into the aggregates the
// detection scenarios reason about. Providers hand back Samples; scenarios
// never see provider SDK types.
package metricops

import (
	"math"
	"time"
)

// Point is one datapoint of a metric series.
type Point struct {
	Time  time.Time
	Value float64
}

// Sample is the provider-agnostic result of one metric query. Missing means
// the provider answered but had no datapoints; that is not the same as a
// series of zeros and the two must grade differently.
type Sample struct {
	Metric  string
	Stat    string
	Points  []Point
	Missing bool
}

func (s Sample) Count() int { return len(s.Points) }

func (s Sample) Sum() float64 {
	var t float64
	for _, p := range s.Points {
		t += p.Value
	}
	return t
}

func (s Sample) Avg() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Sum() / float64(len(s.Points))
}

func (s Sample) Max() float64 {
	m := math.Inf(-1)
	for _, p := range s.Points {
		if p.Value > m {
			m = p.Value
		}
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

func (s Sample) Min() float64 {
	m := math.Inf(1)
	for _, p := range s.Points {
		if p.Value < m {
			m = p.Value
		}
	}
	if math.IsInf(m, 1) {
		return 0
	}
	return m
}

// Latest returns the most recent datapoint's value, or 0 when empty.
func (s Sample) Latest() float64 {
	var latest Point
	for _, p := range s.Points {
		if p.Time.After(latest.Time) {
			latest = p
		}
	}
	return latest.Value
}

// Presence grades how much of the requested window actually has data.
type Presence string

const (
	PresenceFull    Presence = "full"
	PresencePartial Presence = "partial"
	PresenceAbsent  Presence = "absent"
)

// Presence compares the datapoint count against the expected count for the
// window (e.g. lookback days for a daily period). Under half counts as
// partial; scenarios treat partial and absent data as weaker evidence
// unless absence itself is the signal.
func (s Sample) Presence(expected int) Presence {
	if s.Missing || len(s.Points) == 0 {
		return PresenceAbsent
	}
	if expected > 0 && len(s.Points)*2 < expected {
		return PresencePartial
	}
	return PresenceFull
}

// Reducer folds a filtered window of values into one number.
type Reducer func([]float64) float64

func ReduceSum(vs []float64) float64 {
	var t float64
	for _, v := range vs {
		t += v
	}
	return t
}

func ReduceAvg(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return ReduceSum(vs) / float64(len(vs))
}

func ReduceMax(vs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

// AggregateWindow reduces the datapoints falling in [start, end).
func AggregateWindow(points []Point, start, end time.Time, reduce Reducer) float64 {
	var vs []float64
	for _, p := range points {
		if !p.Time.Before(start) && p.Time.Before(end) {
			vs = append(vs, p.Value)
		}
	}
	return reduce(vs)
}

// BusinessHoursSplit sums datapoints inside weekday 08:00-18:00 UTC against
// everything else, for workloads that only matter during office hours.
func BusinessHoursSplit(points []Point) (business, off float64) {
	for _, p := range points {
		t := p.Time.UTC()
		wd := t.Weekday()
		h := t.Hour()
		if wd >= time.Monday && wd <= time.Friday && h >= 8 && h < 18 {
			business += p.Value
		} else {
			off += p.Value
		}
	}
	return business, off
}

// BusinessShare is the business-hours fraction of total volume, in percent.
// Returns 0 when there is no volume at all.
func BusinessShare(points []Point) float64 {
	business, off := BusinessHoursSplit(points)
	total := business + off
	if total == 0 {
		return 0
	}
	return business / total * 100
}

// TrendRatio compares the second half of a series against the first:
// 1.0 means flat, 0.1 means traffic collapsed to a tenth. The series is
// split on time, not index. ok is false when the first half carried no
// volume to compare against.
func TrendRatio(points []Point) (ratio float64, ok bool) {
	if len(points) < 2 {
		return 0, false
	}
	first, last := points[0].Time, points[0].Time
	for _, p := range points {
		if p.Time.Before(first) {
			first = p.Time
		}
		if p.Time.After(last) {
			last = p.Time
		}
	}
	mid := first.Add(last.Sub(first) / 2)

	var early, late float64
	for _, p := range points {
		if p.Time.Before(mid) {
			early += p.Value
		} else {
			late += p.Value
		}
	}
	if early == 0 {
		return 0, false
	}
	return late / early, true
}

// Variance of the datapoint values (population variance).
func Variance(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / float64(len(points))
	var sq float64
	for _, p := range points {
		d := p.Value - mean
		sq += d * d
	}
	return sq / float64(len(points))
}

func StdDev(points []Point) float64 {
	return math.Sqrt(Variance(points))
}

// Skew is max/mean over per-partition totals. A perfectly balanced keyspace
// scores 1.0; one hot shard among idle ones scores the partition count.
func Skew(totals []float64) float64 {
	if len(totals) == 0 {
		return 0
	}
	var sum, max float64
	for _, v := range totals {
		sum += v
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(totals))
	if mean == 0 {
		return 0
	}
	return max / mean
}
