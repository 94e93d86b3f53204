package finding

import (
	"testing"
	"time"
)

func TestLadderForAge(t *testing.T) {
	ladder := Ladder{MediumDays: 7, HighDays: 30, CriticalDays: 90}

	cases := []struct {
		days int
		want Confidence
	}{
		{0, ConfidenceLow},
		{6, ConfidenceLow},
		{7, ConfidenceMedium},
		{29, ConfidenceMedium},
		{30, ConfidenceHigh},
		{45, ConfidenceHigh},
		{89, ConfidenceHigh},
		{90, ConfidenceCritical},
		{400, ConfidenceCritical},
	}
	for _, tc := range cases {
		if got := ladder.ForAge(tc.days); got != tc.want {
			t.Errorf("ForAge(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestLadderIsFloorNotCeiling(t *testing.T) {
	ladder := Ladder{MediumDays: 7, HighDays: 30, CriticalDays: 90}

	f := Finding{Metadata: Evidence{AgeDays: 10, Confidence: ConfidenceCritical}}
	f.ApplyFloor(ladder)
	if f.Metadata.Confidence != ConfidenceCritical {
		t.Errorf("floor downgraded an explicit critical to %s", f.Metadata.Confidence)
	}

	f = Finding{Metadata: Evidence{AgeDays: 45}}
	f.ApplyFloor(ladder)
	if f.Metadata.Confidence != ConfidenceHigh {
		t.Errorf("ungraded 45d finding got %s, want high", f.Metadata.Confidence)
	}
}

func TestConfidenceMonotoneInAge(t *testing.T) {
	ladder := Ladder{MediumDays: 7, HighDays: 30, CriticalDays: 90}
	prev := ladder.ForAge(0)
	for days := 1; days <= 400; days++ {
		cur := ladder.ForAge(days)
		if cur.Rank() < prev.Rank() {
			t.Fatalf("confidence dropped from %s to %s at %d days", prev, cur, days)
		}
		prev = cur
	}
}

func TestMaxConfidence(t *testing.T) {
	if got := MaxConfidence(ConfidenceLow, ConfidenceHigh); got != ConfidenceHigh {
		t.Errorf("MaxConfidence(low, high) = %s", got)
	}
	if got := MaxConfidence(ConfidenceCritical, ConfidenceMedium); got != ConfidenceCritical {
		t.Errorf("MaxConfidence(critical, medium) = %s", got)
	}
	// Unknown grades never beat known ones.
	if got := MaxConfidence(Confidence("bogus"), ConfidenceLow); got != ConfidenceLow {
		t.Errorf("MaxConfidence(bogus, low) = %s", got)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	if got := AgeDays(now.AddDate(0, 0, -45), now); got != 45 {
		t.Errorf("AgeDays 45d ago = %d", got)
	}
	if got := AgeDays(time.Time{}, now); got != 0 {
		t.Errorf("zero created time should read as unknown age, got %d", got)
	}
	if got := AgeDays(now.Add(time.Hour), now); got != 0 {
		t.Errorf("future created time should clamp to 0, got %d", got)
	}
}

func TestWastedToDate(t *testing.T) {
	if got := WastedToDate(40.0, 45); got != 60.0 {
		t.Errorf("WastedToDate(40, 45) = %.2f, want 60.00", got)
	}
	if got := WastedToDate(40.0, 0); got != 0 {
		t.Errorf("unknown age should not accrue waste, got %.2f", got)
	}
}

func TestRoundCents(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{39.999999, 40.00},
		{3.6000001, 3.60},
		{0.005, 0.01},
		{0, 0},
	}
	for _, tc := range cases {
		if got := RoundCents(tc.in); got != tc.want {
			t.Errorf("RoundCents(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
