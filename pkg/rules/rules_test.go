package rules

import (
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func TestDefaultsSanity(t *testing.T) {
	d := Defaults()

	if !d.Volume.Enabled {
		t.Error("volume rules should be enabled by default")
	}
	if d.Volume.LookbackDays != 30 {
		t.Errorf("volume lookback = %d, want 30", d.Volume.LookbackDays)
	}
	if d.Volume.MediumDays != 7 || d.Volume.HighDays != 30 || d.Volume.CriticalDays != 90 {
		t.Errorf("volume ladder = %d/%d/%d, want 7/30/90",
			d.Volume.MediumDays, d.Volume.HighDays, d.Volume.CriticalDays)
	}

	// Idle addresses reach high suspicion after a week.
	if d.PublicIP.HighDays != 7 {
		t.Errorf("public_ip high threshold = %d, want 7", d.PublicIP.HighDays)
	}

	// Snapshots climb slowly: a year-old snapshot is high, not critical.
	if d.Snapshot.HighDays != 365 {
		t.Errorf("snapshot high threshold = %d, want 365", d.Snapshot.HighDays)
	}
	ladder := d.LadderFor(finding.TypeSnapshot)
	if got := ladder.ForAge(400); got != finding.ConfidenceHigh {
		t.Errorf("400-day snapshot graded %s, want high", got)
	}

	if d.Traffic.DeadBytes != 1e6 || d.Traffic.TrickleBytes != 1e9 {
		t.Errorf("traffic bands = %v/%v, want 1e6/1e9", d.Traffic.DeadBytes, d.Traffic.TrickleBytes)
	}
}

func TestTrafficBandsClassify(t *testing.T) {
	b := Defaults().Traffic

	cases := []struct {
		bytes float64
		want  string
	}{
		{0, "dead"},
		{999_999, "dead"},
		{1e6, "trickle"},
		{5e8, "trickle"},
		{1e9, "trickle"},
		{1e9 + 1, "active"},
	}
	for _, tc := range cases {
		if got := b.Classify(tc.bytes); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.bytes, got, tc.want)
		}
	}
}

func TestMergeOverrides(t *testing.T) {
	overrides := map[string]map[string]any{
		"volume": {
			"lookback_days":       14,
			"legacy_min_size_gib": 50,
		},
		"public_ip": {
			"confidence_high_days": 3,
		},
		"traffic": {
			"dead_bytes": 2e6,
		},
	}

	merged, warnings, err := Merge(Defaults(), overrides)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if merged.Volume.LookbackDays != 14 {
		t.Errorf("volume lookback = %d, want 14", merged.Volume.LookbackDays)
	}
	if merged.Volume.LegacyMinSizeGiB != 50 {
		t.Errorf("legacy_min_size_gib = %d, want 50", merged.Volume.LegacyMinSizeGiB)
	}
	if merged.PublicIP.HighDays != 3 {
		t.Errorf("public_ip high days = %d, want 3", merged.PublicIP.HighDays)
	}
	if merged.Traffic.DeadBytes != 2e6 {
		t.Errorf("dead_bytes = %v, want 2e6", merged.Traffic.DeadBytes)
	}

	// Untouched params keep their defaults.
	if merged.Volume.IOPSHeadroomFactor != 10.0 {
		t.Errorf("iops_headroom_factor drifted to %v", merged.Volume.IOPSHeadroomFactor)
	}
	if merged.Snapshot.HighDays != 365 {
		t.Errorf("snapshot defaults touched by unrelated override")
	}
}

func TestMergeWarnsOnUnknownKeys(t *testing.T) {
	overrides := map[string]map[string]any{
		"volume":    {"iops_headrom_factor": 3}, // typo
		"floppydisk": {"anything": 1},
	}

	merged, warnings, err := Merge(Defaults(), overrides)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if merged.Volume.IOPSHeadroomFactor != 10.0 {
		t.Errorf("typo override changed a real param: %v", merged.Volume.IOPSHeadroomFactor)
	}
}

func TestMergeCoercesWeakTypes(t *testing.T) {
	// Values arriving from YAML or JSON may be strings or floats.
	overrides := map[string]map[string]any{
		"instance": {
			"stopped_min_days": "45",
			"low_cpu_pct":      25,
		},
	}

	merged, _, err := Merge(Defaults(), overrides)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Instance.StoppedMinDays != 45 {
		t.Errorf("stopped_min_days = %d, want 45", merged.Instance.StoppedMinDays)
	}
	if merged.Instance.LowCPUPct != 25.0 {
		t.Errorf("low_cpu_pct = %v, want 25", merged.Instance.LowCPUPct)
	}
}

func TestMergeDisablesScenarios(t *testing.T) {
	overrides := map[string]map[string]any{
		"snapshot": {
			"enabled": false,
		},
		"volume": {
			"disabled_scenarios": []string{"legacy_gp2"},
		},
	}

	merged, _, err := Merge(Defaults(), overrides)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Snapshot.Enabled {
		t.Error("snapshot rules still enabled")
	}
	if !merged.Volume.ScenarioDisabled("legacy_gp2") {
		t.Error("legacy_gp2 not disabled")
	}
	if merged.Volume.ScenarioDisabled("unattached") {
		t.Error("unattached wrongly disabled")
	}
}

func TestCommonForUnknownType(t *testing.T) {
	d := Defaults()
	c := d.CommonFor(finding.ResourceType("martian_rover"))
	if !c.Enabled || c.HighDays != 30 {
		t.Errorf("unknown type should fall back to the standard ladder, got %+v", c)
	}
}
