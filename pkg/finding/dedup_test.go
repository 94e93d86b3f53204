package finding

import (
	"reflect"
	"testing"
)

func volFinding(id, region, orphanType string, cost float64, conf Confidence) Finding {
	return Finding{
		ResourceType: TypeVolume,
		ResourceID:   id,
		ResourceName: id,
		Region:       region,
		MonthlyCost:  cost,
		CostKind:     CostAbsolute,
		Metadata: Evidence{
			OrphanType: orphanType,
			Confidence: conf,
			AgeDays:    45,
		},
	}
}

func TestDeduplicateMergesSameResource(t *testing.T) {
	in := []Finding{
		volFinding("vol-0a1", "us-east-1", "unattached", 40.00, ConfidenceHigh),
		volFinding("vol-0a1", "us-east-1", "overprovisioned_iops", 5.00, ConfidenceMedium),
	}

	out := Deduplicate(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}

	f := out[0]
	if f.MonthlyCost != 40.00 {
		t.Errorf("canonical cost = %.2f, want 40.00 (max of group)", f.MonthlyCost)
	}
	if f.Metadata.OrphanType != "unattached" {
		t.Errorf("canonical orphan_type = %q, want unattached", f.Metadata.OrphanType)
	}
	if !f.Metadata.IsDeduplicated {
		t.Error("merged finding not marked is_deduplicated")
	}
	if f.Metadata.DuplicateCount != 2 {
		t.Errorf("duplicate_count = %d, want 2", f.Metadata.DuplicateCount)
	}
	wantScenarios := []string{"overprovisioned_iops", "unattached"}
	if !reflect.DeepEqual(f.Metadata.DetectionScenarios, wantScenarios) {
		t.Errorf("detection_scenarios = %v, want %v", f.Metadata.DetectionScenarios, wantScenarios)
	}
	if len(f.Metadata.AllDetections) != 2 {
		t.Fatalf("all_detections = %d entries, want 2", len(f.Metadata.AllDetections))
	}
	if f.Metadata.AllDetections[0].OrphanType != "overprovisioned_iops" {
		t.Errorf("all_detections not sorted by orphan_type: %v", f.Metadata.AllDetections)
	}
}

func TestDeduplicatePromotesConfidence(t *testing.T) {
	in := []Finding{
		volFinding("vol-0b2", "eu-west-1", "zero_io", 12.00, ConfidenceMedium),
		volFinding("vol-0b2", "eu-west-1", "attached_stopped_instance", 8.00, ConfidenceCritical),
	}

	out := Deduplicate(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}
	if got := out[0].Metadata.Confidence; got != ConfidenceCritical {
		t.Errorf("confidence = %s, want critical (group max)", got)
	}
	if out[0].Metadata.OrphanType != "zero_io" {
		t.Errorf("canonical should be the max-cost member, got %s", out[0].Metadata.OrphanType)
	}
}

func TestDeduplicateKeepsDistinctResourcesApart(t *testing.T) {
	in := []Finding{
		volFinding("vol-1", "us-east-1", "unattached", 10, ConfidenceHigh),
		volFinding("vol-1", "us-west-2", "unattached", 10, ConfidenceHigh),
		volFinding("vol-2", "us-east-1", "unattached", 10, ConfidenceHigh),
	}

	out := Deduplicate(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 findings (distinct id/region pairs), got %d", len(out))
	}
	for _, f := range out {
		if f.Metadata.IsDeduplicated {
			t.Errorf("singleton %s marked deduplicated", f.Key())
		}
		if f.Metadata.DuplicateCount != 0 {
			t.Errorf("singleton %s has duplicate_count %d", f.Key(), f.Metadata.DuplicateCount)
		}
	}
}

func TestDeduplicateOrdering(t *testing.T) {
	in := []Finding{
		{ResourceType: TypeSnapshot, ResourceID: "snap-9", Region: "us-east-1"},
		{ResourceType: TypeVolume, ResourceID: "vol-1", Region: "us-west-2"},
		{ResourceType: TypeVolume, ResourceID: "vol-9", Region: "us-east-1"},
		{ResourceType: TypeVolume, ResourceID: "vol-1", Region: "us-east-1"},
	}

	out := Deduplicate(in)
	var got []string
	for _, f := range out {
		got = append(got, string(f.ResourceType)+"/"+f.Region+"/"+f.ResourceID)
	}
	want := []string{
		"snapshot/us-east-1/snap-9",
		"volume/us-east-1/vol-1",
		"volume/us-east-1/vol-9",
		"volume/us-west-2/vol-1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ordering mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	in := []Finding{
		volFinding("vol-0a1", "us-east-1", "unattached", 40.00, ConfidenceHigh),
		volFinding("vol-0a1", "us-east-1", "overprovisioned_iops", 5.00, ConfidenceMedium),
		volFinding("vol-7", "us-east-1", "zero_io", 3.20, ConfidenceLow),
	}

	once := Deduplicate(in)
	twice := Deduplicate(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second pass changed output:\n once %+v\ntwice %+v", once, twice)
	}
}

func TestDeduplicateTieBreaksOnOrphanType(t *testing.T) {
	in := []Finding{
		volFinding("vol-t", "us-east-1", "zero_io", 10.00, ConfidenceLow),
		volFinding("vol-t", "us-east-1", "attached_stopped_instance", 10.00, ConfidenceLow),
	}

	out := Deduplicate(in)
	if got := out[0].Metadata.OrphanType; got != "attached_stopped_instance" {
		t.Errorf("equal-cost tiebreak picked %q, want attached_stopped_instance", got)
	}
}

func TestDeduplicateNeverGrowsInput(t *testing.T) {
	in := []Finding{
		volFinding("a", "r1", "x", 1, ConfidenceLow),
		volFinding("a", "r1", "y", 2, ConfidenceLow),
		volFinding("b", "r1", "x", 1, ConfidenceLow),
		volFinding("b", "r2", "x", 1, ConfidenceLow),
	}
	if out := Deduplicate(in); len(out) > len(in) {
		t.Errorf("output larger than input: %d > %d", len(out), len(in))
	}
	if out := Deduplicate(nil); len(out) != 0 {
		t.Errorf("nil input produced %d findings", len(out))
	}
}
