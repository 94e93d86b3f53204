package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func TestEmptyBucketSkipsDeniedAndTruncated(t *testing.T) {
	region := func(id string, age int) inventory.Meta {
		m := meta(id, age)
		m.Region = "eu-west-1"
		return m
	}
	inv := &inventory.Inventory{
		Buckets: []inventory.Bucket{
			{Meta: region("b-empty", 200), ObjectCount: 0},
			// -1 means the listing call was denied; says nothing about contents.
			{Meta: region("b-denied", 200), ObjectCount: -1},
			// A truncated listing page proves the bucket is anything but empty.
			{Meta: region("b-big", 200), ObjectCount: 0, Truncated: true},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectEmptyBuckets(context.Background(), sc), "empty_bucket")
	if f.ResourceID != "b-empty" {
		t.Fatalf("flagged %s, want b-empty", f.ResourceID)
	}
	if f.Region != finding.RegionGlobal {
		t.Errorf("region = %q, want the global sentinel", f.Region)
	}
	if f.Metadata.Detail["bucket_region"] != "eu-west-1" {
		t.Errorf("bucket_region = %q, want eu-west-1", f.Metadata.Detail["bucket_region"])
	}
	if f.MonthlyCost != 0 {
		t.Errorf("empty bucket bills %.2f, want 0", f.MonthlyCost)
	}
}

func TestStaleBucketGradesOnObjectAge(t *testing.T) {
	b := inventory.Bucket{
		Meta:           meta("b-archive", 800),
		ObjectCount:    120000,
		TotalSizeBytes: 500 << 30,
		NewestObject:   testNow.AddDate(0, 0, -400),
		Truncated:      true,
	}
	inv := &inventory.Inventory{Buckets: []inventory.Bucket{b}}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectStaleBuckets(context.Background(), sc), "stale_objects")
	// 500 GB on the standard tier.
	if f.MonthlyCost != 11.50 {
		t.Errorf("monthly = %.2f, want 11.50", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceCritical {
		t.Errorf("400 days stale graded %s, want critical", f.Metadata.Confidence)
	}
	if f.Metadata.Signals["newest_object_age_days"] != 400 {
		t.Errorf("newest_object_age_days = %.0f, want 400", f.Metadata.Signals["newest_object_age_days"])
	}
	if f.Metadata.Detail["sample"] == "" {
		t.Error("truncated listing should carry the lower-bound caveat")
	}
}

func TestIncompleteMultipartNeedsNoAbortRule(t *testing.T) {
	inv := &inventory.Inventory{
		Buckets: []inventory.Bucket{
			{Meta: meta("b-leaky", 20), ObjectCount: 10, TotalSizeBytes: 1 << 30,
				IncompleteUploads: 12, MultipartUploadBytes: 10 << 30,
				OldestUpload: testNow.AddDate(0, 0, -30)},
			{Meta: meta("b-managed", 20), ObjectCount: 10, TotalSizeBytes: 1 << 30,
				IncompleteUploads: 12, MultipartUploadBytes: 10 << 30,
				OldestUpload: testNow.AddDate(0, 0, -30), HasAbortMultipart: true},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectIncompleteMultipart(context.Background(), sc), "incomplete_multipart")
	if f.ResourceID != "b-leaky" {
		t.Fatalf("flagged %s, want b-leaky", f.ResourceID)
	}
	// 10 GB of orphaned parts.
	if f.MonthlyCost != 0.23 {
		t.Errorf("monthly = %.2f, want 0.23", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
	if f.Metadata.Signals["incomplete_uploads"] != 12 {
		t.Errorf("incomplete_uploads = %.0f, want 12", f.Metadata.Signals["incomplete_uploads"])
	}
}

func TestMissingLifecycleTieringSavings(t *testing.T) {
	inv := &inventory.Inventory{
		Buckets: []inventory.Bucket{
			{Meta: meta("b-cold", 400), ObjectCount: 5000, TotalSizeBytes: 1000 << 30,
				NewestObject: testNow.AddDate(0, 0, -60)},
			{Meta: meta("b-tiered", 400), ObjectCount: 5000, TotalSizeBytes: 1000 << 30,
				NewestObject: testNow.AddDate(0, 0, -60), HasLifecycle: true},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectMissingLifecycle(context.Background(), sc), "no_lifecycle_policy")
	if f.ResourceID != "b-cold" {
		t.Fatalf("flagged %s, want b-cold", f.ResourceID)
	}
	// Standard minus infrequent-access across 1000 GB.
	if f.MonthlyCost != 10.50 {
		t.Errorf("savings = %.2f, want 10.50", f.MonthlyCost)
	}
	if f.CostKind != finding.CostSavings {
		t.Errorf("cost kind = %s, want savings", f.CostKind)
	}
}
