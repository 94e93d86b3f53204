package scenarios

import (
	"context"
	"fmt"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func init() {
	Register(Scenario{
		ID:           "empty_bucket",
		ResourceType: finding.TypeBucket,
		Kind:         finding.CostAbsolute,
		Doc:          "Bucket that has held nothing for months",
		Detect:       detectEmptyBuckets,
	})
	Register(Scenario{
		ID:           "stale_objects",
		ResourceType: finding.TypeBucket,
		Kind:         finding.CostAbsolute,
		Doc:          "Bucket where even the newest object is past the staleness ceiling",
		Detect:       detectStaleBuckets,
	})
	Register(Scenario{
		ID:           "incomplete_multipart",
		ResourceType: finding.TypeBucket,
		Kind:         finding.CostAbsolute,
		Doc:          "Abandoned multipart uploads billing invisibly",
		Detect:       detectIncompleteMultipart,
	})
	Register(Scenario{
		ID:           "no_lifecycle_policy",
		ResourceType: finding.TypeBucket,
		Kind:         finding.CostSavings,
		Doc:          "Cold data on the standard tier with no lifecycle policy to move it",
		Detect:       detectMissingLifecycle,
	})
}

// bucketFinding pins the finding to the global sentinel region; buckets are
// enumerated once per scan, not per region.
func bucketFinding(sc *Context, b inventory.Bucket, orphanType, reason string, monthly float64, kind finding.CostKind) finding.Finding {
	meta := b.Meta
	meta.Region = finding.RegionGlobal
	f := sc.newFinding(finding.TypeBucket, meta, orphanType, reason, monthly, kind)
	if b.Region != "" {
		f.Metadata.SetDetail("bucket_region", b.Region)
	}
	if b.Truncated {
		f.Metadata.SetDetail("sample", "first listing page only; sizes are lower bounds")
	}
	return f
}

func bucketGB(bytes int64) float64 {
	return float64(bytes) / (1 << 30)
}

func detectEmptyBuckets(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Bucket
	var out []finding.Finding
	for _, b := range sc.Inventory.Buckets {
		// Negative counts mean listing was denied, not that it is empty.
		if b.ObjectCount != 0 || b.Truncated {
			continue
		}
		age := finding.AgeDays(b.CreatedAt, sc.Now)
		if age < r.EmptyMinAgeDays {
			continue
		}
		f := bucketFinding(sc, b, "empty_bucket",
			fmt.Sprintf("held zero objects for its whole %d day life", age), 0, finding.CostAbsolute)
		out = append(out, f)
	}
	return out
}

func detectStaleBuckets(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Bucket
	var out []finding.Finding
	for _, b := range sc.Inventory.Buckets {
		if b.ObjectCount <= 0 || b.NewestObject.IsZero() {
			continue
		}
		staleDays := finding.AgeDays(b.NewestObject, sc.Now)
		if staleDays <= r.StaleObjectDays {
			continue
		}
		monthly := sc.Pricer.BucketStorageMonthly(bucketGB(b.TotalSizeBytes))
		f := bucketFinding(sc, b, "stale_objects",
			fmt.Sprintf("newest object is %d days old; nothing has been written since", staleDays),
			monthly, finding.CostAbsolute)
		raise(&f, sc.Rules.LadderFor(finding.TypeBucket).ForAge(staleDays))
		f.Metadata.SetSignal("newest_object_age_days", float64(staleDays))
		f.Metadata.SetSignal("size_gb", bucketGB(b.TotalSizeBytes))
		out = append(out, f)
	}
	return out
}

func detectIncompleteMultipart(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Bucket
	var out []finding.Finding
	for _, b := range sc.Inventory.Buckets {
		if b.IncompleteUploads == 0 || b.HasAbortMultipart {
			continue
		}
		if b.OldestUpload.IsZero() || finding.AgeDays(b.OldestUpload, sc.Now) < r.MultipartMinAgeDays {
			continue
		}
		monthly := sc.Pricer.BucketStorageMonthly(bucketGB(b.MultipartUploadBytes))
		f := bucketFinding(sc, b, "incomplete_multipart",
			fmt.Sprintf("%d abandoned multipart uploads bill for parts no object will ever reference", b.IncompleteUploads),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("incomplete_uploads", float64(b.IncompleteUploads))
		f.Metadata.SetSignal("upload_bytes", float64(b.MultipartUploadBytes))
		out = append(out, f)
	}
	return out
}

// The infrequent-access tier accepts objects after thirty days untouched.
const tieringMinDays = 30

func detectMissingLifecycle(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, b := range sc.Inventory.Buckets {
		if b.HasLifecycle || b.ObjectCount <= 0 || b.NewestObject.IsZero() {
			continue
		}
		if finding.AgeDays(b.NewestObject, sc.Now) < tieringMinDays {
			continue
		}
		savings := sc.Pricer.BucketTieringSavingsMonthly(bucketGB(b.TotalSizeBytes))
		if savings <= 0 {
			continue
		}
		f := bucketFinding(sc, b, "no_lifecycle_policy",
			fmt.Sprintf("%.1f GB sits on the standard tier past the tiering threshold with no lifecycle policy", bucketGB(b.TotalSizeBytes)),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("size_gb", bucketGB(b.TotalSizeBytes))
		out = append(out, f)
	}
	return out
}
