package scenarios

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func init() {
	Register(Scenario{
		ID:           "orphaned_source",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot whose source volume no longer exists",
		Detect:       detectOrphanedSnapshots,
	})
	Register(Scenario{
		ID:           "redundant_chain",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot beyond the newest N retained per volume",
		Detect:       detectRedundantChains,
	})
	Register(Scenario{
		ID:           "old_unused",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot past the age ceiling with no compliance tag",
		Detect:       detectOldSnapshots,
	})
	Register(Scenario{
		ID:           "deleted_parent_reference",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot created for an image that has since been deregistered",
		Detect:       detectDeletedParentRefs,
	})
	Register(Scenario{
		ID:           "stuck_pending",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot pending for longer than any copy could take",
		Detect:       detectStuckPending,
	})
	Register(Scenario{
		ID:           "failed_snapshot",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot in the error state",
		Detect:       detectFailedSnapshots,
	})
	Register(Scenario{
		ID:           "untagged_old",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Untagged snapshot old enough that nobody will come back for it",
		Detect:       detectUntaggedOldSnapshots,
	})
	Register(Scenario{
		ID:           "nonprod_retention_exceeded",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Non-production snapshot kept past the non-production retention limit",
		Detect:       detectNonProdRetention,
	})
	Register(Scenario{
		ID:           "duplicate_window",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Second snapshot of the same volume inside a small time window",
		Detect:       detectDuplicateSnapshots,
	})
	Register(Scenario{
		ID:           "unlaunched_image_source",
		ResourceType: finding.TypeSnapshot,
		Kind:         finding.CostAbsolute,
		Doc:          "Snapshot backing an image no launch event ever referenced",
		Detect:       detectUnlaunchedImageSnapshots,
	})
}

func snapshotFinding(sc *Context, s inventory.Snapshot, orphanType, reason string) finding.Finding {
	f := sc.newFinding(finding.TypeSnapshot, s.Meta, orphanType, reason,
		sc.Pricer.SnapshotMonthly(s.SizeGiB), finding.CostAbsolute)
	f.Metadata.SetSignal("size_gib", float64(s.SizeGiB))
	if s.VolumeID != "" {
		f.Metadata.SetDetail("volume_id", s.VolumeID)
	}
	return f
}

func detectOrphanedSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		if s.VolumeID == "" || s.VolumeExists || s.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		f := snapshotFinding(sc, s, "orphaned_source",
			fmt.Sprintf("source volume %s no longer exists", s.VolumeID))
		out = append(out, f)
	}
	return out
}

func detectRedundantChains(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	if r.MaxPerVolume <= 0 {
		return nil
	}
	byVolume := map[string][]inventory.Snapshot{}
	for _, s := range sc.Inventory.Snapshots {
		if s.VolumeID == "" || s.State != "completed" || s.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		byVolume[s.VolumeID] = append(byVolume[s.VolumeID], s)
	}
	var out []finding.Finding
	for volID, chain := range byVolume {
		if len(chain) <= r.MaxPerVolume {
			continue
		}
		// Newest first; everything past the retention count is surplus.
		sort.Slice(chain, func(i, j int) bool { return chain[i].CreatedAt.After(chain[j].CreatedAt) })
		for _, s := range chain[r.MaxPerVolume:] {
			f := snapshotFinding(sc, s, "redundant_chain",
				fmt.Sprintf("%s has %d snapshots; only the newest %d are retention-worthy", volID, len(chain), r.MaxPerVolume))
			f.Metadata.SetSignal("chain_length", float64(len(chain)))
			out = append(out, f)
		}
	}
	return out
}

func detectOldSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		age := finding.AgeDays(s.CreatedAt, sc.Now)
		if age <= r.OldMaxAgeDays || s.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		f := snapshotFinding(sc, s, "old_unused",
			fmt.Sprintf("%d days old with no compliance tag justifying retention", age))
		out = append(out, f)
	}
	return out
}

func detectDeletedParentRefs(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		if s.SourceImageID == "" || sc.Inventory.ImageByID(s.SourceImageID) != nil {
			continue
		}
		f := snapshotFinding(sc, s, "deleted_parent_reference",
			fmt.Sprintf("created for image %s, which has been deregistered", s.SourceImageID))
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("source_image_id", s.SourceImageID)
		out = append(out, f)
	}
	return out
}

func detectStuckPending(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		if s.State != "pending" {
			continue
		}
		age := finding.AgeDays(s.CreatedAt, sc.Now)
		if age < r.StuckPendingDays {
			continue
		}
		f := snapshotFinding(sc, s, "stuck_pending",
			fmt.Sprintf("pending for %d days; no copy takes that long", age))
		raise(&f, finding.ConfidenceHigh)
		out = append(out, f)
	}
	return out
}

func detectFailedSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		if s.State != "error" {
			continue
		}
		f := snapshotFinding(sc, s, "failed_snapshot",
			"in the error state; it will never be restorable")
		raise(&f, finding.ConfidenceHigh)
		out = append(out, f)
	}
	return out
}

func detectUntaggedOldSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		age := finding.AgeDays(s.CreatedAt, sc.Now)
		if !s.Untagged() || age <= r.UntaggedMinDays {
			continue
		}
		f := snapshotFinding(sc, s, "untagged_old",
			fmt.Sprintf("untagged and %d days old; nothing records an owner", age))
		out = append(out, f)
	}
	return out
}

func detectNonProdRetention(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	var out []finding.Finding
	for _, s := range sc.Inventory.Snapshots {
		if !s.EnvMatches(r.NonProdTagValues) || s.HasAnyTagKey(r.ComplianceTagKeys) {
			continue
		}
		age := finding.AgeDays(s.CreatedAt, sc.Now)
		if age <= r.NonProdRetentionDays {
			continue
		}
		f := snapshotFinding(sc, s, "nonprod_retention_exceeded",
			fmt.Sprintf("non-production snapshot kept %d days against a %d day limit", age, r.NonProdRetentionDays))
		raise(&f, finding.ConfidenceMedium)
		out = append(out, f)
	}
	return out
}

func detectDuplicateSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Snapshot
	window := time.Duration(r.DuplicateWindowHours) * time.Hour
	if window <= 0 {
		return nil
	}
	byVolume := map[string][]inventory.Snapshot{}
	for _, s := range sc.Inventory.Snapshots {
		if s.VolumeID == "" || s.State != "completed" {
			continue
		}
		byVolume[s.VolumeID] = append(byVolume[s.VolumeID], s)
	}
	var out []finding.Finding
	for volID, chain := range byVolume {
		if len(chain) < 2 {
			continue
		}
		sort.Slice(chain, func(i, j int) bool { return chain[i].CreatedAt.Before(chain[j].CreatedAt) })
		for i := 1; i < len(chain); i++ {
			gap := chain[i].CreatedAt.Sub(chain[i-1].CreatedAt)
			if gap > window {
				continue
			}
			f := snapshotFinding(sc, chain[i], "duplicate_window",
				fmt.Sprintf("taken %.1f hours after %s of the same volume %s", gap.Hours(), chain[i-1].ID, volID))
			raise(&f, finding.ConfidenceMedium)
			f.Metadata.SetDetail("duplicate_of", chain[i-1].ID)
			f.Metadata.SetSignal("gap_hours", gap.Hours())
			out = append(out, f)
		}
	}
	return out
}

func detectUnlaunchedImageSnapshots(ctx context.Context, sc *Context) []finding.Finding {
	var out []finding.Finding
	for _, img := range sc.Inventory.Images {
		launched, ok := sc.Inventory.ImageWasLaunched(img.ID)
		if !ok || launched {
			continue
		}
		for _, snapID := range img.SnapshotIDs {
			for _, s := range sc.Inventory.Snapshots {
				if s.ID != snapID {
					continue
				}
				f := snapshotFinding(sc, s, "unlaunched_image_source",
					fmt.Sprintf("backs image %s, which no launch event ever referenced", img.ID))
				f.Metadata.SetDetail("image_id", img.ID)
				out = append(out, f)
			}
		}
	}
	return out
}
