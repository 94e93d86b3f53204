//go:build e2e

package e2e

import (
	"strings"
	"testing"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

func ids(res *engine.Result) []string {
	out := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		out = append(out, f.ResourceID)
	}
	return out
}

func TestScanFindsSeededWaste(t *testing.T) {
	const region = "us-east-1"
	client := seedClient(t, region)

	volID := provisionVolume(t, client, region, 500, ec2types.VolumeTypeGp3)
	allocID := provisionAddress(t, client)

	res := scanRegion(t, region, finding.TypeVolume, finding.TypePublicIP)

	if res.Provider != "aws" {
		t.Errorf("Provider = %q, want aws", res.Provider)
	}
	if res.Account == "" {
		t.Error("Account is empty")
	}
	if res.CatalogVersion != pricing.CatalogVersion {
		t.Errorf("CatalogVersion = %q, want %q", res.CatalogVersion, pricing.CatalogVersion)
	}
	if len(res.ScannedRegions) != 1 || res.ScannedRegions[0] != region {
		t.Errorf("ScannedRegions = %v, want [%s]", res.ScannedRegions, region)
	}
	if len(res.RegionErrors) != 0 {
		t.Errorf("RegionErrors = %+v", res.RegionErrors)
	}

	vol := findByID(res, volID)
	if vol == nil {
		t.Fatalf("volume %s not flagged; findings: %v", volID, ids(res))
	}
	if vol.Metadata.OrphanType != "unattached" {
		t.Errorf("volume orphan type = %q, want unattached", vol.Metadata.OrphanType)
	}
	if vol.ResourceType != finding.TypeVolume || vol.Region != region {
		t.Errorf("volume identity = %s/%s, want %s/%s",
			vol.ResourceType, vol.Region, finding.TypeVolume, region)
	}
	// 500 GiB gp3 at the baseline rate.
	if vol.MonthlyCost < 39.99 || vol.MonthlyCost > 40.01 {
		t.Errorf("volume monthly = %.2f, want 40.00", vol.MonthlyCost)
	}
	if vol.CostKind != finding.CostAbsolute {
		t.Errorf("volume cost kind = %q, want %q", vol.CostKind, finding.CostAbsolute)
	}
	if vol.Metadata.Confidence != finding.ConfidenceLow {
		t.Errorf("fresh volume graded %q, want %q", vol.Metadata.Confidence, finding.ConfidenceLow)
	}
	if vol.Metadata.IsDeduplicated {
		t.Errorf("single-scenario volume marked deduplicated: %+v", vol.Metadata)
	}

	ip := findByID(res, allocID)
	if ip == nil {
		t.Fatalf("address %s not flagged; findings: %v", allocID, ids(res))
	}
	if ip.Metadata.OrphanType != "unassociated" {
		t.Errorf("address orphan type = %q, want unassociated", ip.Metadata.OrphanType)
	}
	if ip.MonthlyCost < 3.59 || ip.MonthlyCost > 3.61 {
		t.Errorf("address monthly = %.2f, want 3.60", ip.MonthlyCost)
	}
	if ip.Metadata.Detail["address"] == "" {
		t.Errorf("address finding carries no address detail: %+v", ip.Metadata.Detail)
	}

	// The same waste is still there on a rerun.
	again := scanRegion(t, region, finding.TypeVolume, finding.TypePublicIP)
	if findByID(again, volID) == nil || findByID(again, allocID) == nil {
		t.Errorf("second scan lost findings; got %v", ids(again))
	}
}

func TestScanFlagsOrphanedSnapshot(t *testing.T) {
	const region = "us-west-2"
	client := seedClient(t, region)

	volID := provisionVolume(t, client, region, 40, ec2types.VolumeTypeGp2)
	snapID := provisionSnapshot(t, client, volID)
	deleteVolume(t, client, volID)

	res := scanRegion(t, region, finding.TypeSnapshot)

	snap := findByID(res, snapID)
	if snap == nil {
		t.Fatalf("snapshot %s not flagged; findings: %v", snapID, ids(res))
	}
	if snap.Metadata.OrphanType != "orphaned_source" {
		t.Errorf("orphan type = %q, want orphaned_source", snap.Metadata.OrphanType)
	}
	if !strings.Contains(snap.Metadata.Reason, volID) {
		t.Errorf("reason %q does not name the deleted volume %s", snap.Metadata.Reason, volID)
	}
	if snap.Metadata.Detail["volume_id"] != volID {
		t.Errorf("volume_id detail = %q, want %s", snap.Metadata.Detail["volume_id"], volID)
	}
	// 40 GiB at the snapshot rate.
	if snap.MonthlyCost < 1.99 || snap.MonthlyCost > 2.01 {
		t.Errorf("snapshot monthly = %.2f, want 2.00", snap.MonthlyCost)
	}
}
