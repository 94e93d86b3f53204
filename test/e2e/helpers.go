//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/require"

	cloudaws "github.com/wastewatch/wastewatch/pkg/cloud/aws"
	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/rules"
)

// Tests isolate themselves by region. LocalStack keeps state per region, so
// fixtures seeded by one test never show up in another test's scan.

// newAdapter points a scanner session at the container.
func newAdapter(t *testing.T) *cloudaws.Adapter {
	t.Helper()
	adapter, err := cloudaws.New(context.Background(), cloudaws.Options{
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		EndpointURL:     endpointURL,
		Timeout:         30 * time.Second,
		MaxAttempts:     2,
		// LocalStack community has no event history.
		DisableProvenance: true,
	})
	require.NoError(t, err, "build adapter")
	return adapter
}

// seedClient returns an EC2 client pinned to the given region for fixtures.
func seedClient(t *testing.T, region string) *ec2.Client {
	t.Helper()
	cfg := newAdapter(t).Config()
	cfg.Region = region
	return ec2.NewFromConfig(cfg)
}

// scanRegion runs the full pipeline against one region with default rules
// and the static catalog.
func scanRegion(t *testing.T, region string, types ...finding.ResourceType) *engine.Result {
	t.Helper()
	set := rules.Defaults()
	eng := engine.New(newAdapter(t), &set, pricing.New(),
		engine.WithConcurrency(2),
		engine.WithRegionTimeout(2*time.Minute),
	)
	res, err := eng.Scan(context.Background(), engine.Request{
		Regions: []string{region},
		Types:   types,
	})
	require.NoError(t, err, "scan %s", region)
	return res
}

func provisionVolume(t *testing.T, client *ec2.Client, region string, sizeGiB int32, volType ec2types.VolumeType) string {
	t.Helper()
	out, err := client.CreateVolume(context.Background(), &ec2.CreateVolumeInput{
		AvailabilityZone: aws.String(region + "a"),
		Size:             aws.Int32(sizeGiB),
		VolumeType:       volType,
	})
	require.NoError(t, err, "create volume")
	id := aws.ToString(out.VolumeId)
	t.Logf("seeded volume %s (%d GiB %s)", id, sizeGiB, volType)
	return id
}

func deleteVolume(t *testing.T, client *ec2.Client, id string) {
	t.Helper()
	_, err := client.DeleteVolume(context.Background(), &ec2.DeleteVolumeInput{
		VolumeId: aws.String(id),
	})
	require.NoError(t, err, "delete volume %s", id)
}

// provisionAddress allocates a public IP and leaves it unassociated.
func provisionAddress(t *testing.T, client *ec2.Client) string {
	t.Helper()
	out, err := client.AllocateAddress(context.Background(), &ec2.AllocateAddressInput{
		Domain: ec2types.DomainTypeVpc,
	})
	require.NoError(t, err, "allocate address")
	id := aws.ToString(out.AllocationId)
	t.Logf("seeded address %s (%s)", id, aws.ToString(out.PublicIp))
	return id
}

func provisionSnapshot(t *testing.T, client *ec2.Client, volumeID string) string {
	t.Helper()
	out, err := client.CreateSnapshot(context.Background(), &ec2.CreateSnapshotInput{
		VolumeId: aws.String(volumeID),
	})
	require.NoError(t, err, "create snapshot")
	id := aws.ToString(out.SnapshotId)
	t.Logf("seeded snapshot %s of %s", id, volumeID)
	return id
}

func provisionInstance(t *testing.T, client *ec2.Client, tags map[string]string) string {
	t.Helper()
	var tagSpecs []ec2types.Tag
	for k, v := range tags {
		tagSpecs = append(tagSpecs, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String("ami-12345678"),
		InstanceType: ec2types.InstanceTypeT3Micro,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if len(tagSpecs) > 0 {
		input.TagSpecifications = []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         tagSpecs,
		}}
	}
	out, err := client.RunInstances(context.Background(), input)
	require.NoError(t, err, "run instance")
	id := aws.ToString(out.Instances[0].InstanceId)
	t.Logf("seeded instance %s", id)
	return id
}

// findByID picks one finding out of a result, nil when absent.
func findByID(res *engine.Result, id string) *finding.Finding {
	for i := range res.Findings {
		if res.Findings[i].ResourceID == id {
			return &res.Findings[i]
		}
	}
	return nil
}
