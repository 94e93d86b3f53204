package aws

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// partSizeSampleCap bounds ListParts calls per bucket. Size totals for
// multipart waste stay representative without hammering pathological
// buckets holding thousands of abandoned uploads.
const partSizeSampleCap = 20

// bucketCollector walks every bucket in the account. Bucket data calls must
// hit the bucket's home region or S3 answers with a PermanentRedirect, so
// clients are built per region on demand. Not safe for concurrent use.
type bucketCollector struct {
	factory func(region string) s3API
	clients map[string]s3API
	home    string
}

func newBucketCollector(factory func(region string) s3API, home string) *bucketCollector {
	return &bucketCollector{factory: factory, clients: make(map[string]s3API), home: home}
}

func (c *bucketCollector) client(region string) s3API {
	if client, ok := c.clients[region]; ok {
		return client
	}
	client := c.factory(region)
	c.clients[region] = client
	return client
}

// Buckets lists all buckets with sampled object stats. Buckets the caller
// cannot read keep their metadata with ObjectCount -1 so downstream checks
// can tell "empty" from "unknown".
func (c *bucketCollector) Buckets(ctx context.Context) ([]inventory.Bucket, error) {
	listed, err := c.client(c.home).ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, cloud.Classify("s3.ListBuckets", err)
	}

	var buckets []inventory.Bucket
	for _, b := range listed.Buckets {
		name := aws.ToString(b.Name)
		region, err := c.bucketRegion(ctx, name)
		if err != nil {
			if isS3Denied(err) {
				buckets = append(buckets, deniedBucket(name, c.home, aws.ToTime(b.CreationDate)))
				continue
			}
			return nil, cloud.Classify("s3.GetBucketLocation", err)
		}

		item, err := c.describeBucket(ctx, name, region, aws.ToTime(b.CreationDate))
		if err != nil {
			if isS3Denied(err) {
				buckets = append(buckets, deniedBucket(name, region, aws.ToTime(b.CreationDate)))
				continue
			}
			return nil, err
		}
		buckets = append(buckets, item)
	}
	return buckets, nil
}

func (c *bucketCollector) bucketRegion(ctx context.Context, name string) (string, error) {
	loc, err := c.client(c.home).GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(name)})
	if err != nil {
		return "", err
	}
	switch loc.LocationConstraint {
	case "":
		return "us-east-1", nil
	case "EU":
		return "eu-west-1", nil
	default:
		return string(loc.LocationConstraint), nil
	}
}

func (c *bucketCollector) describeBucket(ctx context.Context, name, region string, created time.Time) (inventory.Bucket, error) {
	api := c.client(region)
	item := inventory.Bucket{
		Meta: inventory.Meta{
			ID:        name,
			Name:      name,
			Region:    region,
			CreatedAt: created,
		},
	}

	// Object stats come from the first listing page only.
	objects, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
	if err != nil {
		return item, cloud.Classify("s3.ListObjectsV2", err)
	}
	item.ObjectCount = int64(aws.ToInt32(objects.KeyCount))
	item.Truncated = aws.ToBool(objects.IsTruncated)
	for _, obj := range objects.Contents {
		item.TotalSizeBytes += aws.ToInt64(obj.Size)
		if mod := aws.ToTime(obj.LastModified); mod.After(item.NewestObject) {
			item.NewestObject = mod
		}
	}

	lifecycle, err := api.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{Bucket: aws.String(name)})
	switch {
	case err == nil:
		for _, rule := range lifecycle.Rules {
			if rule.Status != s3types.ExpirationStatusEnabled {
				continue
			}
			item.HasLifecycle = true
			if rule.AbortIncompleteMultipartUpload != nil {
				item.HasAbortMultipart = true
			}
		}
	case isS3ErrorCode(err, "NoSuchLifecycleConfiguration"):
	default:
		return item, cloud.Classify("s3.GetBucketLifecycleConfiguration", err)
	}

	uploads, err := api.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{Bucket: aws.String(name)})
	if err != nil {
		return item, cloud.Classify("s3.ListMultipartUploads", err)
	}
	item.IncompleteUploads = len(uploads.Uploads)
	for i, up := range uploads.Uploads {
		if init := aws.ToTime(up.Initiated); item.OldestUpload.IsZero() || init.Before(item.OldestUpload) {
			item.OldestUpload = init
		}
		if i >= partSizeSampleCap {
			continue
		}
		parts, err := api.ListParts(ctx, &s3.ListPartsInput{
			Bucket:   aws.String(name),
			Key:      up.Key,
			UploadId: up.UploadId,
		})
		if err != nil {
			// The upload may complete or abort mid-scan.
			if isS3ErrorCode(err, "NoSuchUpload") {
				continue
			}
			return item, cloud.Classify("s3.ListParts", err)
		}
		for _, part := range parts.Parts {
			item.MultipartUploadBytes += aws.ToInt64(part.Size)
		}
	}

	tags, err := api.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
	switch {
	case err == nil:
		item.Tags = parseS3Tags(tags.TagSet)
	case isS3ErrorCode(err, "NoSuchTagSet"):
	default:
		return item, cloud.Classify("s3.GetBucketTagging", err)
	}
	return item, nil
}

func deniedBucket(name, region string, created time.Time) inventory.Bucket {
	return inventory.Bucket{
		Meta: inventory.Meta{
			ID:        name,
			Name:      name,
			Region:    region,
			CreatedAt: created,
		},
		ObjectCount: -1,
	}
}

func isS3Denied(err error) bool {
	return isS3ErrorCode(err, "AccessDenied") || isS3ErrorCode(err, "AllAccessDisabled")
}

func isS3ErrorCode(err error, code string) bool {
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == code
}

func parseS3Tags(tags []s3types.Tag) map[string]string {
	out := make(map[string]string)
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}
