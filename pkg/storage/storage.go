// Package storage archives scan reports so runs can be compared over time.
// A Store keeps immutable documents under account-scoped keys; the backends
// are a plain directory and an S3 bucket.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Store is an append-only archive of report documents. Keys use forward
// slashes on every backend.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// FromLocation builds the store a location string names: s3://bucket/prefix
// selects S3 on the given config, anything else is a local directory.
func FromLocation(loc string, cfg aws.Config) (Store, error) {
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return NewDir(loc), nil
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("archive location %q names no bucket", loc)
	}
	return NewS3(cfg, bucket, prefix), nil
}

// ReportKey names one scan's document: keys group by account and sort
// chronologically. The timestamp format avoids colons so keys stay valid
// filenames everywhere.
func ReportKey(account string, started time.Time) string {
	return account + "/" + started.UTC().Format("20060102T150405Z") + ".json"
}
