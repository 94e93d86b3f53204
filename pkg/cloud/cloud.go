// Package cloud is the provider contract: everything the scan engine needs
// from a cloud vendor, and nothing it does not. Implementations live in
// subpackages (aws); the engine and the scenarios only see these types.
package cloud

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

// Identity is who the credentials belong to.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// MetricQuery asks for one metric series over a window.
type MetricQuery struct {
	Namespace  string
	Name       string
	Dimensions map[string]string
	Stat       string // Sum, Average, Maximum, Minimum
	Period     time.Duration
	Start      time.Time
	End        time.Time
}

// CacheKey is a deterministic identity for memoization.
func (q MetricQuery) CacheKey() string {
	keys := make([]string, 0, len(q.Dimensions))
	for k := range q.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(q.Namespace)
	b.WriteByte('/')
	b.WriteString(q.Name)
	b.WriteByte('/')
	b.WriteString(q.Stat)
	for _, k := range keys {
		b.WriteByte('/')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Dimensions[k])
	}
	b.WriteByte('/')
	b.WriteString(q.Start.UTC().Format(time.RFC3339))
	b.WriteByte('_')
	b.WriteString(q.End.UTC().Format(time.RFC3339))
	b.WriteByte('_')
	b.WriteString(q.Period.String())
	return b.String()
}

// MetricSource answers metric queries for one region. Implementations
// memoize per (region, query) for the lifetime of a scan.
type MetricSource interface {
	Metric(ctx context.Context, q MetricQuery) (metricops.Sample, error)
}

// Adapter is one cloud vendor.
type Adapter interface {
	// Name identifies the provider ("aws").
	Name() string

	// ValidateCredentials proves the credentials work before any scan
	// starts. Failures carry a classified *Error so callers can tell a
	// typo from an outage.
	ValidateCredentials(ctx context.Context) (*Identity, error)

	// ListRegions returns every region the account can reach.
	ListRegions(ctx context.Context) ([]string, error)

	// CollectInventory enumerates the requested resource types in one
	// region, including the support collections scenarios resolve
	// relationships from. Per-type failures are recorded on the result,
	// not returned; only a total failure returns an error.
	CollectInventory(ctx context.Context, region string, types []finding.ResourceType) (*inventory.Inventory, error)

	// Metrics returns the memoizing telemetry source for a region.
	Metrics(region string) MetricSource
}
