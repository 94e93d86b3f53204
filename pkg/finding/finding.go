// Package finding defines the value objects a scan emits: findings with
// typed evidence, confidence grading, and the deduplication pass that
// collapses multiple detections of the same resource.
package finding

import (
	"fmt"
	"math"
	"time"
)

// ResourceType is the closed vocabulary shared by all providers.
type ResourceType string

const (
	TypeVolume           ResourceType = "volume"
	TypePublicIP         ResourceType = "public_ip"
	TypeSnapshot         ResourceType = "snapshot"
	TypeInstance         ResourceType = "instance"
	TypeLoadBalancer     ResourceType = "load_balancer"
	TypeNATGateway       ResourceType = "nat_gateway"
	TypeRelationalDB     ResourceType = "relational_db"
	TypeDocDB            ResourceType = "doc_db"
	TypeGraphDB          ResourceType = "graph_db"
	TypeNoSQLTable       ResourceType = "nosql_table"
	TypeCacheCluster     ResourceType = "cache_cluster"
	TypeWarehouse        ResourceType = "warehouse"
	TypeSearchDomain     ResourceType = "search_domain"
	TypeStream           ResourceType = "stream"
	TypeBucket           ResourceType = "bucket"
	TypeFunction         ResourceType = "function"
	TypeLogGroup         ResourceType = "log_group"
	TypeContainerRepo    ResourceType = "container_repo"
	TypeContainerService ResourceType = "container_service"
	TypeK8sCluster       ResourceType = "k8s_cluster"
	TypeDNSZone          ResourceType = "dns_zone"
	TypeWAFACL           ResourceType = "waf_acl"
	TypeIAMRole          ResourceType = "iam_role"
)

// RegionGlobal is the sentinel region for account-wide resources such as
// buckets, IAM roles, and hosted zones.
const RegionGlobal = "global"

// CostKind tells the consumer what the monthly figure means.
type CostKind string

const (
	// CostAbsolute: the whole resource is presumed waste; the figure is its
	// full monthly run rate.
	CostAbsolute CostKind = "absolute"
	// CostSavings: the resource is useful but oversized; the figure is the
	// delta recoverable by right-sizing.
	CostSavings CostKind = "savings"
)

// Finding is one graded suspicion about one resource. Findings are plain
// values; persistence and notification belong to the caller.
type Finding struct {
	ResourceType ResourceType      `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	ResourceName string            `json:"resource_name"`
	Region       string            `json:"region"`
	MonthlyCost  float64           `json:"estimated_monthly_cost"`
	CostKind     CostKind          `json:"cost_kind"`
	Tags         map[string]string `json:"tags,omitempty"`
	Metadata     Evidence          `json:"metadata"`
}

// Evidence carries the common typed fields plus free-form numeric signals.
type Evidence struct {
	OrphanType    string     `json:"orphan_type"`
	Reason        string     `json:"orphan_reason"`
	Confidence    Confidence `json:"confidence"`
	AgeDays       int        `json:"age_days"`
	AlreadyWasted float64    `json:"already_wasted_usd,omitempty"`

	// Raw measurements that led to the verdict, e.g. "sum_bytes_30d": 0.
	Signals map[string]float64 `json:"signals,omitempty"`
	// String-valued context, e.g. "volume_type": "gp2".
	Detail map[string]string `json:"detail,omitempty"`

	// Populated by deduplication.
	IsDeduplicated     bool        `json:"is_deduplicated,omitempty"`
	DuplicateCount     int         `json:"duplicate_count,omitempty"`
	DetectionScenarios []string    `json:"detection_scenarios,omitempty"`
	AllDetections      []Detection `json:"all_detections,omitempty"`
}

// Detection preserves one scenario's verdict after its finding was folded
// into a deduplicated one.
type Detection struct {
	OrphanType  string     `json:"orphan_type"`
	Reason      string     `json:"orphan_reason"`
	Confidence  Confidence `json:"confidence"`
	MonthlyCost float64    `json:"estimated_monthly_cost"`
	CostKind    CostKind   `json:"cost_kind"`
}

// Key identifies the physical resource a finding points at.
func (f *Finding) Key() string {
	return f.Region + "/" + f.ResourceID
}

func (f *Finding) String() string {
	return fmt.Sprintf("[%s] %s %s/%s $%.2f/mo (%s)",
		f.Metadata.Confidence, f.ResourceType, f.Region, f.ResourceID,
		f.MonthlyCost, f.Metadata.OrphanType)
}

// SetSignal records a numeric measurement, allocating the map on first use.
func (e *Evidence) SetSignal(name string, v float64) {
	if e.Signals == nil {
		e.Signals = make(map[string]float64)
	}
	e.Signals[name] = v
}

// SetDetail records a string-valued piece of context.
func (e *Evidence) SetDetail(name, v string) {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[name] = v
}

// RoundCents normalizes a dollar figure to two decimals so equal estimates
// compare equal after independent computation paths.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// AgeDays is the whole number of days between created and now, never
// negative. A zero created time yields zero: age unknown.
func AgeDays(created, now time.Time) int {
	if created.IsZero() || created.After(now) {
		return 0
	}
	return int(now.Sub(created).Hours() / 24)
}

// WastedToDate estimates money already burned: the monthly rate prorated
// over the resource's age. Only meaningful for absolute-cost findings.
func WastedToDate(monthly float64, ageDays int) float64 {
	if ageDays <= 0 {
		return 0
	}
	return RoundCents(monthly * float64(ageDays) / 30)
}
