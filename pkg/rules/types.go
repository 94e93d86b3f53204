// Package rules holds every tunable the detection scenarios consume: one
// typed struct per resource type, an authoritative defaults table, and a
// merge step that layers caller overrides onto a copy of the defaults.
package rules

import (
	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Common carries the knobs every resource type shares. The confidence
// ladder thresholds are days of age; zero disables a rung.
type Common struct {
	Enabled           bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	LookbackDays      int      `mapstructure:"lookback_days" json:"lookback_days" yaml:"lookback_days"`
	MediumDays        int      `mapstructure:"confidence_medium_days" json:"confidence_medium_days" yaml:"confidence_medium_days"`
	HighDays          int      `mapstructure:"confidence_high_days" json:"confidence_high_days" yaml:"confidence_high_days"`
	CriticalDays      int      `mapstructure:"confidence_critical_days" json:"confidence_critical_days" yaml:"confidence_critical_days"`
	DisabledScenarios []string `mapstructure:"disabled_scenarios" json:"disabled_scenarios,omitempty" yaml:"disabled_scenarios,omitempty"`
}

// Ladder converts the threshold fields into the grading ladder.
func (c Common) Ladder() finding.Ladder {
	return finding.Ladder{
		MediumDays:   c.MediumDays,
		HighDays:     c.HighDays,
		CriticalDays: c.CriticalDays,
	}
}

// ScenarioDisabled reports whether the caller switched one scenario off.
func (c Common) ScenarioDisabled(id string) bool {
	for _, s := range c.DisabledScenarios {
		if s == id {
			return true
		}
	}
	return false
}

// TrafficBands defines the byte boundaries every traffic-judging scenario
// shares: below Dead the resource moved nothing that matters, between Dead
// and Trickle it moved a token amount, above Trickle it is genuinely active.
type TrafficBands struct {
	DeadBytes    float64 `mapstructure:"dead_bytes" json:"dead_bytes" yaml:"dead_bytes"`
	TrickleBytes float64 `mapstructure:"trickle_bytes" json:"trickle_bytes" yaml:"trickle_bytes"`
}

// Classify buckets a byte count into "dead", "trickle", or "active".
func (b TrafficBands) Classify(bytes float64) string {
	switch {
	case bytes < b.DeadBytes:
		return "dead"
	case bytes <= b.TrickleBytes:
		return "trickle"
	default:
		return "active"
	}
}

type VolumeRules struct {
	Common                 `mapstructure:",squash" json:",inline" yaml:",inline"`
	AttachedStoppedMinDays int      `mapstructure:"attached_stopped_min_days" json:"attached_stopped_min_days" yaml:"attached_stopped_min_days"`
	LegacyMinSizeGiB       int      `mapstructure:"legacy_min_size_gib" json:"legacy_min_size_gib" yaml:"legacy_min_size_gib"`
	IOPSHeadroomFactor     float64  `mapstructure:"iops_headroom_factor" json:"iops_headroom_factor" yaml:"iops_headroom_factor"`
	ThroughputHeadroom     float64  `mapstructure:"throughput_headroom_factor" json:"throughput_headroom_factor" yaml:"throughput_headroom_factor"`
	IOPSUtilizationPct     float64  `mapstructure:"iops_utilization_pct" json:"iops_utilization_pct" yaml:"iops_utilization_pct"`
	ThroughputUtilization  float64  `mapstructure:"throughput_utilization_pct" json:"throughput_utilization_pct" yaml:"throughput_utilization_pct"`
	DowngradeSafetyFactor  float64  `mapstructure:"downgrade_safety_factor" json:"downgrade_safety_factor" yaml:"downgrade_safety_factor"`
	ComplianceTagKeys      []string `mapstructure:"compliance_tag_keys" json:"compliance_tag_keys" yaml:"compliance_tag_keys"`
}

type PublicIPRules struct {
	Common          `mapstructure:",squash" json:",inline" yaml:",inline"`
	HAExemptTagKeys []string `mapstructure:"ha_exempt_tag_keys" json:"ha_exempt_tag_keys" yaml:"ha_exempt_tag_keys"`
}

type SnapshotRules struct {
	Common               `mapstructure:",squash" json:",inline" yaml:",inline"`
	MaxPerVolume         int      `mapstructure:"max_per_volume" json:"max_per_volume" yaml:"max_per_volume"`
	OldMaxAgeDays        int      `mapstructure:"old_max_age_days" json:"old_max_age_days" yaml:"old_max_age_days"`
	UntaggedMinDays      int      `mapstructure:"untagged_min_days" json:"untagged_min_days" yaml:"untagged_min_days"`
	StuckPendingDays     int      `mapstructure:"stuck_pending_days" json:"stuck_pending_days" yaml:"stuck_pending_days"`
	DuplicateWindowHours int      `mapstructure:"duplicate_window_hours" json:"duplicate_window_hours" yaml:"duplicate_window_hours"`
	NonProdRetentionDays int      `mapstructure:"nonprod_retention_days" json:"nonprod_retention_days" yaml:"nonprod_retention_days"`
	NonProdTagValues     []string `mapstructure:"nonprod_tag_values" json:"nonprod_tag_values" yaml:"nonprod_tag_values"`
	ComplianceTagKeys    []string `mapstructure:"compliance_tag_keys" json:"compliance_tag_keys" yaml:"compliance_tag_keys"`
}

type InstanceRules struct {
	Common                `mapstructure:",squash" json:",inline" yaml:",inline"`
	StoppedMinDays        int      `mapstructure:"stopped_min_days" json:"stopped_min_days" yaml:"stopped_min_days"`
	MinIdleDays           int      `mapstructure:"min_idle_days" json:"min_idle_days" yaml:"min_idle_days"`
	LowCPUPct             float64  `mapstructure:"low_cpu_pct" json:"low_cpu_pct" yaml:"low_cpu_pct"`
	IdleCPUPct            float64  `mapstructure:"idle_cpu_pct" json:"idle_cpu_pct" yaml:"idle_cpu_pct"`
	PreviousGenFamilies   []string `mapstructure:"previous_gen_families" json:"previous_gen_families" yaml:"previous_gen_families"`
	BurstableCreditFloor  float64  `mapstructure:"burstable_credit_floor_pct" json:"burstable_credit_floor_pct" yaml:"burstable_credit_floor_pct"`
	NonProdTagValues      []string `mapstructure:"nonprod_tag_values" json:"nonprod_tag_values" yaml:"nonprod_tag_values"`
	RightsizePeakPct      float64  `mapstructure:"rightsize_peak_pct" json:"rightsize_peak_pct" yaml:"rightsize_peak_pct"`
	RightsizeAvgPct       float64  `mapstructure:"rightsize_avg_pct" json:"rightsize_avg_pct" yaml:"rightsize_avg_pct"`
	BusinessHoursSharePct float64  `mapstructure:"business_hours_share_pct" json:"business_hours_share_pct" yaml:"business_hours_share_pct"`
	SpotStdDevPct         float64  `mapstructure:"spot_stddev_pct" json:"spot_stddev_pct" yaml:"spot_stddev_pct"`
}

type LoadBalancerRules struct {
	Common                `mapstructure:",squash" json:",inline" yaml:",inline"`
	BusinessHoursSharePct float64 `mapstructure:"business_hours_share_pct" json:"business_hours_share_pct" yaml:"business_hours_share_pct"`
}

type NATGatewayRules struct {
	Common                `mapstructure:",squash" json:",inline" yaml:",inline"`
	LowTrafficGBMonth     float64  `mapstructure:"low_traffic_gb_month" json:"low_traffic_gb_month" yaml:"low_traffic_gb_month"`
	BusinessHoursSharePct float64  `mapstructure:"business_hours_share_pct" json:"business_hours_share_pct" yaml:"business_hours_share_pct"`
	TrafficDropPct        float64  `mapstructure:"traffic_drop_pct" json:"traffic_drop_pct" yaml:"traffic_drop_pct"`
	NonProdTagValues      []string `mapstructure:"nonprod_tag_values" json:"nonprod_tag_values" yaml:"nonprod_tag_values"`
}

type DatabaseRules struct {
	Common            `mapstructure:",squash" json:",inline" yaml:",inline"`
	StoppedMinDays    int      `mapstructure:"stopped_min_days" json:"stopped_min_days" yaml:"stopped_min_days"`
	OversizeCPUPct    float64  `mapstructure:"oversize_cpu_pct" json:"oversize_cpu_pct" yaml:"oversize_cpu_pct"`
	OversizeMaxConn   float64  `mapstructure:"oversize_max_connections" json:"oversize_max_connections" yaml:"oversize_max_connections"`
	EOLEngineVersions []string `mapstructure:"eol_engine_versions" json:"eol_engine_versions" yaml:"eol_engine_versions"`
}

type TableRules struct {
	Common                 `mapstructure:",squash" json:",inline" yaml:",inline"`
	CapacityHeadroomFactor float64 `mapstructure:"capacity_headroom_factor" json:"capacity_headroom_factor" yaml:"capacity_headroom_factor"`
	EmptyMinAgeDays        int     `mapstructure:"empty_min_age_days" json:"empty_min_age_days" yaml:"empty_min_age_days"`
	SkewFactor             float64 `mapstructure:"skew_factor" json:"skew_factor" yaml:"skew_factor"`
}

type CacheRules struct {
	Common            `mapstructure:",squash" json:",inline" yaml:",inline"`
	OversizeCPUPct    float64  `mapstructure:"oversize_cpu_pct" json:"oversize_cpu_pct" yaml:"oversize_cpu_pct"`
	OversizeMemoryPct float64  `mapstructure:"oversize_memory_pct" json:"oversize_memory_pct" yaml:"oversize_memory_pct"`
	EOLEngineVersions []string `mapstructure:"eol_engine_versions" json:"eol_engine_versions" yaml:"eol_engine_versions"`
}

type WarehouseRules struct {
	Common             `mapstructure:",squash" json:",inline" yaml:",inline"`
	UnderutilCPUPct    float64  `mapstructure:"underutil_cpu_pct" json:"underutil_cpu_pct" yaml:"underutil_cpu_pct"`
	NearEmptyDiskPct   float64  `mapstructure:"near_empty_disk_pct" json:"near_empty_disk_pct" yaml:"near_empty_disk_pct"`
	OldGenNodePrefixes []string `mapstructure:"old_gen_node_prefixes" json:"old_gen_node_prefixes" yaml:"old_gen_node_prefixes"`
}

type SearchRules struct {
	Common            `mapstructure:",squash" json:",inline" yaml:",inline"`
	OversizeCPUPct    float64  `mapstructure:"oversize_cpu_pct" json:"oversize_cpu_pct" yaml:"oversize_cpu_pct"`
	EOLEngineVersions []string `mapstructure:"eol_engine_versions" json:"eol_engine_versions" yaml:"eol_engine_versions"`
}

type StreamRules struct {
	Common                 `mapstructure:",squash" json:",inline" yaml:",inline"`
	RetentionBaselineHours int     `mapstructure:"retention_baseline_hours" json:"retention_baseline_hours" yaml:"retention_baseline_hours"`
	ShardUtilizationPct    float64 `mapstructure:"shard_utilization_pct" json:"shard_utilization_pct" yaml:"shard_utilization_pct"`
	SkewFactor             float64 `mapstructure:"skew_factor" json:"skew_factor" yaml:"skew_factor"`
}

type BucketRules struct {
	Common              `mapstructure:",squash" json:",inline" yaml:",inline"`
	StaleObjectDays     int `mapstructure:"stale_object_days" json:"stale_object_days" yaml:"stale_object_days"`
	EmptyMinAgeDays     int `mapstructure:"empty_min_age_days" json:"empty_min_age_days" yaml:"empty_min_age_days"`
	MultipartMinAgeDays int `mapstructure:"multipart_min_age_days" json:"multipart_min_age_days" yaml:"multipart_min_age_days"`
}

type FunctionRules struct {
	Common              `mapstructure:",squash" json:",inline" yaml:",inline"`
	NeverInvokedMinDays int      `mapstructure:"never_invoked_min_days" json:"never_invoked_min_days" yaml:"never_invoked_min_days"`
	ErrorRatePct        float64  `mapstructure:"error_rate_pct" json:"error_rate_pct" yaml:"error_rate_pct"`
	ProvisionedUtilPct  float64  `mapstructure:"provisioned_util_pct" json:"provisioned_util_pct" yaml:"provisioned_util_pct"`
	DeprecatedRuntimes  []string `mapstructure:"deprecated_runtimes" json:"deprecated_runtimes" yaml:"deprecated_runtimes"`
}

type LogGroupRules struct {
	Common      `mapstructure:",squash" json:",inline" yaml:",inline"`
	MinStoredGB float64 `mapstructure:"min_stored_gb" json:"min_stored_gb" yaml:"min_stored_gb"`
}

type RepoRules struct {
	Common    `mapstructure:",squash" json:",inline" yaml:",inline"`
	StaleDays int `mapstructure:"stale_days" json:"stale_days" yaml:"stale_days"`
}

type ContainerRules struct {
	Common          `mapstructure:",squash" json:",inline" yaml:",inline"`
	ZeroTaskMinDays int `mapstructure:"zero_task_min_days" json:"zero_task_min_days" yaml:"zero_task_min_days"`
}

type K8sRules struct {
	Common           `mapstructure:",squash" json:",inline" yaml:",inline"`
	EmptyClusterDays int `mapstructure:"empty_cluster_days" json:"empty_cluster_days" yaml:"empty_cluster_days"`
}

type DNSZoneRules struct {
	Common `mapstructure:",squash" json:",inline" yaml:",inline"`
}

type WAFRules struct {
	Common `mapstructure:",squash" json:",inline" yaml:",inline"`
}

type IAMRoleRules struct {
	Common           `mapstructure:",squash" json:",inline" yaml:",inline"`
	UnusedDays       int `mapstructure:"unused_days" json:"unused_days" yaml:"unused_days"`
	NeverUsedMinDays int `mapstructure:"never_used_min_days" json:"never_used_min_days" yaml:"never_used_min_days"`
}

// Set is the complete rule configuration for one scan.
type Set struct {
	Volume           VolumeRules       `mapstructure:"volume" json:"volume" yaml:"volume"`
	PublicIP         PublicIPRules     `mapstructure:"public_ip" json:"public_ip" yaml:"public_ip"`
	Snapshot         SnapshotRules     `mapstructure:"snapshot" json:"snapshot" yaml:"snapshot"`
	Instance         InstanceRules     `mapstructure:"instance" json:"instance" yaml:"instance"`
	LoadBalancer     LoadBalancerRules `mapstructure:"load_balancer" json:"load_balancer" yaml:"load_balancer"`
	NATGateway       NATGatewayRules   `mapstructure:"nat_gateway" json:"nat_gateway" yaml:"nat_gateway"`
	RelationalDB     DatabaseRules     `mapstructure:"relational_db" json:"relational_db" yaml:"relational_db"`
	DocDB            DatabaseRules     `mapstructure:"doc_db" json:"doc_db" yaml:"doc_db"`
	GraphDB          DatabaseRules     `mapstructure:"graph_db" json:"graph_db" yaml:"graph_db"`
	NoSQLTable       TableRules        `mapstructure:"nosql_table" json:"nosql_table" yaml:"nosql_table"`
	CacheCluster     CacheRules        `mapstructure:"cache_cluster" json:"cache_cluster" yaml:"cache_cluster"`
	Warehouse        WarehouseRules    `mapstructure:"warehouse" json:"warehouse" yaml:"warehouse"`
	SearchDomain     SearchRules       `mapstructure:"search_domain" json:"search_domain" yaml:"search_domain"`
	Stream           StreamRules       `mapstructure:"stream" json:"stream" yaml:"stream"`
	Bucket           BucketRules       `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Function         FunctionRules     `mapstructure:"function" json:"function" yaml:"function"`
	LogGroup         LogGroupRules     `mapstructure:"log_group" json:"log_group" yaml:"log_group"`
	ContainerRepo    RepoRules         `mapstructure:"container_repo" json:"container_repo" yaml:"container_repo"`
	ContainerService ContainerRules    `mapstructure:"container_service" json:"container_service" yaml:"container_service"`
	K8sCluster       K8sRules          `mapstructure:"k8s_cluster" json:"k8s_cluster" yaml:"k8s_cluster"`
	DNSZone          DNSZoneRules      `mapstructure:"dns_zone" json:"dns_zone" yaml:"dns_zone"`
	WAFACL           WAFRules          `mapstructure:"waf_acl" json:"waf_acl" yaml:"waf_acl"`
	IAMRole          IAMRoleRules      `mapstructure:"iam_role" json:"iam_role" yaml:"iam_role"`

	Traffic TrafficBands `mapstructure:"traffic" json:"traffic" yaml:"traffic"`
}

// CommonFor returns the shared knobs for a resource type. Unknown types get
// a zeroed Common with the standard ladder.
func (s *Set) CommonFor(rt finding.ResourceType) Common {
	switch rt {
	case finding.TypeVolume:
		return s.Volume.Common
	case finding.TypePublicIP:
		return s.PublicIP.Common
	case finding.TypeSnapshot:
		return s.Snapshot.Common
	case finding.TypeInstance:
		return s.Instance.Common
	case finding.TypeLoadBalancer:
		return s.LoadBalancer.Common
	case finding.TypeNATGateway:
		return s.NATGateway.Common
	case finding.TypeRelationalDB:
		return s.RelationalDB.Common
	case finding.TypeDocDB:
		return s.DocDB.Common
	case finding.TypeGraphDB:
		return s.GraphDB.Common
	case finding.TypeNoSQLTable:
		return s.NoSQLTable.Common
	case finding.TypeCacheCluster:
		return s.CacheCluster.Common
	case finding.TypeWarehouse:
		return s.Warehouse.Common
	case finding.TypeSearchDomain:
		return s.SearchDomain.Common
	case finding.TypeStream:
		return s.Stream.Common
	case finding.TypeBucket:
		return s.Bucket.Common
	case finding.TypeFunction:
		return s.Function.Common
	case finding.TypeLogGroup:
		return s.LogGroup.Common
	case finding.TypeContainerRepo:
		return s.ContainerRepo.Common
	case finding.TypeContainerService:
		return s.ContainerService.Common
	case finding.TypeK8sCluster:
		return s.K8sCluster.Common
	case finding.TypeDNSZone:
		return s.DNSZone.Common
	case finding.TypeWAFACL:
		return s.WAFACL.Common
	case finding.TypeIAMRole:
		return s.IAMRole.Common
	default:
		return Common{Enabled: true, MediumDays: 7, HighDays: 30, CriticalDays: 90}
	}
}

// LadderFor returns the confidence ladder for a resource type.
func (s *Set) LadderFor(rt finding.ResourceType) finding.Ladder {
	return s.CommonFor(rt).Ladder()
}
