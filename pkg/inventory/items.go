// Package inventory is the typed snapshot of one region's resources. The
// provider adapter materializes everything a scenario could ask about into
// these types up front, so detection logic never talks to the provider and
// stays trivially testable.
package inventory

import (
	"strings"
	"time"
)

// Meta is the envelope every inventory item embeds.
type Meta struct {
	ID        string
	Name      string
	Region    string
	CreatedAt time.Time
	Tags      map[string]string
}

// DisplayName prefers the human name and falls back to the raw ID.
func (m Meta) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Tag does a case-insensitive key lookup.
func (m Meta) Tag(key string) string {
	if v, ok := m.Tags[key]; ok {
		return v
	}
	for k, v := range m.Tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// HasAnyTagKey reports whether any of the keys is present, ignoring case.
func (m Meta) HasAnyTagKey(keys []string) bool {
	for _, k := range keys {
		if m.Tag(k) != "" {
			return true
		}
	}
	return false
}

// envTagKeys are the conventional places an environment label lives.
var envTagKeys = []string{"environment", "env", "stage", "tier"}

// EnvMatches reports whether the item's environment tag equals one of the
// given values, ignoring case. Untagged items never match.
func (m Meta) EnvMatches(values []string) bool {
	for _, key := range envTagKeys {
		v := m.Tag(key)
		if v == "" {
			continue
		}
		for _, want := range values {
			if strings.EqualFold(v, want) {
				return true
			}
		}
	}
	return false
}

// Untagged reports a resource with no tags at all.
func (m Meta) Untagged() bool { return len(m.Tags) == 0 }

type Volume struct {
	Meta
	State           string // available, in-use, error
	Type            string // gp2, gp3, io1, io2, st1, sc1, standard
	SizeGiB         int
	IOPS            int
	ThroughputMiBps int
	Encrypted       bool
	AttachedTo      string // instance ID, empty when unattached
}

type PublicIP struct {
	Meta // CreatedAt comes from the allocation event digest when known
	Address            string
	AssociationID      string
	InstanceID         string
	NetworkInterfaceID string
	NatGatewayID       string // set when the address fronts a NAT gateway
	NeverAssociated    bool
}

type Snapshot struct {
	Meta
	State         string // completed, pending, error
	VolumeID      string
	VolumeExists  bool
	SizeGiB       int
	Description   string
	Encrypted     bool
	SourceImageID string // parsed from CreateImage descriptions
}

type Instance struct {
	Meta
	State                 string // running, stopped
	Type                  string
	StoppedSince          time.Time
	StoppedSinceEstimated bool
	Platform              string
	Spot                  bool
}

type LoadBalancer struct {
	Meta
	Kind           string // application, network, gateway, classic
	State          string
	Scheme         string
	VPCID          string
	ListenerCount  int
	TargetsTotal   int
	TargetsHealthy int
	CrossZone      bool
}

type NatGateway struct {
	Meta
	State    string
	VPCID    string
	SubnetID string
}

type Route struct {
	DestinationCIDR string
	NatGatewayID    string
	GatewayID       string // igw-..., local
}

type RouteTable struct {
	Meta
	VPCID              string
	Main               bool
	Routes             []Route
	SubnetAssociations []string
}

type Subnet struct {
	Meta
	VPCID string
	AZ    string
}

type NetworkInterface struct {
	Meta
	Status      string // in-use, available
	Description string
}

type VPCEndpoint struct {
	Meta
	VPCID       string
	ServiceName string
	Type        string // Gateway, Interface
}

type InternetGateway struct {
	Meta
	AttachedVPCs []string
}

type Image struct {
	Meta
	State       string
	Public      bool
	SnapshotIDs []string
}

type Database struct {
	Meta
	Engine        string
	EngineVersion string
	Class         string
	Status        string // available, stopped
	MultiAZ       bool
	StorageGB     int
	ReadReplica   bool
	Serverless    bool
	ClusterID     string
}

type GSI struct {
	Name          string
	ReadCapacity  int64
	WriteCapacity int64
}

type Table struct {
	Meta
	BillingMode    string // PROVISIONED, PAY_PER_REQUEST
	ReadCapacity   int64
	WriteCapacity  int64
	ItemCount      int64
	SizeBytes      int64
	GSIs           []GSI
	HasAutoscaling bool
}

type CacheCluster struct {
	Meta
	Engine             string
	EngineVersion      string
	NodeType           string
	NumNodes           int
	Status             string
	ReplicationGroupID string
	IsReplica          bool
}

type Warehouse struct {
	Meta
	NodeType string
	NumNodes int
	Status   string
}

type SearchDomain struct {
	Meta
	EngineVersion string // e.g. OpenSearch_2.11, Elasticsearch_6.8
	InstanceType  string
	InstanceCount int
}

type Stream struct {
	Meta
	Status         string
	ShardCount     int
	RetentionHours int
	ConsumerCount  int
}

type Bucket struct {
	Meta
	// Object stats come from sampling the first listing page. Truncated
	// marks buckets larger than the sample, where counts are lower bounds.
	ObjectCount          int64
	TotalSizeBytes       int64
	NewestObject         time.Time
	Truncated            bool
	HasLifecycle         bool
	HasAbortMultipart    bool
	IncompleteUploads    int
	MultipartUploadBytes int64
	OldestUpload         time.Time
}

type Function struct {
	Meta
	Runtime                string
	MemoryMB               int
	CodeSizeBytes          int64
	ProvisionedConcurrency int
}

type LogGroup struct {
	Meta
	RetentionDays int // 0 means never expire
	StoredBytes   int64
}

type Repo struct {
	Meta
	ImageCount     int
	UntaggedCount  int
	TotalSizeBytes int64
	UntaggedBytes  int64
	HasLifecycle   bool
	LastPush       time.Time
}

type ContainerService struct {
	Meta
	Cluster      string
	DesiredCount int
	RunningCount int
	LaunchType   string
}

type ContainerCluster struct {
	Meta
	Status              string
	ActiveServices      int
	RunningTasks        int
	RegisteredInstances int
	Services            []ContainerService
}

type NodeGroup struct {
	Name        string
	DesiredSize int
	Status      string
}

type K8sCluster struct {
	Meta
	Status     string
	Version    string
	NodeGroups []NodeGroup
	// Filled by the optional live enricher; -1 means unknown.
	LiveNodes     int
	LiveWorkloads int
}

type Zone struct {
	Meta
	RecordCount int64
	Private     bool
}

type HealthCheck struct {
	Meta
	InUse bool
}

type WebACL struct {
	Meta
	Scope               string // REGIONAL, CLOUDFRONT
	RuleCount           int
	AssociatedResources int
}

type Role struct {
	Meta
	Path          string
	LastUsed      time.Time // zero means never used
	ServiceLinked bool
}
