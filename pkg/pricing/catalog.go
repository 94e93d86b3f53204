// Package pricing turns resource shapes into monthly dollar estimates. The
// catalog is a static, versioned price table: scans must not depend on a
// billing API being reachable, and estimates only need to be right to the
// cent for list prices. `wastewatch pricing sync` refreshes the table from
// the provider's price feed; the Calibrator scales estimates toward what the
// account actually pays.
package pricing

import "strings"

// CatalogVersion identifies the price table snapshot. Scan results carry it
// so two runs against different snapshots are never compared blindly.
const CatalogVersion = "2025-08-01"

// HoursPerMonth is the flat accounting month used across all estimates.
const HoursPerMonth = 720

// Catalog answers price questions for any region.
type Catalog struct {
	discount float64
}

// New returns a catalog with no billing calibration applied.
func New() *Catalog {
	return &Catalog{discount: 1.0}
}

// SetDiscount applies a calibration factor (amortized/unblended from the
// billing API) to compute-shaped estimates. Factor 1.0 means list price.
func (c *Catalog) SetDiscount(f float64) {
	if f > 0 {
		c.discount = f
	}
}

func (c *Catalog) Version() string { return CatalogVersion }

// Region binds the catalog to one region's cost factor.
func (c *Catalog) Region(region string) *Pricer {
	f, ok := regionFactor[region]
	if !ok {
		f = 1.05
	}
	return &Pricer{factor: f, discount: c.discount}
}

// Pricer prices resources within one region. All *Monthly methods return
// USD per month at HoursPerMonth.
type Pricer struct {
	factor   float64
	discount float64
}

var regionFactor = map[string]float64{
	"global":         1.0,
	"us-east-1":      1.0,
	"us-east-2":      1.0,
	"us-west-1":      1.08,
	"us-west-2":      1.0,
	"eu-west-1":      1.02,
	"eu-west-2":      1.04,
	"eu-central-1":   1.09,
	"ap-southeast-1": 1.12,
	"ap-southeast-2": 1.13,
	"ap-northeast-1": 1.14,
	"ap-south-1":     1.02,
	"ca-central-1":   1.02,
	"sa-east-1":      1.43,
}

// Per-GiB-month storage rates by volume type.
var volumeGBRate = map[string]float64{
	"gp3":      0.08,
	"gp2":      0.10,
	"io1":      0.125,
	"io2":      0.125,
	"st1":      0.045,
	"sc1":      0.015,
	"standard": 0.05,
}

const (
	gp3BaselineIOPS       = 3000
	gp3BaselineThroughput = 125 // MiB/s
	gp3IOPSRate           = 0.005
	gp3ThroughputRate     = 0.04
	ioProvisionedIOPSRate = 0.065
	snapshotGBRate        = 0.05
	publicIPHourly        = 0.005
	natGatewayHourly      = 0.045
	natDataProcessedGB    = 0.045
	crossAZTransferGB     = 0.01
	dbStorageGBRate       = 0.115
	tableRCUHourly        = 0.00013
	tableWCUHourly        = 0.00065
	tableStorageGBRate    = 0.25
	streamShardHourly     = 0.015
	streamRetentionHourly = 0.02
	bucketStorageGBRate   = 0.023
	bucketIAGBRate        = 0.0125
	functionGBMonthly     = 10.80 // provisioned concurrency, per GiB kept warm
	functionGBSecondRate  = 0.0000166667
	logStorageGBRate      = 0.03
	repoStorageGBRate     = 0.10
	eksClusterHourly      = 0.10
	hostedZoneMonthly     = 0.50
	healthCheckMonthly    = 0.50
	webACLMonthly         = 5.00
	webACLRuleMonthly     = 1.00
)

// VolumeMonthly prices a block volume and itemizes the components so a
// finding can show where the money goes. Unknown types price as gp2.
func (p *Pricer) VolumeMonthly(volType string, sizeGiB, provisionedIOPS, throughputMiBps int) (float64, map[string]float64) {
	rate, ok := volumeGBRate[volType]
	if !ok {
		rate = volumeGBRate["gp2"]
	}
	parts := map[string]float64{
		"storage": float64(sizeGiB) * rate,
	}
	switch volType {
	case "gp3":
		if provisionedIOPS > gp3BaselineIOPS {
			parts["iops"] = float64(provisionedIOPS-gp3BaselineIOPS) * gp3IOPSRate
		}
		if throughputMiBps > gp3BaselineThroughput {
			parts["throughput"] = float64(throughputMiBps-gp3BaselineThroughput) * gp3ThroughputRate
		}
	case "io1", "io2":
		parts["iops"] = float64(provisionedIOPS) * ioProvisionedIOPSRate
	}
	var total float64
	for k, v := range parts {
		parts[k] = v * p.factor
		total += parts[k]
	}
	return total, parts
}

// VolumeGBRate exposes the raw per-GiB rate for savings deltas.
func (p *Pricer) VolumeGBRate(volType string) float64 {
	rate, ok := volumeGBRate[volType]
	if !ok {
		rate = volumeGBRate["gp2"]
	}
	return rate * p.factor
}

func (p *Pricer) SnapshotMonthly(sizeGiB int) float64 {
	return float64(sizeGiB) * snapshotGBRate * p.factor
}

func (p *Pricer) PublicIPMonthly() float64 {
	return publicIPHourly * HoursPerMonth * p.factor
}

func (p *Pricer) NATGatewayMonthly() float64 {
	return natGatewayHourly * HoursPerMonth * p.factor
}

// NATDataProcessedMonthly prices the per-GB processing charge on traffic
// that crosses a NAT gateway. Gateway endpoints move the same bytes free.
func (p *Pricer) NATDataProcessedMonthly(gbPerMonth float64) float64 {
	return gbPerMonth * natDataProcessedGB * p.factor
}

// CrossAZTransferMonthly prices inter-AZ data transfer, both directions
// billed.
func (p *Pricer) CrossAZTransferMonthly(gbPerMonth float64) float64 {
	return gbPerMonth * crossAZTransferGB * 2 * p.factor
}

// On-demand hourly rates for common instance shapes. The sync command
// refreshes this table; unknown shapes fall back to a flat default and the
// caller should mark the estimate as such.
var instanceHourly = map[string]float64{
	"t1.micro":   0.02,
	"t2.nano":    0.0058,
	"t2.micro":   0.0116,
	"t2.small":   0.023,
	"t2.medium":  0.0464,
	"t2.large":   0.0928,
	"t3.nano":    0.0052,
	"t3.micro":   0.0104,
	"t3.small":   0.0208,
	"t3.medium":  0.0416,
	"t3.large":   0.0832,
	"t3.xlarge":  0.1664,
	"t3.2xlarge": 0.3328,
	"m1.small":   0.044,
	"m3.medium":  0.067,
	"m4.large":   0.10,
	"m4.xlarge":  0.20,
	"m5.large":   0.096,
	"m5.xlarge":  0.192,
	"m5.2xlarge": 0.384,
	"m5.4xlarge": 0.768,
	"m6i.large":  0.096,
	"m6i.xlarge": 0.192,
	"c3.large":   0.105,
	"c4.large":   0.10,
	"c4.xlarge":  0.199,
	"c5.large":   0.085,
	"c5.xlarge":  0.17,
	"c5.2xlarge": 0.34,
	"c6i.large":  0.085,
	"r3.large":   0.166,
	"r4.large":   0.133,
	"r5.large":   0.126,
	"r5.xlarge":  0.252,
	"r6i.large":  0.126,
	"i2.xlarge":  0.853,
	"d2.xlarge":  0.69,
}

const instanceHourlyFallback = 0.10

// InstanceMonthly prices an instance shape. exact is false when the shape
// missed the table and the flat fallback was used.
func (p *Pricer) InstanceMonthly(instanceType string) (usd float64, exact bool) {
	hourly, ok := instanceHourly[instanceType]
	if !ok {
		hourly = instanceHourlyFallback
	}
	return hourly * HoursPerMonth * p.factor * p.discount, ok
}

var loadBalancerHourly = map[string]float64{
	"application": 0.0225,
	"network":     0.0225,
	"gateway":     0.0125,
	"classic":     0.025,
}

func (p *Pricer) LoadBalancerMonthly(kind string) float64 {
	hourly, ok := loadBalancerHourly[kind]
	if !ok {
		hourly = loadBalancerHourly["application"]
	}
	return hourly * HoursPerMonth * p.factor
}

var dbInstanceHourly = map[string]float64{
	"db.t2.micro":  0.017,
	"db.t3.micro":  0.017,
	"db.t3.small":  0.034,
	"db.t3.medium": 0.068,
	"db.t3.large":  0.136,
	"db.m4.large":  0.175,
	"db.m5.large":  0.171,
	"db.m5.xlarge": 0.342,
	"db.m6g.large": 0.152,
	"db.r5.large":  0.24,
	"db.r5.xlarge": 0.48,
	"db.r6g.large": 0.218,
}

const dbInstanceFallback = 0.15

// DBInstanceMonthly prices a database instance; multi-AZ doubles it.
func (p *Pricer) DBInstanceMonthly(class string, multiAZ bool) (usd float64, exact bool) {
	hourly, ok := dbInstanceHourly[class]
	if !ok {
		hourly = dbInstanceFallback
	}
	usd = hourly * HoursPerMonth * p.factor
	if multiAZ {
		usd *= 2
	}
	return usd, ok
}

func (p *Pricer) DBStorageMonthly(gb int) float64 {
	return float64(gb) * dbStorageGBRate * p.factor
}

// TableMonthly prices provisioned NoSQL capacity plus storage.
func (p *Pricer) TableMonthly(rcu, wcu float64, storageGB float64) float64 {
	capacity := (rcu*tableRCUHourly + wcu*tableWCUHourly) * HoursPerMonth
	return (capacity + storageGB*tableStorageGBRate) * p.factor
}

var cacheNodeHourly = map[string]float64{
	"cache.t2.micro":  0.017,
	"cache.t3.micro":  0.017,
	"cache.t3.small":  0.034,
	"cache.t3.medium": 0.068,
	"cache.m4.large":  0.156,
	"cache.m5.large":  0.156,
	"cache.m6g.large": 0.149,
	"cache.r5.large":  0.216,
	"cache.r6g.large": 0.206,
}

const cacheNodeFallback = 0.10

func (p *Pricer) CacheMonthly(nodeType string, nodes int) (usd float64, exact bool) {
	hourly, ok := cacheNodeHourly[nodeType]
	if !ok {
		hourly = cacheNodeFallback
	}
	return hourly * float64(nodes) * HoursPerMonth * p.factor, ok
}

var warehouseNodeHourly = map[string]float64{
	"dc1.large":   0.25,
	"dc2.large":   0.25,
	"dc2.8xlarge": 4.80,
	"ds2.xlarge":  0.85,
	"ds2.8xlarge": 6.80,
	"ra3.xlplus":  1.086,
	"ra3.4xlarge": 3.26,
}

const warehouseNodeFallback = 0.25

func (p *Pricer) WarehouseMonthly(nodeType string, nodes int) (usd float64, exact bool) {
	hourly, ok := warehouseNodeHourly[nodeType]
	if !ok {
		hourly = warehouseNodeFallback
	}
	return hourly * float64(nodes) * HoursPerMonth * p.factor, ok
}

var searchNodeHourly = map[string]float64{
	"t3.small.search":  0.036,
	"t3.medium.search": 0.073,
	"m5.large.search":  0.142,
	"m6g.large.search": 0.128,
	"c5.large.search":  0.128,
	"r5.large.search":  0.186,
	"r6g.large.search": 0.167,
}

const searchNodeFallback = 0.10

func (p *Pricer) SearchMonthly(instanceType string, nodes int) (usd float64, exact bool) {
	hourly, ok := searchNodeHourly[instanceType]
	if !ok {
		hourly = searchNodeFallback
	}
	return hourly * float64(nodes) * HoursPerMonth * p.factor, ok
}

// StreamMonthly prices shard-hours plus extended retention beyond the
// baseline day.
func (p *Pricer) StreamMonthly(shards int, retentionHours int) float64 {
	usd := float64(shards) * streamShardHourly * HoursPerMonth
	if retentionHours > 24 {
		usd += float64(shards) * streamRetentionHourly * HoursPerMonth
	}
	return usd * p.factor
}

func (p *Pricer) StreamShardMonthly() float64 {
	return streamShardHourly * HoursPerMonth * p.factor
}

func (p *Pricer) BucketStorageMonthly(gb float64) float64 {
	return gb * bucketStorageGBRate * p.factor
}

// BucketTieringSavingsMonthly is the delta between standard and
// infrequent-access storage for the given bytes, the floor of what a
// lifecycle policy would recover.
func (p *Pricer) BucketTieringSavingsMonthly(gb float64) float64 {
	return gb * (bucketStorageGBRate - bucketIAGBRate) * p.factor
}

// FunctionProvisionedMonthly prices provisioned concurrency: GiB of memory
// held warm times the per-GiB-month rate.
func (p *Pricer) FunctionProvisionedMonthly(warmGiB float64) float64 {
	return warmGiB * functionGBMonthly * p.factor
}

// FunctionComputeMonthly prices function execution from GB-seconds consumed
// per month.
func (p *Pricer) FunctionComputeMonthly(gbSeconds float64) float64 {
	return gbSeconds * functionGBSecondRate * p.factor
}

func (p *Pricer) LogStorageMonthly(gb float64) float64 {
	return gb * logStorageGBRate * p.factor
}

func (p *Pricer) RepoStorageMonthly(gb float64) float64 {
	return gb * repoStorageGBRate * p.factor
}

func (p *Pricer) EKSClusterMonthly() float64 {
	return eksClusterHourly * HoursPerMonth * p.factor
}

func (p *Pricer) HostedZoneMonthly() float64 { return hostedZoneMonthly }

func (p *Pricer) HealthCheckMonthly() float64 { return healthCheckMonthly }

func (p *Pricer) WebACLMonthly(ruleCount int) float64 {
	return webACLMonthly + webACLRuleMonthly*float64(ruleCount)
}

// Aurora Serverless v2 capacity unit, per ACU-hour.
const auroraACUHourly = 0.12

// AuroraServerlessMonthly estimates the run rate of a serverless database
// from its average capacity units.
func (p *Pricer) AuroraServerlessMonthly(avgACU float64) float64 {
	return avgACU * auroraACUHourly * HoursPerMonth * p.factor
}

// Extended-support surcharge for EOL database engines, per vCPU-hour.
const extendedSupportVCPUHourly = 0.10

// ExtendedSupportMonthly estimates the surcharge an EOL engine accrues,
// from the vCPU count implied by the instance class size.
func (p *Pricer) ExtendedSupportMonthly(class string) float64 {
	return float64(classVCPUs(class)) * extendedSupportVCPUHourly * HoursPerMonth * p.factor
}

// Spot interruption-tolerant workloads typically pay about a third of
// on-demand; the savings rate is the conservative end of that band.
const spotSavingsRate = 0.65

// SpotSavingsMonthly is what moving an on-demand instance to spot would
// recover per month.
func (p *Pricer) SpotSavingsMonthly(onDemandMonthly float64) float64 {
	return onDemandMonthly * spotSavingsRate
}

var sizeVCPUs = map[string]int{
	"nano": 2, "micro": 2, "small": 2, "medium": 2, "large": 2,
	"xlarge": 4, "2xlarge": 8, "4xlarge": 16, "8xlarge": 32,
}

func classVCPUs(class string) int {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		if v, ok := sizeVCPUs[class[i+1:]]; ok {
			return v
		}
	}
	return 2
}

// sizeOrder ranks shape size suffixes, smallest first.
var sizeOrder = []string{"nano", "micro", "small", "medium", "large", "xlarge", "2xlarge", "4xlarge", "8xlarge"}

// InstanceFamily extracts the family prefix ("m5" from "m5.large").
func InstanceFamily(instanceType string) string {
	if i := strings.IndexByte(instanceType, '.'); i > 0 {
		return instanceType[:i]
	}
	return instanceType
}

// SmallerShape suggests the next shape down within the same family, for
// right-sizing savings estimates. Returns false at the bottom of a family
// or for shapes the table does not know.
func SmallerShape(instanceType string) (string, bool) {
	fam := InstanceFamily(instanceType)
	size := strings.TrimPrefix(instanceType, fam+".")
	for i, s := range sizeOrder {
		if s == size && i > 0 {
			candidate := fam + "." + sizeOrder[i-1]
			if _, ok := instanceHourly[candidate]; ok {
				return candidate, true
			}
			return "", false
		}
	}
	return "", false
}

// smallerIn walks one size step down inside a price table keyed by shapes
// of the form "<prefix>.<size>" ("db.m5.xlarge", "cache.t3.medium").
func smallerIn(table map[string]float64, shape string) (string, bool) {
	i := strings.LastIndexByte(shape, '.')
	if i <= 0 {
		return "", false
	}
	prefix, size := shape[:i], shape[i+1:]
	for j, s := range sizeOrder {
		if s == size && j > 0 {
			candidate := prefix + "." + sizeOrder[j-1]
			if _, ok := table[candidate]; ok {
				return candidate, true
			}
			return "", false
		}
	}
	return "", false
}

// SmallerDBClass is SmallerShape for database instance classes.
func SmallerDBClass(class string) (string, bool) {
	return smallerIn(dbInstanceHourly, class)
}

// SmallerCacheNode is SmallerShape for cache node types.
func SmallerCacheNode(nodeType string) (string, bool) {
	return smallerIn(cacheNodeHourly, nodeType)
}

// SmallerSearchNode handles the trailing ".search" marker on search
// instance types.
func SmallerSearchNode(instanceType string) (string, bool) {
	const suffix = ".search"
	base, found := strings.CutSuffix(instanceType, suffix)
	if !found {
		return "", false
	}
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return "", false
	}
	prefix, size := base[:i], base[i+1:]
	for j, s := range sizeOrder {
		if s == size && j > 0 {
			candidate := prefix + "." + sizeOrder[j-1] + suffix
			if _, ok := searchNodeHourly[candidate]; ok {
				return candidate, true
			}
			return "", false
		}
	}
	return "", false
}
