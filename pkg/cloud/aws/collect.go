package aws

import (
	"context"
	"sync"
	"time"

	appautoscaling "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"
	"golang.org/x/sync/errgroup"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

// maxUnitConcurrency bounds parallel collection units within one region.
// Regions already fan out above us; this keeps one region from burning the
// whole API budget.
const maxUnitConcurrency = 16

// unit is one independently failable collection step. Owners are the
// requested resource types that need its output; when the unit fails, each
// owner gets a Skipped entry.
type unit struct {
	name   string
	owners []finding.ResourceType
	run    func(ctx context.Context) error
}

// unitSet deduplicates units by name while accumulating owners, so a step
// shared by several resource types (instances, route tables) runs once.
type unitSet struct {
	order  []string
	byName map[string]*unit
}

func newUnitSet() *unitSet {
	return &unitSet{byName: make(map[string]*unit)}
}

func (s *unitSet) add(name string, owner finding.ResourceType, run func(ctx context.Context) error) {
	if u, ok := s.byName[name]; ok {
		for _, o := range u.owners {
			if o == owner {
				return
			}
		}
		u.owners = append(u.owners, owner)
		return
	}
	u := &unit{name: name, owners: []finding.ResourceType{owner}, run: run}
	s.byName[name] = u
	s.order = append(s.order, name)
}

func (s *unitSet) list() []*unit {
	out := make([]*unit, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// collectState is the shared sink the units write into.
type collectState struct {
	mu              sync.Mutex
	inv             *inventory.Inventory
	natByAllocation map[string]string
	unhealthy       map[string]bool
	digest          *trailDigest

	failed   int
	firstErr error
}

func (s *collectState) fail(u *unit, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	if s.firstErr == nil {
		s.firstErr = err
	}
	for _, owner := range u.owners {
		s.inv.Skipped = append(s.inv.Skipped, inventory.CollectError{ResourceType: owner, Err: err})
	}
}

// store runs fn under the state lock; units use it for every write.
func (s *collectState) store(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// CollectInventory enumerates the requested resource types in one region.
// Each collection step is isolated: a denied API becomes a Skipped entry on
// the result, and only a dead context or total failure returns an error.
func (a *Adapter) CollectInventory(ctx context.Context, region string, types []finding.ResourceType) (*inventory.Inventory, error) {
	inv := &inventory.Inventory{Region: region}
	state := &collectState{inv: inv}

	units := a.planUnits(region, types, state)
	if len(units) == 0 {
		inv.Finalize()
		return inv, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxUnitConcurrency)
	for _, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := u.run(gctx); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn("collection step failed",
					"region", region, "step", u.name, "error", err)
				state.fail(u, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if state.failed == len(units) {
		return nil, state.firstErr
	}

	a.finishInventory(inv, state)
	a.enrichClusters(ctx, inv)
	return inv, nil
}

// planUnits expands the requested types into collection steps, including
// the support collections scenarios resolve relationships from.
func (a *Adapter) planUnits(region string, types []finding.ResourceType, state *collectState) []*unit {
	if region == finding.RegionGlobal {
		return a.planGlobalUnits(types, state)
	}

	cfg := a.regionCfg(region)
	ec2c := newEC2Collector(ec2.NewFromConfig(cfg), region)

	set := newUnitSet()
	volumes := func(rt finding.ResourceType) {
		set.add("ec2/volumes", rt, func(ctx context.Context) error {
			items, err := ec2c.Volumes(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.inv.Volumes = items })
			return nil
		})
	}
	instances := func(rt finding.ResourceType) {
		set.add("ec2/instances", rt, func(ctx context.Context) error {
			items, err := ec2c.Instances(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.inv.Instances = items })
			return nil
		})
	}
	nats := func(rt finding.ResourceType) {
		set.add("ec2/nat-gateways", rt, func(ctx context.Context) error {
			items, byAllocation, err := ec2c.NatGateways(ctx)
			if err != nil {
				return err
			}
			state.store(func() {
				state.inv.NatGateways = items
				state.natByAllocation = byAllocation
			})
			return nil
		})
	}
	routing := func(rt finding.ResourceType) {
		set.add("ec2/route-tables", rt, func(ctx context.Context) error {
			items, err := ec2c.RouteTables(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.inv.RouteTables = items })
			return nil
		})
		set.add("ec2/subnets", rt, func(ctx context.Context) error {
			items, err := ec2c.Subnets(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.inv.Subnets = items })
			return nil
		})
		set.add("ec2/internet-gateways", rt, func(ctx context.Context) error {
			items, err := ec2c.InternetGateways(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.inv.InternetGateways = items })
			return nil
		})
	}
	loadBalancers := func(rt finding.ResourceType) {
		set.add("elb/load-balancers", rt, func(ctx context.Context) error {
			collector := newELBCollector(elbv2.NewFromConfig(cfg), elb.NewFromConfig(cfg), region)
			items, unhealthy, err := collector.LoadBalancers(ctx)
			if err != nil {
				return err
			}
			state.store(func() {
				state.inv.LoadBalancers = items
				state.unhealthy = unhealthy
			})
			return nil
		})
	}
	digest := func(rt finding.ResourceType) {
		if !a.provenance {
			return
		}
		set.add("cloudtrail/digest", rt, func(ctx context.Context) error {
			collector := newProvenanceCollector(cloudtrail.NewFromConfig(cfg), time.Now)
			d, err := collector.Digest(ctx)
			if err != nil {
				return err
			}
			state.store(func() { state.digest = d })
			return nil
		})
	}

	for _, rt := range types {
		switch rt {
		case finding.TypeVolume:
			volumes(rt)
			instances(rt)

		case finding.TypePublicIP:
			set.add("ec2/addresses", rt, func(ctx context.Context) error {
				items, err := ec2c.Addresses(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.PublicIPs = items })
				return nil
			})
			instances(rt)
			nats(rt)
			loadBalancers(rt)
			digest(rt)

		case finding.TypeSnapshot:
			set.add("ec2/snapshots", rt, func(ctx context.Context) error {
				items, err := ec2c.Snapshots(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Snapshots = items })
				return nil
			})
			set.add("ec2/images", rt, func(ctx context.Context) error {
				items, err := ec2c.Images(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Images = items })
				return nil
			})
			volumes(rt)
			digest(rt)

		case finding.TypeInstance:
			instances(rt)
			volumes(rt)

		case finding.TypeLoadBalancer:
			loadBalancers(rt)

		case finding.TypeNATGateway:
			nats(rt)
			routing(rt)
			set.add("ec2/vpc-endpoints", rt, func(ctx context.Context) error {
				items, err := ec2c.VPCEndpoints(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.VPCEndpoints = items })
				return nil
			})
			set.add("ec2/network-interfaces", rt, func(ctx context.Context) error {
				items, err := ec2c.NetworkInterfaces(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.NetworkInterfaces = items })
				return nil
			})

		case finding.TypeRelationalDB, finding.TypeDocDB, finding.TypeGraphDB:
			set.add("rds/databases", rt, func(ctx context.Context) error {
				collector := newRDSCollector(rds.NewFromConfig(cfg), region)
				items, err := collector.Databases(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Databases = items })
				return nil
			})

		case finding.TypeNoSQLTable:
			set.add("dynamodb/tables", rt, func(ctx context.Context) error {
				collector := newDynamoCollector(dynamodb.NewFromConfig(cfg), appautoscaling.NewFromConfig(cfg), region)
				items, err := collector.Tables(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Tables = items })
				return nil
			})

		case finding.TypeCacheCluster:
			set.add("elasticache/clusters", rt, func(ctx context.Context) error {
				collector := newCacheCollector(elasticache.NewFromConfig(cfg), region)
				items, err := collector.CacheClusters(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.CacheClusters = items })
				return nil
			})

		case finding.TypeWarehouse:
			set.add("redshift/clusters", rt, func(ctx context.Context) error {
				collector := newRedshiftCollector(redshift.NewFromConfig(cfg), region)
				items, err := collector.Warehouses(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Warehouses = items })
				return nil
			})

		case finding.TypeSearchDomain:
			set.add("opensearch/domains", rt, func(ctx context.Context) error {
				collector := newSearchCollector(opensearch.NewFromConfig(cfg), region)
				items, err := collector.SearchDomains(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.SearchDomains = items })
				return nil
			})

		case finding.TypeStream:
			set.add("kinesis/streams", rt, func(ctx context.Context) error {
				collector := newStreamCollector(kinesis.NewFromConfig(cfg), region)
				items, err := collector.Streams(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Streams = items })
				return nil
			})

		case finding.TypeFunction:
			set.add("lambda/functions", rt, func(ctx context.Context) error {
				collector := newFunctionCollector(lambda.NewFromConfig(cfg), region)
				items, err := collector.Functions(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Functions = items })
				return nil
			})

		case finding.TypeLogGroup:
			set.add("logs/groups", rt, func(ctx context.Context) error {
				collector := newLogGroupCollector(cloudwatchlogs.NewFromConfig(cfg), region)
				items, err := collector.LogGroups(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.LogGroups = items })
				return nil
			})

		case finding.TypeContainerRepo:
			set.add("ecr/repos", rt, func(ctx context.Context) error {
				collector := newRepoCollector(ecr.NewFromConfig(cfg), region)
				items, err := collector.Repos(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Repos = items })
				return nil
			})

		case finding.TypeContainerService:
			set.add("ecs/clusters", rt, func(ctx context.Context) error {
				collector := newContainerCollector(ecs.NewFromConfig(cfg), region)
				items, err := collector.ContainerClusters(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.ContainerClusters = items })
				return nil
			})

		case finding.TypeK8sCluster:
			set.add("eks/clusters", rt, func(ctx context.Context) error {
				collector := newK8sCollector(eks.NewFromConfig(cfg), region)
				items, err := collector.K8sClusters(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.K8sClusters = items })
				return nil
			})

		case finding.TypeWAFACL:
			set.add("wafv2/web-acls", rt, func(ctx context.Context) error {
				collector := newWAFCollector(wafv2.NewFromConfig(cfg), region)
				items, err := collector.WebACLs(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.WebACLs = items })
				return nil
			})
		}
	}
	return set.list()
}

// planGlobalUnits covers the account-wide types: buckets, hosted zones and
// health checks, IAM roles.
func (a *Adapter) planGlobalUnits(types []finding.ResourceType, state *collectState) []*unit {
	cfg := a.regionCfg(finding.RegionGlobal)
	set := newUnitSet()

	for _, rt := range types {
		switch rt {
		case finding.TypeBucket:
			set.add("s3/buckets", rt, func(ctx context.Context) error {
				factory := func(region string) s3API {
					return s3.NewFromConfig(a.regionCfg(region))
				}
				collector := newBucketCollector(factory, cfg.Region)
				items, err := collector.Buckets(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Buckets = items })
				return nil
			})

		case finding.TypeDNSZone:
			set.add("route53/zones", rt, func(ctx context.Context) error {
				collector := newDNSCollector(route53.NewFromConfig(cfg))
				zones, checks, err := collector.Zones(ctx)
				if err != nil {
					return err
				}
				state.store(func() {
					state.inv.Zones = zones
					state.inv.HealthChecks = checks
				})
				return nil
			})

		case finding.TypeIAMRole:
			set.add("iam/roles", rt, func(ctx context.Context) error {
				collector := newRoleCollector(iam.NewFromConfig(cfg))
				items, err := collector.Roles(ctx)
				if err != nil {
					return err
				}
				state.store(func() { state.inv.Roles = items })
				return nil
			})
		}
	}
	return set.list()
}

// finishInventory stitches the cross-unit relationships together once all
// units have landed.
func (a *Adapter) finishInventory(inv *inventory.Inventory, state *collectState) {
	inv.Finalize()
	inv.UnhealthyTargets = state.unhealthy

	for i := range inv.Snapshots {
		s := &inv.Snapshots[i]
		s.VolumeExists = s.VolumeID != "" && inv.VolumeByID(s.VolumeID) != nil
	}

	for i := range inv.PublicIPs {
		ip := &inv.PublicIPs[i]
		if natID, ok := state.natByAllocation[ip.ID]; ok {
			ip.NatGatewayID = natID
		}
		if state.digest == nil {
			continue
		}
		if at, ok := state.digest.allocatedAt[ip.ID]; ok {
			ip.CreatedAt = at
			// Allocated inside the window and no association event since:
			// the address has never carried traffic.
			if ip.AssociationID == "" && !state.digest.associated[ip.ID] {
				ip.NeverAssociated = true
			}
		}
	}

	if state.digest != nil && !state.digest.truncated {
		inv.LaunchedImageIDs = state.digest.launchedImages
	}
}
