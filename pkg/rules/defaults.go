package rules

// standardLadder is the age grading most resource types use.
func standardLadder() Common {
	return Common{
		Enabled:      true,
		LookbackDays: 30,
		MediumDays:   7,
		HighDays:     30,
		CriticalDays: 90,
	}
}

// Defaults is the authoritative tuning table. Every threshold a scenario
// consults is set here and nowhere else; overrides layer on top via Merge.
func Defaults() Set {
	return Set{
		Volume: VolumeRules{
			Common:                 standardLadder(),
			AttachedStoppedMinDays: 30,
			LegacyMinSizeGiB:       100,
			IOPSHeadroomFactor:     10.0,
			ThroughputHeadroom:     10.0,
			IOPSUtilizationPct:     10.0,
			ThroughputUtilization:  10.0,
			DowngradeSafetyFactor:  1.5,
			ComplianceTagKeys:      []string{"compliance", "retention", "legal-hold"},
		},
		PublicIP: PublicIPRules{
			// An idle address bills from hour one, so suspicion ramps fast.
			Common: Common{
				Enabled:      true,
				LookbackDays: 30,
				MediumDays:   3,
				HighDays:     7,
				CriticalDays: 90,
			},
			HAExemptTagKeys: []string{"ha", "failover", "keep"},
		},
		Snapshot: SnapshotRules{
			// Snapshots are cheap and often deliberate backups; age alone
			// climbs the ladder far slower than for billed-by-hour gear.
			Common: Common{
				Enabled:      true,
				LookbackDays: 30,
				MediumDays:   90,
				HighDays:     365,
				CriticalDays: 730,
			},
			MaxPerVolume:         5,
			OldMaxAgeDays:        365,
			UntaggedMinDays:      90,
			StuckPendingDays:     7,
			DuplicateWindowHours: 24,
			NonProdRetentionDays: 90,
			NonProdTagValues:     []string{"dev", "test", "staging", "qa", "sandbox"},
			ComplianceTagKeys:    []string{"compliance", "retention", "legal-hold"},
		},
		Instance: InstanceRules{
			Common:                standardLadder(),
			StoppedMinDays:        30,
			MinIdleDays:           7,
			LowCPUPct:             30.0,
			IdleCPUPct:            5.0,
			PreviousGenFamilies:   []string{"t1", "t2", "m1", "m2", "m3", "m4", "c1", "c3", "c4", "r3", "r4", "i2", "d2"},
			BurstableCreditFloor:  95.0,
			NonProdTagValues:      []string{"dev", "test", "staging", "qa", "sandbox"},
			RightsizePeakPct:      40.0,
			RightsizeAvgPct:       20.0,
			BusinessHoursSharePct: 90.0,
			SpotStdDevPct:         5.0,
		},
		LoadBalancer: LoadBalancerRules{
			Common:                standardLadder(),
			BusinessHoursSharePct: 90.0,
		},
		NATGateway: NATGatewayRules{
			Common:                standardLadder(),
			LowTrafficGBMonth:     1.0,
			BusinessHoursSharePct: 90.0,
			TrafficDropPct:        90.0,
			NonProdTagValues:      []string{"dev", "test", "staging", "qa", "sandbox"},
		},
		RelationalDB: DatabaseRules{
			Common:            standardLadder(),
			StoppedMinDays:    7,
			OversizeCPUPct:    20.0,
			OversizeMaxConn:   5,
			EOLEngineVersions: []string{"mysql:5.6", "mysql:5.7", "postgres:9", "postgres:10", "postgres:11"},
		},
		DocDB: DatabaseRules{
			Common:          standardLadder(),
			StoppedMinDays:  7,
			OversizeCPUPct:  20.0,
			OversizeMaxConn: 5,
		},
		GraphDB: DatabaseRules{
			Common:          standardLadder(),
			StoppedMinDays:  7,
			OversizeCPUPct:  20.0,
			OversizeMaxConn: 5,
		},
		NoSQLTable: TableRules{
			Common:                 standardLadder(),
			CapacityHeadroomFactor: 5.0,
			EmptyMinAgeDays:        30,
			SkewFactor:             3.0,
		},
		CacheCluster: CacheRules{
			Common:            standardLadder(),
			OversizeCPUPct:    10.0,
			OversizeMemoryPct: 20.0,
			EOLEngineVersions: []string{"redis:2", "redis:3", "redis:4", "memcached:1.4"},
		},
		Warehouse: WarehouseRules{
			Common:             standardLadder(),
			UnderutilCPUPct:    15.0,
			NearEmptyDiskPct:   1.0,
			OldGenNodePrefixes: []string{"dc1", "ds2"},
		},
		SearchDomain: SearchRules{
			Common:            standardLadder(),
			OversizeCPUPct:    15.0,
			EOLEngineVersions: []string{"Elasticsearch_5", "Elasticsearch_6"},
		},
		Stream: StreamRules{
			Common:                 standardLadder(),
			RetentionBaselineHours: 24,
			ShardUtilizationPct:    10.0,
			SkewFactor:             3.0,
		},
		Bucket: BucketRules{
			Common:              standardLadder(),
			StaleObjectDays:     365,
			EmptyMinAgeDays:     90,
			MultipartMinAgeDays: 7,
		},
		Function: FunctionRules{
			Common: Common{
				Enabled:      true,
				LookbackDays: 90,
				MediumDays:   7,
				HighDays:     30,
				CriticalDays: 90,
			},
			NeverInvokedMinDays: 30,
			ErrorRatePct:        100.0,
			ProvisionedUtilPct:  10.0,
			DeprecatedRuntimes:  []string{"python2.7", "python3.6", "python3.7", "nodejs10.x", "nodejs12.x", "nodejs14.x", "dotnetcore2.1", "go1.x", "ruby2.5"},
		},
		LogGroup: LogGroupRules{
			Common: Common{
				Enabled:      true,
				LookbackDays: 60,
				MediumDays:   30,
				HighDays:     90,
				CriticalDays: 365,
			},
			MinStoredGB: 1.0,
		},
		ContainerRepo: RepoRules{
			Common:    standardLadder(),
			StaleDays: 180,
		},
		ContainerService: ContainerRules{
			Common:          standardLadder(),
			ZeroTaskMinDays: 30,
		},
		K8sCluster: K8sRules{
			Common:           standardLadder(),
			EmptyClusterDays: 14,
		},
		DNSZone: DNSZoneRules{
			Common: standardLadder(),
		},
		WAFACL: WAFRules{
			Common: standardLadder(),
		},
		IAMRole: IAMRoleRules{
			Common:           standardLadder(),
			UnusedDays:       180,
			NeverUsedMinDays: 90,
		},

		Traffic: TrafficBands{
			DeadBytes:    1e6, // under 1 MB over the lookback: dead
			TrickleBytes: 1e9, // 1 MB to 1 GB: trickle; above: active
		},
	}
}
