package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
	"github.com/wastewatch/wastewatch/pkg/metricops"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

func init() {
	Register(Scenario{
		ID:           "db_stopped_long_term",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Stopped database whose storage keeps billing",
		Detect:       detectStoppedDatabases,
	})
	Register(Scenario{
		ID:           "zero_connections",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Database nobody connected to across the whole lookback",
		Telemetry:    []string{"AWS/RDS DatabaseConnections"},
		Detect:       detectZeroConnectionDatabases,
	})
	Register(Scenario{
		ID:           "oversized_db_instance",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostSavings,
		Doc:          "Database class far above what its load needs",
		Telemetry:    []string{"AWS/RDS CPUUtilization", "AWS/RDS DatabaseConnections"},
		Detect:       detectOversizedDatabases,
	})
	Register(Scenario{
		ID:           "unused_replica",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Read replica no client ever reads from",
		Telemetry:    []string{"AWS/RDS DatabaseConnections"},
		Detect:       detectUnusedReplicas,
	})
	Register(Scenario{
		ID:           "serverless_never_pauses",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostSavings,
		Doc:          "Serverless database whose capacity floor never reaches zero",
		Telemetry:    []string{"AWS/RDS ServerlessDatabaseCapacity"},
		Detect:       detectNeverPausingServerless,
	})
	Register(Scenario{
		ID:           "outdated_db_engine",
		ResourceType: finding.TypeRelationalDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Engine version past end of life, accruing the extended-support surcharge",
		Detect:       detectOutdatedEngines,
	})
	Register(Scenario{
		ID:           "docdb_idle",
		ResourceType: finding.TypeDocDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Document database nobody connected to across the whole lookback",
		Telemetry:    []string{"AWS/DocDB DatabaseConnections"},
		Detect:       detectIdleDocDBs,
	})
	Register(Scenario{
		ID:           "docdb_stopped",
		ResourceType: finding.TypeDocDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Stopped document database whose storage keeps billing",
		Detect:       detectStoppedDocDBs,
	})
	Register(Scenario{
		ID:           "graphdb_idle",
		ResourceType: finding.TypeGraphDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Graph database nobody connected to across the whole lookback",
		Telemetry:    []string{"AWS/Neptune DatabaseConnections"},
		Detect:       detectIdleGraphDBs,
	})
	Register(Scenario{
		ID:           "graphdb_stopped",
		ResourceType: finding.TypeGraphDB,
		Kind:         finding.CostAbsolute,
		Doc:          "Stopped graph database whose storage keeps billing",
		Detect:       detectStoppedGraphDBs,
	})
}

// dbFamily sorts one enumerated database into the resource type its
// scenarios run under.
func dbFamily(engine string) finding.ResourceType {
	switch {
	case engine == "docdb":
		return finding.TypeDocDB
	case engine == "neptune":
		return finding.TypeGraphDB
	default:
		return finding.TypeRelationalDB
	}
}

func dbNamespace(rt finding.ResourceType) string {
	switch rt {
	case finding.TypeDocDB:
		return "AWS/DocDB"
	case finding.TypeGraphDB:
		return "AWS/Neptune"
	default:
		return "AWS/RDS"
	}
}

func dbConnections(ctx context.Context, sc *Context, rt finding.ResourceType, id string) metricops.Sample {
	return sc.Daily(ctx, rt, dbNamespace(rt), "DatabaseConnections", "Maximum",
		map[string]string{"DBInstanceIdentifier": id})
}

// dbMonthly prices a database instance plus its allocated storage.
func dbMonthly(sc *Context, db inventory.Database) float64 {
	instance, _ := sc.Pricer.DBInstanceMonthly(db.Class, db.MultiAZ)
	return instance + sc.Pricer.DBStorageMonthly(db.StorageGB)
}

// eolMatch tests an engine and version against "engine:versionprefix"
// entries ("postgres:11" matches any 11.x).
func eolMatch(engine, version string, eol []string) bool {
	for _, entry := range eol {
		e, prefix, found := strings.Cut(entry, ":")
		if !found || !strings.EqualFold(e, engine) {
			continue
		}
		if strings.HasPrefix(version, prefix) {
			return true
		}
	}
	return false
}

func detectStoppedDatabases(ctx context.Context, sc *Context) []finding.Finding {
	return stoppedDatabases(sc, finding.TypeRelationalDB, "db_stopped_long_term")
}

func detectStoppedDocDBs(ctx context.Context, sc *Context) []finding.Finding {
	return stoppedDatabases(sc, finding.TypeDocDB, "docdb_stopped")
}

func detectStoppedGraphDBs(ctx context.Context, sc *Context) []finding.Finding {
	return stoppedDatabases(sc, finding.TypeGraphDB, "graphdb_stopped")
}

func stoppedDatabases(sc *Context, rt finding.ResourceType, orphanType string) []finding.Finding {
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != rt || db.Status != "stopped" {
			continue
		}
		storage := sc.Pricer.DBStorageMonthly(db.StorageGB)
		f := sc.newFinding(rt, db.Meta, orphanType,
			fmt.Sprintf("stopped %s database; %d GB of storage bills regardless, and the provider restarts it after a week", db.Engine, db.StorageGB),
			storage, finding.CostAbsolute)
		f.Metadata.SetDetail("engine", db.Engine)
		f.Metadata.SetSignal("storage_gb", float64(db.StorageGB))
		out = append(out, f)
	}
	return out
}

func detectZeroConnectionDatabases(ctx context.Context, sc *Context) []finding.Finding {
	return idleDatabases(ctx, sc, finding.TypeRelationalDB, "zero_connections")
}

func detectIdleDocDBs(ctx context.Context, sc *Context) []finding.Finding {
	return idleDatabases(ctx, sc, finding.TypeDocDB, "docdb_idle")
}

func detectIdleGraphDBs(ctx context.Context, sc *Context) []finding.Finding {
	return idleDatabases(ctx, sc, finding.TypeGraphDB, "graphdb_idle")
}

func idleDatabases(ctx context.Context, sc *Context, rt finding.ResourceType, orphanType string) []finding.Finding {
	_, _, days := sc.Lookback(rt)
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != rt || db.Status != "available" || db.Serverless {
			continue
		}
		conns := dbConnections(ctx, sc, rt, db.ID)
		if !fullWindow(days, conns) || conns.Max() > 0 {
			continue
		}
		f := sc.newFinding(rt, db.Meta, orphanType,
			fmt.Sprintf("%s database held zero connections for %d days", db.Engine, days),
			dbMonthly(sc, db), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine", db.Engine)
		f.Metadata.SetSignal("lookback_days", float64(days))
		out = append(out, f)
	}
	return out
}

func detectOversizedDatabases(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.RelationalDB
	_, _, days := sc.Lookback(finding.TypeRelationalDB)
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != finding.TypeRelationalDB || db.Status != "available" || db.Serverless {
			continue
		}
		cpu := sc.Daily(ctx, finding.TypeRelationalDB, "AWS/RDS", "CPUUtilization", "Average",
			map[string]string{"DBInstanceIdentifier": db.ID})
		conns := dbConnections(ctx, sc, finding.TypeRelationalDB, db.ID)
		if !fullWindow(days, cpu, conns) {
			continue
		}
		if cpu.Avg() >= r.OversizeCPUPct || conns.Max() >= r.OversizeMaxConn {
			continue
		}
		target, ok := pricing.SmallerDBClass(db.Class)
		if !ok {
			continue
		}
		cur, curExact := sc.Pricer.DBInstanceMonthly(db.Class, db.MultiAZ)
		tgt, tgtExact := sc.Pricer.DBInstanceMonthly(target, db.MultiAZ)
		if !curExact || !tgtExact || cur <= tgt {
			continue
		}
		f := sc.newFinding(finding.TypeRelationalDB, db.Meta, "oversized_db_instance",
			fmt.Sprintf("%s averaged %.1f%% CPU with at most %.0f connections over %d days; %s would serve", db.Class, cpu.Avg(), conns.Max(), days, target),
			cur-tgt, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_class", target)
		f.Metadata.SetSignal("avg_cpu_pct", cpu.Avg())
		f.Metadata.SetSignal("peak_connections", conns.Max())
		out = append(out, f)
	}
	return out
}

func detectUnusedReplicas(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeRelationalDB)
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != finding.TypeRelationalDB || !db.ReadReplica || db.Status != "available" {
			continue
		}
		conns := dbConnections(ctx, sc, finding.TypeRelationalDB, db.ID)
		if !fullWindow(days, conns) || conns.Max() > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeRelationalDB, db.Meta, "unused_replica",
			fmt.Sprintf("read replica held zero connections for %d days; the primary carries everything", days),
			dbMonthly(sc, db), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine", db.Engine)
		out = append(out, f)
	}
	return out
}

func detectNeverPausingServerless(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeRelationalDB)
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != finding.TypeRelationalDB || !db.Serverless || db.Status != "available" {
			continue
		}
		clusterID := db.ClusterID
		if clusterID == "" {
			clusterID = db.ID
		}
		capacity := sc.Daily(ctx, finding.TypeRelationalDB, "AWS/RDS", "ServerlessDatabaseCapacity", "Minimum",
			map[string]string{"DBClusterIdentifier": clusterID})
		if !fullWindow(days, capacity) || capacity.Min() <= 0 {
			continue
		}
		// The capacity floor runs around the clock; pausing recovers it.
		savings := sc.Pricer.AuroraServerlessMonthly(capacity.Min())
		f := sc.newFinding(finding.TypeRelationalDB, db.Meta, "serverless_never_pauses",
			fmt.Sprintf("serverless capacity never dropped below %.1f ACUs in %d days; it never pauses", capacity.Min(), days),
			savings, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetSignal("min_capacity_acu", capacity.Min())
		out = append(out, f)
	}
	return out
}

func detectOutdatedEngines(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.RelationalDB
	var out []finding.Finding
	for _, db := range sc.Inventory.Databases {
		if dbFamily(db.Engine) != finding.TypeRelationalDB {
			continue
		}
		if !eolMatch(db.Engine, db.EngineVersion, r.EOLEngineVersions) {
			continue
		}
		surcharge := sc.Pricer.ExtendedSupportMonthly(db.Class)
		f := sc.newFinding(finding.TypeRelationalDB, db.Meta, "outdated_db_engine",
			fmt.Sprintf("%s %s is past end of life and accrues the extended-support surcharge", db.Engine, db.EngineVersion),
			surcharge, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine_version", db.Engine+" "+db.EngineVersion)
		out = append(out, f)
	}
	return out
}
