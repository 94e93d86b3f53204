package scenarios

import (
	"context"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/inventory"
)

func TestZeroConnectionDatabase(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-quiet", 60), Engine: "postgres", EngineVersion: "14.5",
				Class: "db.m5.large", Status: "available", StorageGB: 100},
			{Meta: meta("db-serverless", 60), Engine: "aurora-postgresql",
				Class: "db.serverless", Status: "available", Serverless: true},
		},
	}

	sc := testContext(t, inv, nil)
	if fs := detectZeroConnectionDatabases(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("zero_connections fired on missing telemetry: %+v", fs)
	}

	sc = testContext(t, inv, stubMetrics{"DatabaseConnections": dailySeries(30, 0)})
	f := requireOne(t, detectZeroConnectionDatabases(context.Background(), sc), "zero_connections")
	if f.ResourceID != "db-quiet" {
		t.Fatalf("flagged %s, want db-quiet; serverless pausing is its own scenario", f.ResourceID)
	}
	// db.m5.large 123.12 plus 100 GB storage 11.50.
	if f.MonthlyCost != 134.62 {
		t.Errorf("monthly = %.2f, want 134.62", f.MonthlyCost)
	}
	if f.Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("confidence = %s, want high", f.Metadata.Confidence)
	}
}

func TestStoppedDatabaseBillsStorage(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-stopped", 90), Engine: "mysql", Class: "db.m5.large",
				Status: "stopped", StorageGB: 200},
			{Meta: meta("db-live", 90), Engine: "mysql", Class: "db.m5.large",
				Status: "available", StorageGB: 200},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectStoppedDatabases(context.Background(), sc), "db_stopped_long_term")
	if f.ResourceID != "db-stopped" {
		t.Fatalf("flagged %s, want db-stopped", f.ResourceID)
	}
	// Storage only; the instance stops billing while stopped.
	if f.MonthlyCost != 23.00 {
		t.Errorf("monthly = %.2f, want 23.00 (200 GB at 0.115)", f.MonthlyCost)
	}
	if f.Metadata.Signals["storage_gb"] != 200 {
		t.Errorf("storage_gb = %.0f, want 200", f.Metadata.Signals["storage_gb"])
	}
}

func TestOversizedDatabase(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-big", 120), Engine: "postgres", EngineVersion: "14.5",
				Class: "db.m5.xlarge", Status: "available", StorageGB: 100},
		},
	}
	sc := testContext(t, inv, stubMetrics{
		"CPUUtilization":      dailySeries(30, 5),
		"DatabaseConnections": dailySeries(30, 2),
	})

	f := requireOne(t, detectOversizedDatabases(context.Background(), sc), "oversized_db_instance")
	// db.m5.xlarge 246.24 down to db.m5.large 123.12.
	if f.MonthlyCost != 123.12 {
		t.Errorf("savings = %.2f, want 123.12", f.MonthlyCost)
	}
	if f.Metadata.Detail["target_class"] != "db.m5.large" {
		t.Errorf("target_class = %q, want db.m5.large", f.Metadata.Detail["target_class"])
	}
	if f.CostKind != finding.CostSavings {
		t.Errorf("cost kind = %s, want savings", f.CostKind)
	}
}

func TestUnusedReplica(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-primary", 200), Engine: "postgres", EngineVersion: "14.5",
				Class: "db.m5.large", Status: "available", StorageGB: 50},
			{Meta: meta("db-replica", 200), Engine: "postgres", EngineVersion: "14.5",
				Class: "db.m5.large", Status: "available", StorageGB: 50, ReadReplica: true},
		},
	}
	// Zero connections everywhere, but only the replica is the replica's fault.
	sc := testContext(t, inv, stubMetrics{"DatabaseConnections": dailySeries(30, 0)})

	f := requireOne(t, detectUnusedReplicas(context.Background(), sc), "unused_replica")
	if f.ResourceID != "db-replica" {
		t.Fatalf("flagged %s, want db-replica", f.ResourceID)
	}
	if f.MonthlyCost != 128.87 {
		t.Errorf("monthly = %.2f, want 128.87", f.MonthlyCost)
	}
}

func TestServerlessNeverPauses(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-aurora", 90), Engine: "aurora-postgresql", Class: "db.serverless",
				Status: "available", Serverless: true, ClusterID: "aurora-prod"},
		},
	}

	// A floor that touches zero means it pauses; nothing to recover.
	sc := testContext(t, inv, stubMetrics{"ServerlessDatabaseCapacity": dailySeries(30, 0)})
	if fs := detectNeverPausingServerless(context.Background(), sc); len(fs) != 0 {
		t.Fatalf("serverless_never_pauses fired on a pausing cluster: %+v", fs)
	}

	sc = testContext(t, inv, stubMetrics{"ServerlessDatabaseCapacity": dailySeries(30, 2)})
	f := requireOne(t, detectNeverPausingServerless(context.Background(), sc), "serverless_never_pauses")
	// 2 ACU floor around the clock.
	if f.MonthlyCost != 172.80 {
		t.Errorf("savings = %.2f, want 172.80", f.MonthlyCost)
	}
	if f.Metadata.Signals["min_capacity_acu"] != 2 {
		t.Errorf("min_capacity_acu = %.1f, want 2", f.Metadata.Signals["min_capacity_acu"])
	}
}

func TestOutdatedEngine(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("db-eol", 300), Engine: "postgres", EngineVersion: "11.22",
				Class: "db.m5.large", Status: "available", StorageGB: 100},
			{Meta: meta("db-current", 300), Engine: "postgres", EngineVersion: "14.5",
				Class: "db.m5.large", Status: "available", StorageGB: 100},
		},
	}
	sc := testContext(t, inv, nil)

	f := requireOne(t, detectOutdatedEngines(context.Background(), sc), "outdated_db_engine")
	if f.ResourceID != "db-eol" {
		t.Fatalf("flagged %s, want db-eol", f.ResourceID)
	}
	// 2 vCPUs at the 0.10/vCPU-hour surcharge.
	if f.MonthlyCost != 144.00 {
		t.Errorf("surcharge = %.2f, want 144.00", f.MonthlyCost)
	}
	if f.Metadata.Detail["engine_version"] != "postgres 11.22" {
		t.Errorf("engine_version = %q", f.Metadata.Detail["engine_version"])
	}
}

func TestIdleDatabasesSplitByFamily(t *testing.T) {
	inv := &inventory.Inventory{
		Databases: []inventory.Database{
			{Meta: meta("docdb-1", 60), Engine: "docdb", Class: "db.r5.large",
				Status: "available", StorageGB: 100},
			{Meta: meta("neptune-1", 60), Engine: "neptune", Class: "db.r5.large",
				Status: "available", StorageGB: 100},
		},
	}
	sc := testContext(t, inv, stubMetrics{"DatabaseConnections": dailySeries(30, 0)})

	f := requireOne(t, detectIdleDocDBs(context.Background(), sc), "docdb_idle")
	if f.ResourceID != "docdb-1" || f.ResourceType != finding.TypeDocDB {
		t.Errorf("docdb_idle flagged %s as %s", f.ResourceID, f.ResourceType)
	}
	f = requireOne(t, detectIdleGraphDBs(context.Background(), sc), "graphdb_idle")
	if f.ResourceID != "neptune-1" || f.ResourceType != finding.TypeGraphDB {
		t.Errorf("graphdb_idle flagged %s as %s", f.ResourceID, f.ResourceType)
	}
}
