package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/scenarios"
)

// globalTypes are account-wide: they are collected once per scan under the
// finding.RegionGlobal sentinel, never per region.
var globalTypes = map[finding.ResourceType]bool{
	finding.TypeBucket:  true,
	finding.TypeDNSZone: true,
	finding.TypeIAMRole: true,
}

// unit is one pool task: a region, or the global sentinel, plus the resource
// types to collect there.
type unit struct {
	region string
	types  []finding.ResourceType
}

type unitResult struct {
	region   string
	findings []finding.Finding
	skips    []Skip
	err      error
}

// Scan runs one complete scan and blocks until every region finished or the
// context died. A failed region is reported in the result, not returned as
// an error; Scan errors only when credentials are bad, region discovery
// fails, the context dies, or every single region failed.
func (e *Engine) Scan(ctx context.Context, req Request) (*Result, error) {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.scan")
	defer span.End()

	identity, err := e.adapter.ValidateCredentials(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential validation failed")
		return nil, fmt.Errorf("validate credentials: %w", err)
	}
	e.logger.Info("credentials validated",
		"provider", e.adapter.Name(), "account", identity.Account)

	regions := req.Regions
	if len(regions) == 0 {
		regions, err = e.adapter.ListRegions(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "region discovery failed")
			return nil, fmt.Errorf("list regions: %w", err)
		}
	}

	result := &Result{
		Provider:       e.adapter.Name(),
		Account:        identity.Account,
		Findings:       []finding.Finding{},
		ScannedRegions: []string{},
		CatalogVersion: e.catalog.Version(),
		StartedAt:      started,
	}

	// An account with no reachable regions scans clean; there is nothing
	// to inspect, global scope included.
	if len(regions) == 0 {
		result.Duration = e.now().Sub(started)
		return result, nil
	}

	regional, global := e.splitScope(req.Types)
	units := make([]unit, 0, len(regions)+1)
	if len(regional) > 0 {
		for _, r := range regions {
			units = append(units, unit{region: r, types: regional})
		}
	}
	if len(global) > 0 {
		units = append(units, unit{region: finding.RegionGlobal, types: global})
	}
	if len(units) == 0 {
		result.Duration = e.now().Sub(started)
		return result, nil
	}

	e.logger.Info("scan started",
		"regions", len(regions),
		"types", len(regional)+len(global),
		"catalog", scenarios.Count(),
		"concurrency", e.pool.Concurrency())

	// All times inside the scan read one clock value so a rerun against
	// unchanged inventory grades identically in every region.
	results := make([]unitResult, len(units))
	err = e.pool.Run(ctx, len(units), cloud.IsThrottle, func(ctx context.Context, i int) error {
		results[i] = e.scanUnit(ctx, units[i], identity.Account, started)
		// The error goes to the pool for throttle feedback only; it is
		// folded into the result below, never lost.
		return results[i].err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var all []finding.Finding
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			result.RegionErrors = append(result.RegionErrors,
				RegionError{Region: r.region, Error: r.err.Error()})
			continue
		}
		result.ScannedRegions = append(result.ScannedRegions, r.region)
		result.SkippedScenarios = append(result.SkippedScenarios, r.skips...)
		all = append(all, r.findings...)
	}
	if len(result.ScannedRegions) == 0 {
		span.SetStatus(codes.Error, "every region failed")
		return nil, fmt.Errorf("scan: all %d regions failed: %w", len(units), firstErr)
	}
	sort.Strings(result.ScannedRegions)

	all = finding.Deduplicate(all)
	if e.policy != nil {
		all, err = e.policy.Apply(ctx, all)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("apply policy: %w", err)
		}
	}
	result.Findings = all
	result.Duration = e.now().Sub(started)

	span.SetAttributes(
		attribute.Int("scan.findings", len(result.Findings)),
		attribute.Int("scan.regions", len(result.ScannedRegions)),
		attribute.Int("scan.region_errors", len(result.RegionErrors)),
	)
	e.logger.Info("scan finished",
		"findings", len(result.Findings),
		"regions", len(result.ScannedRegions),
		"region_errors", len(result.RegionErrors),
		"skipped_scenarios", len(result.SkippedScenarios),
		"monthly_total", finding.RoundCents(result.MonthlyTotal()),
		"duration", result.Duration)
	return result, nil
}

// splitScope expands the requested types into regional and global sets,
// dropping types the rule set disables and anything without a registered
// scenario. An empty request means the whole catalog.
func (e *Engine) splitScope(requested []finding.ResourceType) (regional, global []finding.ResourceType) {
	pool := requested
	if len(pool) == 0 {
		pool = scenarios.Types()
	}
	seen := make(map[finding.ResourceType]bool, len(pool))
	for _, rt := range pool {
		if seen[rt] || len(scenarios.ByType(rt)) == 0 || !e.rules.CommonFor(rt).Enabled {
			continue
		}
		seen[rt] = true
		if globalTypes[rt] {
			global = append(global, rt)
		} else {
			regional = append(regional, rt)
		}
	}
	return regional, global
}

// scanUnit collects one region's inventory and evaluates every enabled
// scenario against it. All partial failures stay inside the returned
// unitResult; only a total collection failure surfaces as err.
func (e *Engine) scanUnit(ctx context.Context, u unit, account string, now time.Time) unitResult {
	ctx, cancel := context.WithTimeout(ctx, e.regionTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "engine.region",
		trace.WithAttributes(attribute.String("region", u.region)))
	defer span.End()

	res := unitResult{region: u.region}

	inv, err := e.adapter.CollectInventory(ctx, u.region, u.types)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory collection failed")
		e.logger.Warn("region scan failed", "region", u.region, "error", err)
		res.err = err
		return res
	}

	// Types whose collection failed have no inventory to reason about;
	// their scenarios are skipped, not run against an empty slice.
	unavailable := make(map[finding.ResourceType]error, len(inv.Skipped))
	for _, ce := range inv.Skipped {
		unavailable[ce.ResourceType] = ce.Err
	}

	metrics := e.adapter.Metrics(u.region)
	sc := &scenarios.Context{
		Region:    u.region,
		Account:   account,
		Inventory: inv,
		Metrics:   metrics,
		Rules:     e.rules,
		Pricer:    e.catalog.Region(u.region),
		Now:       now,
		Logger:    e.logger,
	}

	for _, rt := range u.types {
		common := e.rules.CommonFor(rt)
		if cause, miss := unavailable[rt]; miss {
			for _, s := range scenarios.ByType(rt) {
				res.skips = append(res.skips, Skip{
					Region:   u.region,
					Scenario: s.ID,
					Reason:   "inventory unavailable: " + cause.Error(),
				})
			}
			continue
		}
		for _, s := range scenarios.ByType(rt) {
			if common.ScenarioDisabled(s.ID) {
				res.skips = append(res.skips, Skip{
					Region:   u.region,
					Scenario: s.ID,
					Reason:   "disabled by rules",
				})
				continue
			}
			if len(s.Telemetry) > 0 && metrics == nil {
				res.skips = append(res.skips, Skip{
					Region:   u.region,
					Scenario: s.ID,
					Reason:   "telemetry unavailable",
				})
				continue
			}
			found, err := e.runScenario(ctx, sc, s)
			if err != nil {
				res.skips = append(res.skips, Skip{
					Region:   u.region,
					Scenario: s.ID,
					Reason:   err.Error(),
				})
				continue
			}
			res.findings = append(res.findings, found...)
		}
	}

	span.SetAttributes(
		attribute.Int("region.findings", len(res.findings)),
		attribute.Int("region.skipped", len(res.skips)),
	)
	e.logger.Debug("region scanned", "region", u.region,
		"findings", len(res.findings), "skipped", len(res.skips))
	return res
}

// runScenario isolates one Detect call. A panicking scenario is a catalog
// bug; it must not take the rest of the region down with it.
func (e *Engine) runScenario(ctx context.Context, sc *scenarios.Context, s scenarios.Scenario) (out []finding.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scenario panicked",
				"scenario", s.ID,
				"region", sc.Region,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Detect(ctx, sc), nil
}
