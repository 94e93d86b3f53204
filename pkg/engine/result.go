package engine

import (
	"time"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Request narrows one scan. Zero values mean everything: all regions the
// adapter can enumerate, every resource type with a registered scenario.
type Request struct {
	Regions []string
	Types   []finding.ResourceType
}

// RegionError records one region whose scan failed outright. Partial
// failures inside a surviving region land in SkippedScenarios instead.
type RegionError struct {
	Region string `json:"region"`
	Error  string `json:"error"`
}

// Skip records one scenario that did not run in one region, and why.
type Skip struct {
	Region   string `json:"region"`
	Scenario string `json:"scenario"`
	Reason   string `json:"reason"`
}

// Result is everything one scan produced.
type Result struct {
	Provider string `json:"provider"`
	Account  string `json:"account"`

	// Findings are deduplicated and ordered by resource type, region,
	// then resource id.
	Findings []finding.Finding `json:"findings"`

	ScannedRegions   []string      `json:"scanned_regions"`
	RegionErrors     []RegionError `json:"per_region_errors,omitempty"`
	SkippedScenarios []Skip        `json:"skipped_scenarios,omitempty"`

	// CatalogVersion names the price table snapshot behind every
	// estimate, so two results can be compared honestly.
	CatalogVersion string `json:"catalog_version"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// MonthlyTotal sums the estimated monthly cost across all findings.
func (r *Result) MonthlyTotal() float64 {
	var total float64
	for i := range r.Findings {
		total += r.Findings[i].MonthlyCost
	}
	return total
}

// WastedTotal sums the already-incurred spend across all findings.
func (r *Result) WastedTotal() float64 {
	var total float64
	for i := range r.Findings {
		total += r.Findings[i].Metadata.AlreadyWasted
	}
	return total
}
