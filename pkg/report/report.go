// Package report renders scan results for export. JSON carries the full
// document, CSV one row per finding, the table a terminal digest and HTML a
// self-contained dashboard. Every rendering orders findings by monthly cost,
// most expensive first.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Summary is the roll-up consumers read before any finding.
type Summary struct {
	TotalMonthlyCost  float64        `json:"total_monthly_cost"`
	TotalWastedToDate float64        `json:"total_wasted_to_date"`
	Findings          int            `json:"findings"`
	ByConfidence      map[string]int `json:"by_confidence"`
}

// Document is the JSON export shape.
type Document struct {
	Provider        string               `json:"provider"`
	Account         string               `json:"account"`
	CatalogVersion  string               `json:"catalog_version"`
	StartedAt       time.Time            `json:"started_at"`
	DurationSeconds float64              `json:"duration_seconds"`
	ScannedRegions  []string             `json:"scanned_regions"`
	Summary         Summary              `json:"summary"`
	Findings        []finding.Finding    `json:"findings"`
	RegionErrors    []engine.RegionError `json:"per_region_errors,omitempty"`
	Skipped         []engine.Skip        `json:"skipped_scenarios,omitempty"`
}

// Summarize totals the result's findings.
func Summarize(res *engine.Result) Summary {
	s := Summary{
		Findings:     len(res.Findings),
		ByConfidence: make(map[string]int),
	}
	for i := range res.Findings {
		s.TotalMonthlyCost += res.Findings[i].MonthlyCost
		s.TotalWastedToDate += res.Findings[i].Metadata.AlreadyWasted
		s.ByConfidence[string(res.Findings[i].Metadata.Confidence)]++
	}
	s.TotalMonthlyCost = finding.RoundCents(s.TotalMonthlyCost)
	s.TotalWastedToDate = finding.RoundCents(s.TotalWastedToDate)
	return s
}

// NewDocument copies the result into export order without touching it.
func NewDocument(res *engine.Result) Document {
	findings := make([]finding.Finding, 0, len(res.Findings))
	findings = append(findings, res.Findings...)
	sortByCost(findings)

	return Document{
		Provider:        res.Provider,
		Account:         res.Account,
		CatalogVersion:  res.CatalogVersion,
		StartedAt:       res.StartedAt,
		DurationSeconds: res.Duration.Seconds(),
		ScannedRegions:  res.ScannedRegions,
		Summary:         Summarize(res),
		Findings:        findings,
		RegionErrors:    res.RegionErrors,
		Skipped:         res.SkippedScenarios,
	}
}

func sortByCost(findings []finding.Finding) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].MonthlyCost != findings[j].MonthlyCost {
			return findings[i].MonthlyCost > findings[j].MonthlyCost
		}
		return findings[i].ResourceID < findings[j].ResourceID
	})
}

// WriteJSON renders the document with two-space indentation.
func WriteJSON(w io.Writer, res *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(res))
}

var csvHeader = []string{
	"resource_id", "resource_type", "region", "name", "orphan_type",
	"confidence", "monthly_cost", "already_wasted", "age_days",
	"scenarios", "reason",
}

// WriteCSV renders one row per finding, dollars formatted for spreadsheets.
func WriteCSV(w io.Writer, res *engine.Result) error {
	findings := make([]finding.Finding, 0, len(res.Findings))
	findings = append(findings, res.Findings...)
	sortByCost(findings)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range findings {
		f := &findings[i]
		scenarios := f.Metadata.DetectionScenarios
		if len(scenarios) == 0 {
			scenarios = []string{f.Metadata.OrphanType}
		}
		record := []string{
			f.ResourceID,
			string(f.ResourceType),
			f.Region,
			f.ResourceName,
			f.Metadata.OrphanType,
			string(f.Metadata.Confidence),
			fmt.Sprintf("$%.2f", f.MonthlyCost),
			fmt.Sprintf("$%.2f", f.Metadata.AlreadyWasted),
			strconv.Itoa(f.Metadata.AgeDays),
			strings.Join(scenarios, ";"),
			f.Metadata.Reason,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable renders the summary and the findings for a terminal or a pipe.
func WriteTable(w io.Writer, res *engine.Result) error {
	doc := NewDocument(res)
	s := doc.Summary

	fmt.Fprintf(w, "%s account %s  catalog %s\n", doc.Provider, doc.Account, doc.CatalogVersion)
	fmt.Fprintf(w, "%d findings  $%.2f/mo estimated waste  $%.2f burned to date\n",
		s.Findings, s.TotalMonthlyCost, s.TotalWastedToDate)

	var grades []string
	for _, c := range []finding.Confidence{
		finding.ConfidenceCritical, finding.ConfidenceHigh,
		finding.ConfidenceMedium, finding.ConfidenceLow,
	} {
		if n := s.ByConfidence[string(c)]; n > 0 {
			grades = append(grades, fmt.Sprintf("%s %d", c, n))
		}
	}
	if len(grades) > 0 {
		fmt.Fprintf(w, "confidence: %s\n", strings.Join(grades, ", "))
	}

	if len(doc.Findings) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RESOURCE\tTYPE\tREGION\tCONFIDENCE\tMONTHLY\tREASON")
		for i := range doc.Findings {
			f := &doc.Findings[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t$%.2f\t%s\n",
				f.ResourceID, f.ResourceType, f.Region,
				f.Metadata.Confidence, f.MonthlyCost, f.Metadata.Reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(doc.RegionErrors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "region errors:")
		for _, re := range doc.RegionErrors {
			fmt.Fprintf(w, "  %s: %s\n", re.Region, re.Error)
		}
	}
	return nil
}
