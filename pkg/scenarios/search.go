package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/pricing"
)

func init() {
	Register(Scenario{
		ID:           "search_idle",
		ResourceType: finding.TypeSearchDomain,
		Kind:         finding.CostAbsolute,
		Doc:          "Search domain that indexed and served nothing across the lookback",
		Telemetry:    []string{"AWS/ES SearchRate", "AWS/ES IndexingRate"},
		Detect:       detectIdleSearchDomains,
	})
	Register(Scenario{
		ID:           "search_overprovisioned",
		ResourceType: finding.TypeSearchDomain,
		Kind:         finding.CostSavings,
		Doc:          "Search nodes far above what query load needs",
		Telemetry:    []string{"AWS/ES CPUUtilization"},
		Detect:       detectOverprovisionedSearch,
	})
	Register(Scenario{
		ID:           "search_outdated_engine",
		ResourceType: finding.TypeSearchDomain,
		Kind:         finding.CostAbsolute,
		Doc:          "Search engine version past end of life",
		Detect:       detectOutdatedSearchEngines,
	})
	Register(Scenario{
		ID:           "search_empty_domain",
		ResourceType: finding.TypeSearchDomain,
		Kind:         finding.CostAbsolute,
		Doc:          "Search domain holding zero documents",
		Telemetry:    []string{"AWS/ES SearchableDocuments"},
		Detect:       detectEmptySearchDomains,
	})
}

// searchDims builds the domain dimensions. The search namespace keys every
// metric on the owning account as well as the domain name.
func (sc *Context) searchDims(domain string) map[string]string {
	return map[string]string{"DomainName": domain, "ClientId": sc.Account}
}

func detectIdleSearchDomains(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeSearchDomain)
	var out []finding.Finding
	for _, d := range sc.Inventory.SearchDomains {
		dims := sc.searchDims(d.ID)
		searches := sc.Daily(ctx, finding.TypeSearchDomain, "AWS/ES", "SearchRate", "Sum", dims)
		indexing := sc.Daily(ctx, finding.TypeSearchDomain, "AWS/ES", "IndexingRate", "Sum", dims)
		if !fullWindow(days, searches, indexing) || searches.Sum()+indexing.Sum() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.SearchMonthly(d.InstanceType, d.InstanceCount)
		f := sc.newFinding(finding.TypeSearchDomain, d.Meta, "search_idle",
			fmt.Sprintf("indexed and served nothing for %d days across %d nodes", days, d.InstanceCount),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("nodes", float64(d.InstanceCount))
		out = append(out, f)
	}
	return out
}

func detectOverprovisionedSearch(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.SearchDomain
	_, _, days := sc.Lookback(finding.TypeSearchDomain)
	var out []finding.Finding
	for _, d := range sc.Inventory.SearchDomains {
		cpu := sc.Daily(ctx, finding.TypeSearchDomain, "AWS/ES", "CPUUtilization", "Average", sc.searchDims(d.ID))
		if !fullWindow(days, cpu) || cpu.Avg() >= r.OversizeCPUPct {
			continue
		}
		target, ok := pricing.SmallerSearchNode(d.InstanceType)
		if !ok {
			continue
		}
		cur, curExact := sc.Pricer.SearchMonthly(d.InstanceType, d.InstanceCount)
		tgt, tgtExact := sc.Pricer.SearchMonthly(target, d.InstanceCount)
		if !curExact || !tgtExact || cur <= tgt {
			continue
		}
		f := sc.newFinding(finding.TypeSearchDomain, d.Meta, "search_overprovisioned",
			fmt.Sprintf("%s averaged %.1f%% CPU over %d days; %s would serve", d.InstanceType, cpu.Avg(), days, target),
			cur-tgt, finding.CostSavings)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("target_instance_type", target)
		f.Metadata.SetSignal("avg_cpu_pct", cpu.Avg())
		out = append(out, f)
	}
	return out
}

func detectOutdatedSearchEngines(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.SearchDomain
	var out []finding.Finding
	for _, d := range sc.Inventory.SearchDomains {
		eol := false
		for _, prefix := range r.EOLEngineVersions {
			if strings.HasPrefix(d.EngineVersion, prefix) {
				eol = true
				break
			}
		}
		if !eol {
			continue
		}
		f := sc.newFinding(finding.TypeSearchDomain, d.Meta, "search_outdated_engine",
			fmt.Sprintf("%s is past end of life; no security fixes land on it", d.EngineVersion),
			0, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetDetail("engine_version", d.EngineVersion)
		out = append(out, f)
	}
	return out
}

func detectEmptySearchDomains(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeSearchDomain)
	var out []finding.Finding
	for _, d := range sc.Inventory.SearchDomains {
		docs := sc.Daily(ctx, finding.TypeSearchDomain, "AWS/ES", "SearchableDocuments", "Maximum", sc.searchDims(d.ID))
		if !fullWindow(days, docs) || docs.Max() > 0 {
			continue
		}
		monthly, _ := sc.Pricer.SearchMonthly(d.InstanceType, d.InstanceCount)
		f := sc.newFinding(finding.TypeSearchDomain, d.Meta, "search_empty_domain",
			fmt.Sprintf("holds zero searchable documents across %d days", days),
			monthly, finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("nodes", float64(d.InstanceCount))
		out = append(out, f)
	}
	return out
}
