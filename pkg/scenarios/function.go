package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/metricops"
)

func init() {
	Register(Scenario{
		ID:           "never_invoked",
		ResourceType: finding.TypeFunction,
		Kind:         finding.CostAbsolute,
		Doc:          "Function deployed and never called once",
		Telemetry:    []string{"AWS/Lambda Invocations"},
		Detect:       detectNeverInvoked,
	})
	Register(Scenario{
		ID:           "zero_invocations",
		ResourceType: finding.TypeFunction,
		Kind:         finding.CostAbsolute,
		Doc:          "Function that stopped being called",
		Telemetry:    []string{"AWS/Lambda Invocations"},
		Detect:       detectZeroInvocations,
	})
	Register(Scenario{
		ID:           "all_errors",
		ResourceType: finding.TypeFunction,
		Kind:         finding.CostAbsolute,
		Doc:          "Every invocation fails; the retries bill as compute",
		Telemetry:    []string{"AWS/Lambda Invocations", "AWS/Lambda Errors", "AWS/Lambda Duration"},
		Detect:       detectAllErrors,
	})
	Register(Scenario{
		ID:           "provisioned_concurrency_unused",
		ResourceType: finding.TypeFunction,
		Kind:         finding.CostSavings,
		Doc:          "Provisioned concurrency kept warm for traffic that never arrives",
		Telemetry:    []string{"AWS/Lambda ProvisionedConcurrencyUtilization"},
		Detect:       detectUnusedProvisioned,
	})
	Register(Scenario{
		ID:           "deprecated_runtime",
		ResourceType: finding.TypeFunction,
		Kind:         finding.CostAbsolute,
		Doc:          "Runtime past end of support",
		Detect:       detectDeprecatedRuntime,
	})
}

func functionDims(name string) map[string]string {
	return map[string]string{"FunctionName": name}
}

// functionGiB is the memory allocation in billing units.
func functionGiB(memoryMB int) float64 {
	return float64(memoryMB) / 1024
}

// functionIdleCost is what an uninvoked function still bills: provisioned
// concurrency if configured, otherwise nothing.
func functionIdleCost(sc *Context, pc, memoryMB int) float64 {
	if pc <= 0 {
		return 0
	}
	return sc.Pricer.FunctionProvisionedMonthly(float64(pc) * functionGiB(memoryMB))
}

// Lambda only reports Invocations when something runs, so a missing sample
// is itself evidence of silence for the never/zero scenarios.
func functionInvocations(ctx context.Context, sc *Context, name string) metricops.Sample {
	return sc.Daily(ctx, finding.TypeFunction, "AWS/Lambda", "Invocations", "Sum", functionDims(name))
}

func detectNeverInvoked(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Function
	_, _, days := sc.Lookback(finding.TypeFunction)
	var out []finding.Finding
	for _, fn := range sc.Inventory.Functions {
		age := finding.AgeDays(fn.CreatedAt, sc.Now)
		// Whole life inside the window, or we cannot claim "never".
		if fn.CreatedAt.IsZero() || age >= days || age < r.NeverInvokedMinDays {
			continue
		}
		if inv := functionInvocations(ctx, sc, fn.ID); inv.Sum() > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeFunction, fn.Meta, "never_invoked",
			fmt.Sprintf("deployed %d days ago and never invoked", age),
			functionIdleCost(sc, fn.ProvisionedConcurrency, fn.MemoryMB), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("age_days", float64(age))
		out = append(out, f)
	}
	return out
}

func detectZeroInvocations(ctx context.Context, sc *Context) []finding.Finding {
	_, _, days := sc.Lookback(finding.TypeFunction)
	var out []finding.Finding
	for _, fn := range sc.Inventory.Functions {
		// Functions younger than the window belong to never_invoked.
		if fn.CreatedAt.IsZero() || finding.AgeDays(fn.CreatedAt, sc.Now) < days {
			continue
		}
		if inv := functionInvocations(ctx, sc, fn.ID); inv.Sum() > 0 {
			continue
		}
		f := sc.newFinding(finding.TypeFunction, fn.Meta, "zero_invocations",
			fmt.Sprintf("zero invocations in %d days", days),
			functionIdleCost(sc, fn.ProvisionedConcurrency, fn.MemoryMB), finding.CostAbsolute)
		raise(&f, finding.ConfidenceHigh)
		out = append(out, f)
	}
	return out
}

func detectAllErrors(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Function
	_, _, days := sc.Lookback(finding.TypeFunction)
	var out []finding.Finding
	for _, fn := range sc.Inventory.Functions {
		dims := functionDims(fn.ID)
		invocations := functionInvocations(ctx, sc, fn.ID).Sum()
		if invocations <= 0 {
			continue
		}
		errorsSum := sc.Daily(ctx, finding.TypeFunction, "AWS/Lambda", "Errors", "Sum", dims).Sum()
		rate := errorsSum / invocations * 100
		if rate < r.ErrorRatePct {
			continue
		}
		durationMS := sc.Daily(ctx, finding.TypeFunction, "AWS/Lambda", "Duration", "Average", dims).Avg()
		perMonth := invocations / float64(days) * 30
		gbSeconds := perMonth * durationMS / 1000 * functionGiB(fn.MemoryMB)
		f := sc.newFinding(finding.TypeFunction, fn.Meta, "all_errors",
			fmt.Sprintf("%.0f%% of %.0f invocations failed; the compute buys only error logs", rate, invocations),
			sc.Pricer.FunctionComputeMonthly(gbSeconds), finding.CostAbsolute)
		// A fully broken function is urgent whatever its age.
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("error_rate_pct", rate)
		f.Metadata.SetSignal("invocations", invocations)
		out = append(out, f)
	}
	return out
}

func detectUnusedProvisioned(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Function
	_, _, days := sc.Lookback(finding.TypeFunction)
	var out []finding.Finding
	for _, fn := range sc.Inventory.Functions {
		if fn.ProvisionedConcurrency <= 0 {
			continue
		}
		util := sc.Daily(ctx, finding.TypeFunction, "AWS/Lambda",
			"ProvisionedConcurrencyUtilization", "Maximum", functionDims(fn.ID))
		peakPct := util.Max() * 100
		if !util.Missing && peakPct >= r.ProvisionedUtilPct {
			continue
		}
		monthly := sc.Pricer.FunctionProvisionedMonthly(float64(fn.ProvisionedConcurrency) * functionGiB(fn.MemoryMB))
		f := sc.newFinding(finding.TypeFunction, fn.Meta, "provisioned_concurrency_unused",
			fmt.Sprintf("%d provisioned instances peaked at %.0f%% utilization over %d days",
				fn.ProvisionedConcurrency, peakPct, days),
			monthly, finding.CostSavings)
		raise(&f, finding.ConfidenceHigh)
		f.Metadata.SetSignal("peak_utilization_pct", peakPct)
		f.Metadata.SetSignal("provisioned_concurrency", float64(fn.ProvisionedConcurrency))
		out = append(out, f)
	}
	return out
}

func detectDeprecatedRuntime(ctx context.Context, sc *Context) []finding.Finding {
	r := sc.Rules.Function
	var out []finding.Finding
	for _, fn := range sc.Inventory.Functions {
		if fn.Runtime == "" || !runtimeDeprecated(fn.Runtime, r.DeprecatedRuntimes) {
			continue
		}
		f := sc.newFinding(finding.TypeFunction, fn.Meta, "deprecated_runtime",
			fmt.Sprintf("runtime %s is past end of support and blocks new deploys", fn.Runtime),
			0, finding.CostAbsolute)
		raise(&f, finding.ConfidenceMedium)
		f.Metadata.SetDetail("runtime", fn.Runtime)
		out = append(out, f)
	}
	return out
}

func runtimeDeprecated(runtime string, deprecated []string) bool {
	for _, d := range deprecated {
		if strings.EqualFold(runtime, d) {
			return true
		}
	}
	return false
}
