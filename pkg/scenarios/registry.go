// Package scenarios holds the detection catalog: every waste pattern the
// engine knows, one small Detect function per pattern, registered as data.
// Scenarios read the region inventory and memoized telemetry and emit graded
// findings; they never talk to the provider.
package scenarios

import (
	"context"
	"fmt"
	"sort"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Scenario is one registered waste pattern.
type Scenario struct {
	// ID doubles as the finding's orphan_type and must be unique across
	// the whole catalog.
	ID           string
	ResourceType finding.ResourceType

	// Kind declares whether findings price the whole resource (absolute)
	// or a recoverable delta (savings).
	Kind finding.CostKind

	// Doc is the one-line description surfaced by the CLI.
	Doc string

	// Telemetry names the metrics the scenario consults, if any.
	Telemetry []string

	Detect func(ctx context.Context, sc *Context) []finding.Finding
}

var (
	registry = map[string]Scenario{}
	byType   = map[finding.ResourceType][]Scenario{}
)

// Register adds a scenario to the catalog. It panics on a duplicate or
// malformed registration: the catalog is assembled in init functions and a
// bad entry is a programming error, not a runtime condition.
func Register(s Scenario) {
	if s.ID == "" || s.ResourceType == "" || s.Detect == nil {
		panic(fmt.Sprintf("scenarios: invalid registration %+v", s))
	}
	if _, dup := registry[s.ID]; dup {
		panic(fmt.Sprintf("scenarios: duplicate scenario id %q", s.ID))
	}
	registry[s.ID] = s
	byType[s.ResourceType] = append(byType[s.ResourceType], s)
}

// ByType returns the scenarios for one resource type, ordered by ID.
func ByType(rt finding.ResourceType) []Scenario {
	out := make([]Scenario, len(byType[rt]))
	copy(out, byType[rt])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns the whole catalog ordered by resource type then ID.
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count reports the catalog size.
func Count() int { return len(registry) }

// Types returns every resource type with at least one scenario, sorted.
func Types() []finding.ResourceType {
	out := make([]finding.ResourceType, 0, len(byType))
	for rt := range byType {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
