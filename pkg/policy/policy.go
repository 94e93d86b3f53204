// Package policy filters and annotates scan findings with user-supplied
// rules. Each rule is a CEL expression over one finding's fields plus an
// action taken when it matches. Application is two-phase: every rule reads
// the findings exactly as the scan produced them, then all matched actions
// land at once, so no rule ever observes another rule's edits.
package policy

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Actions a rule may take on a matched finding.
const (
	ActionSuppress = "suppress"
	ActionEscalate = "escalate"
	ActionTag      = "tag"
)

// Rule is one policy clause. When holds a CEL expression over the variables
// resource_type, resource_id, region, monthly_cost, confidence, orphan_type
// and tags; it must evaluate to a boolean.
type Rule struct {
	ID     string `yaml:"id"`
	When   string `yaml:"when"`
	Action string `yaml:"action"`

	// Confidence is the escalate target; empty means critical.
	Confidence string `yaml:"confidence,omitempty"`

	// Key and Value annotate the finding on a tag action.
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Policy is a compiled rule set. Programs compile once in New and are safe
// for concurrent Apply calls.
type Policy struct {
	rules    []Rule
	programs []cel.Program
}

// New validates and compiles the rules, preserving their order.
func New(rules []Rule) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("resource_type", decls.String),
			decls.NewVar("resource_id", decls.String),
			decls.NewVar("region", decls.String),
			decls.NewVar("monthly_cost", decls.Double),
			decls.NewVar("confidence", decls.String),
			decls.NewVar("orphan_type", decls.String),
			decls.NewVar("tags", decls.NewMapType(decls.String, decls.String)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	p := &Policy{
		rules:    rules,
		programs: make([]cel.Program, 0, len(rules)),
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := validate(r); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true

		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", r.ID, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", r.ID, err)
		}
		p.programs = append(p.programs, prg)
	}
	return p, nil
}

func validate(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule with condition %q: missing id", r.When)
	}
	if r.When == "" {
		return fmt.Errorf("rule %s: missing when condition", r.ID)
	}
	switch r.Action {
	case ActionSuppress:
	case ActionEscalate:
		if r.Confidence != "" && finding.Confidence(r.Confidence).Rank() < 0 {
			return fmt.Errorf("rule %s: unknown confidence %q", r.ID, r.Confidence)
		}
	case ActionTag:
		if r.Key == "" {
			return fmt.Errorf("rule %s: tag action needs a key", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown action %q", r.ID, r.Action)
	}
	return nil
}

// Len reports how many rules the policy carries.
func (p *Policy) Len() int { return len(p.rules) }

// Apply evaluates every rule against every finding, then applies the matched
// actions. Suppressed findings leave the result; escalations only ever raise
// confidence; tag annotations land in the finding detail map. The input
// slice is not modified.
func (p *Policy) Apply(ctx context.Context, findings []finding.Finding) ([]finding.Finding, error) {
	if len(p.programs) == 0 {
		return findings, nil
	}

	// Phase one: read. Every rule grades the pre-policy findings.
	matched := make([][]int, len(findings))
	for i := range findings {
		vars := p.vars(&findings[i])
		for j, prg := range p.programs {
			out, _, err := prg.ContextEval(ctx, vars)
			if err != nil {
				return nil, fmt.Errorf("rule %s: eval: %w", p.rules[j].ID, err)
			}
			hit, ok := out.Value().(bool)
			if !ok {
				return nil, fmt.Errorf("rule %s: expression is not a boolean", p.rules[j].ID)
			}
			if hit {
				matched[i] = append(matched[i], j)
			}
		}
	}

	// Phase two: apply.
	result := make([]finding.Finding, 0, len(findings))
	for i, f := range findings {
		suppressed := false
		for _, j := range matched[i] {
			r := p.rules[j]
			switch r.Action {
			case ActionSuppress:
				suppressed = true
			case ActionEscalate:
				target := finding.Confidence(r.Confidence)
				if r.Confidence == "" {
					target = finding.ConfidenceCritical
				}
				f.Metadata.Confidence = finding.MaxConfidence(f.Metadata.Confidence, target)
				annotate(&f, "escalated_by", r.ID)
			case ActionTag:
				annotate(&f, r.Key, r.Value)
			}
		}
		if suppressed {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

func (p *Policy) vars(f *finding.Finding) map[string]any {
	tags := f.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return map[string]any{
		"resource_type": string(f.ResourceType),
		"resource_id":   f.ResourceID,
		"region":        f.Region,
		"monthly_cost":  f.MonthlyCost,
		"confidence":    string(f.Metadata.Confidence),
		"orphan_type":   f.Metadata.OrphanType,
		"tags":          tags,
	}
}

// annotate copies the detail map before the first write so callers keep an
// untouched input slice.
func annotate(f *finding.Finding, key, value string) {
	detail := make(map[string]string, len(f.Metadata.Detail)+1)
	for k, v := range f.Metadata.Detail {
		detail[k] = v
	}
	detail[key] = value
	f.Metadata.Detail = detail
}
