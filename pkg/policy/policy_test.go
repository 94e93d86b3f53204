package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func testFinding(id string, cost float64, conf finding.Confidence, tags map[string]string) finding.Finding {
	return finding.Finding{
		ResourceType: finding.TypeVolume,
		ResourceID:   id,
		Region:       "us-east-1",
		MonthlyCost:  cost,
		Tags:         tags,
		Metadata: finding.Evidence{
			OrphanType: "unattached",
			Reason:     "volume is not attached to any instance",
			Confidence: conf,
		},
	}
}

func TestPolicySuppress(t *testing.T) {
	p, err := New([]Rule{{
		ID:     "ignore-sandbox",
		When:   `tags["env"] == "sandbox"`,
		Action: ActionSuppress,
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := []finding.Finding{
		testFinding("vol-1", 40, finding.ConfidenceHigh, map[string]string{"env": "sandbox"}),
		testFinding("vol-2", 40, finding.ConfidenceHigh, map[string]string{"env": "prod"}),
		testFinding("vol-3", 40, finding.ConfidenceHigh, nil),
	}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(out) != 2 || out[0].ResourceID != "vol-2" || out[1].ResourceID != "vol-3" {
		t.Errorf("Apply() kept %+v, want vol-2 and vol-3 in order", out)
	}
}

func TestPolicyEscalate(t *testing.T) {
	p, err := New([]Rule{
		{ID: "raise-expensive", When: "monthly_cost > 100.0", Action: ActionEscalate},
		{ID: "nudge-cheap", When: "monthly_cost < 10.0", Action: ActionEscalate, Confidence: "low"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := []finding.Finding{
		testFinding("vol-big", 150, finding.ConfidenceMedium, nil),
		testFinding("vol-small", 5, finding.ConfidenceHigh, nil),
	}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if out[0].Metadata.Confidence != finding.ConfidenceCritical {
		t.Errorf("vol-big confidence = %q, want critical (default escalate target)", out[0].Metadata.Confidence)
	}
	if out[0].Metadata.Detail["escalated_by"] != "raise-expensive" {
		t.Errorf("vol-big escalated_by = %q, want raise-expensive", out[0].Metadata.Detail["escalated_by"])
	}
	// Escalation only raises; a low target cannot demote a high finding.
	if out[1].Metadata.Confidence != finding.ConfidenceHigh {
		t.Errorf("vol-small confidence = %q, want high preserved", out[1].Metadata.Confidence)
	}
}

func TestPolicyTag(t *testing.T) {
	p, err := New([]Rule{{
		ID:     "flag-prod",
		When:   `tags["env"] == "prod"`,
		Action: ActionTag,
		Key:    "review",
		Value:  "weekly",
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := []finding.Finding{
		testFinding("vol-1", 40, finding.ConfidenceHigh, map[string]string{"env": "prod"}),
	}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out[0].Metadata.Detail["review"] != "weekly" {
		t.Errorf("detail review = %q, want weekly", out[0].Metadata.Detail["review"])
	}
	// The caller's slice stays untouched.
	if in[0].Metadata.Detail != nil {
		t.Errorf("input finding was annotated in place: %+v", in[0].Metadata.Detail)
	}
}

// Every rule reads findings as the scan produced them. A rule keyed on
// confidence must not see another rule's escalation.
func TestPolicyReadsPreApplyState(t *testing.T) {
	p, err := New([]Rule{
		{ID: "raise-expensive", When: "monthly_cost > 100.0", Action: ActionEscalate},
		{ID: "queue-high", When: `confidence == "high"`, Action: ActionTag, Key: "queue", Value: "triage"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	in := []finding.Finding{testFinding("vol-1", 150, finding.ConfidenceHigh, nil)}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	f := out[0]
	if f.Metadata.Confidence != finding.ConfidenceCritical {
		t.Errorf("confidence = %q, want critical", f.Metadata.Confidence)
	}
	if f.Metadata.Detail["queue"] != "triage" {
		t.Errorf("queue tag missing: the rule should have matched the pre-escalation grade, detail = %+v", f.Metadata.Detail)
	}
}

func TestPolicyCompileError(t *testing.T) {
	_, err := New([]Rule{{ID: "broken", When: "monthly_cost >>> 10", Action: ActionSuppress}})
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("New() error = %v, want a compile failure naming the rule", err)
	}
}

func TestPolicyValidation(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		want string
	}{
		{"missing id", Rule{When: "true", Action: ActionSuppress}, "missing id"},
		{"missing when", Rule{ID: "r", Action: ActionSuppress}, "missing when"},
		{"unknown action", Rule{ID: "r", When: "true", Action: "delete"}, "unknown action"},
		{"tag without key", Rule{ID: "r", When: "true", Action: ActionTag}, "needs a key"},
		{"bad confidence", Rule{ID: "r", When: "true", Action: ActionEscalate, Confidence: "urgent"}, "unknown confidence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New([]Rule{tc.rule})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("New() error = %v, want %q", err, tc.want)
			}
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := New([]Rule{
			{ID: "r", When: "true", Action: ActionSuppress},
			{ID: "r", When: "false", Action: ActionSuppress},
		})
		if err == nil || !strings.Contains(err.Error(), "duplicate id") {
			t.Errorf("New() error = %v, want duplicate id", err)
		}
	})
}

func TestPolicyNonBooleanExpression(t *testing.T) {
	p, err := New([]Rule{{ID: "numeric", When: "monthly_cost", Action: ActionSuppress}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Apply(context.Background(), []finding.Finding{testFinding("vol-1", 40, finding.ConfidenceHigh, nil)})
	if err == nil || !strings.Contains(err.Error(), "not a boolean") {
		t.Fatalf("Apply() error = %v, want a non-boolean failure", err)
	}
}

func TestPolicyEmptyPassthrough(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	in := []finding.Finding{testFinding("vol-1", 40, finding.ConfidenceHigh, nil)}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(out) != 1 {
		t.Errorf("Apply() = %+v, want the input unchanged", out)
	}
}

func writePolicy(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writePolicy(t, "policy.yaml", `
rules:
  - id: ignore-sandbox
    when: tags["env"] == "sandbox"
    action: suppress
  - id: raise-expensive
    when: monthly_cost > 100.0
    action: escalate
    confidence: critical
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}

	in := []finding.Finding{
		testFinding("vol-1", 150, finding.ConfidenceMedium, map[string]string{"env": "sandbox"}),
		testFinding("vol-2", 150, finding.ConfidenceMedium, map[string]string{"env": "prod"}),
	}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(out) != 1 || out[0].ResourceID != "vol-2" {
		t.Fatalf("Apply() = %+v, want vol-2 alone", out)
	}
	if out[0].Metadata.Confidence != finding.ConfidenceCritical {
		t.Errorf("vol-2 confidence = %q, want critical", out[0].Metadata.Confidence)
	}
}

func TestLoadHCL(t *testing.T) {
	path := writePolicy(t, "policy.hcl", `
rule "ignore-sandbox" {
  when   = "tags[\"env\"] == \"sandbox\""
  action = "suppress"
}

rule "flag-prod" {
  when   = "tags[\"env\"] == \"prod\""
  action = "tag"
  key    = "review"
  value  = "weekly"
}
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	in := []finding.Finding{
		testFinding("vol-1", 40, finding.ConfidenceHigh, map[string]string{"env": "sandbox"}),
		testFinding("vol-2", 40, finding.ConfidenceHigh, map[string]string{"env": "prod"}),
	}
	out, err := p.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(out) != 1 || out[0].ResourceID != "vol-2" {
		t.Fatalf("Apply() = %+v, want vol-2 alone", out)
	}
	if out[0].Metadata.Detail["review"] != "weekly" {
		t.Errorf("review detail = %q, want weekly", out[0].Metadata.Detail["review"])
	}
}

func TestLoadHCLRejectsUnknownAttribute(t *testing.T) {
	path := writePolicy(t, "policy.hcl", `
rule "odd" {
  when     = "true"
  action   = "suppress"
  severity = "high"
}
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown attribute") {
		t.Fatalf("Load() error = %v, want unknown attribute", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded on a missing file")
	}
}
