package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Load reads and compiles a policy file. The extension picks the format:
// .hcl parses as HCL blocks, everything else as YAML.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var rules []Rule
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		rules, err = parseHCL(path, data)
	} else {
		rules, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// parseYAML decodes the YAML shape:
//
//	rules:
//	  - id: ignore-sandbox
//	    when: tags["env"] == "sandbox"
//	    action: suppress
func parseYAML(data []byte) ([]Rule, error) {
	var file struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}
	return file.Rules, nil
}

// parseHCL decodes the HCL shape:
//
//	rule "ignore-sandbox" {
//	  when   = "tags[\"env\"] == \"sandbox\""
//	  action = "suppress"
//	}
func parseHCL(filename string, src []byte) ([]Rule, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse policy hcl: %s", diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("parse policy hcl: unexpected body type")
	}

	var rules []Rule
	for _, block := range body.Blocks {
		if block.Type != "rule" {
			return nil, fmt.Errorf("parse policy hcl: unknown block %q at %s", block.Type, block.DefRange().String())
		}
		if len(block.Labels) != 1 {
			return nil, fmt.Errorf("parse policy hcl: rule block at %s needs exactly one label", block.DefRange().String())
		}
		r := Rule{ID: block.Labels[0]}
		for name, attr := range block.Body.Attributes {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() || val.Type() != cty.String {
				return nil, fmt.Errorf("parse policy hcl: rule %s: attribute %s must be a string", r.ID, name)
			}
			s := val.AsString()
			switch name {
			case "when":
				r.When = s
			case "action":
				r.Action = s
			case "confidence":
				r.Confidence = s
			case "key":
				r.Key = s
			case "value":
				r.Value = s
			default:
				return nil, fmt.Errorf("parse policy hcl: rule %s: unknown attribute %s", r.ID, name)
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}
