package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/rules"
	"github.com/wastewatch/wastewatch/pkg/scenarios"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective detection thresholds",
	Long: `Prints the thresholds every scenario runs with: the defaults,
merged with the override file when one is given. The output is valid
override-file input, so it can be saved, edited and fed back in.

Example:
  wastewatch rules > thresholds.yaml
  wastewatch rules --type nat_gateway
  wastewatch rules --rules custom.yaml --type volume`,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().String("rules", "", "YAML file with threshold overrides")
	rulesCmd.Flags().String("type", "", "limit the output to one resource type")
}

func runRules(cmd *cobra.Command, args []string) error {
	set := rules.Defaults()
	if path, _ := cmd.Flags().GetString("rules"); path != "" {
		overrides, err := rules.LoadFile(path)
		if err != nil {
			return err
		}
		merged, warnings, err := rules.Merge(set, overrides)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		set = merged
	}

	doc, err := yaml.Marshal(&set)
	if err != nil {
		return fmt.Errorf("render rules: %w", err)
	}

	typeName, _ := cmd.Flags().GetString("type")
	if typeName == "" {
		fmt.Printf("# wastewatch thresholds: %d scenarios across %d resource types\n",
			scenarios.Count(), len(scenarios.Types()))
		fmt.Print(string(doc))
		return nil
	}

	if _, err := parseTypes([]string{typeName}); err != nil {
		return err
	}
	rt := finding.ResourceType(strings.TrimSpace(typeName))

	section, err := yamlSection(doc, string(rt))
	if err != nil {
		return err
	}
	fmt.Print(string(section))

	list := scenarios.ByType(rt)
	if len(list) == 0 {
		return nil
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tKIND\tDESCRIPTION")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Kind, s.Doc)
	}
	return tw.Flush()
}

// yamlSection re-renders a single top-level mapping entry of a marshaled
// document, preserving the struct's field order inside it.
func yamlSection(doc []byte, key string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("unexpected rules document shape")
	}
	m := root.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			section := &yaml.Node{
				Kind:    yaml.MappingNode,
				Content: []*yaml.Node{m.Content[i], m.Content[i+1]},
			}
			return yaml.Marshal(section)
		}
	}
	return nil, fmt.Errorf("no rules section %q", key)
}
