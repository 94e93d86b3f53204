package rules

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Merge layers caller overrides onto a copy of base. Overrides are keyed by
// resource type (plus the pseudo-type "traffic"), each carrying a flat
// param→value map. Unknown types and unknown params produce warnings, never
// errors; a value that cannot coerce to the param's type is an error.
func Merge(base Set, overrides map[string]map[string]any) (Set, []string, error) {
	merged := base
	var warnings []string

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := merged.target(name)
		if target == nil {
			warnings = append(warnings, fmt.Sprintf("rule_overrides: unknown resource type %q ignored", name))
			continue
		}

		var md mapstructure.Metadata
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           target,
			WeaklyTypedInput: true,
			Metadata:         &md,
		})
		if err != nil {
			return base, warnings, fmt.Errorf("rule_overrides: %w", err)
		}
		if err := dec.Decode(overrides[name]); err != nil {
			return base, warnings, fmt.Errorf("rule_overrides: %s: %w", name, err)
		}
		for _, k := range md.Unused {
			warnings = append(warnings, fmt.Sprintf("rule_overrides: %s: unknown param %q ignored", name, k))
		}
	}
	return merged, warnings, nil
}

func (s *Set) target(name string) any {
	switch name {
	case "volume":
		return &s.Volume
	case "public_ip":
		return &s.PublicIP
	case "snapshot":
		return &s.Snapshot
	case "instance":
		return &s.Instance
	case "load_balancer":
		return &s.LoadBalancer
	case "nat_gateway":
		return &s.NATGateway
	case "relational_db":
		return &s.RelationalDB
	case "doc_db":
		return &s.DocDB
	case "graph_db":
		return &s.GraphDB
	case "nosql_table":
		return &s.NoSQLTable
	case "cache_cluster":
		return &s.CacheCluster
	case "warehouse":
		return &s.Warehouse
	case "search_domain":
		return &s.SearchDomain
	case "stream":
		return &s.Stream
	case "bucket":
		return &s.Bucket
	case "function":
		return &s.Function
	case "log_group":
		return &s.LogGroup
	case "container_repo":
		return &s.ContainerRepo
	case "container_service":
		return &s.ContainerService
	case "k8s_cluster":
		return &s.K8sCluster
	case "dns_zone":
		return &s.DNSZone
	case "waf_acl":
		return &s.WAFACL
	case "iam_role":
		return &s.IAMRole
	case "traffic":
		return &s.Traffic
	default:
		return nil
	}
}

// LoadFile reads a YAML overrides file shaped like the Merge input:
//
//	volume:
//	  lookback_days: 14
//	public_ip:
//	  confidence_high_days: 3
func LoadFile(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule overrides: %w", err)
	}
	var overrides map[string]map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing rule overrides %s: %w", path, err)
	}
	return overrides, nil
}
