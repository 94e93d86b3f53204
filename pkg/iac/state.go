// Package iac cross-references findings against infrastructure-as-code
// state, so reports can split waste into resources to fix in the repo and
// click-ops leftovers nobody tracks.
package iac

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

// State is an indexed view of one terraform state document: cloud id or
// ARN to resource address.
type State struct {
	addresses map[string]string
}

type stateDoc struct {
	Resources []stateResource `json:"resources"`
}

type stateResource struct {
	Module    string          `json:"module,omitempty"`
	Mode      string          `json:"mode"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Instances []stateInstance `json:"instances"`
}

type stateInstance struct {
	Attributes json.RawMessage `json:"attributes"`
}

// instanceIdentity is the slice of attributes shared by every AWS resource
// type terraform manages.
type instanceIdentity struct {
	ID  string `json:"id"`
	ARN string `json:"arn"`
}

// ParseState indexes a raw state document by the identifiers scans see.
// Data sources are skipped; only managed resources count as owned.
func ParseState(data []byte) (*State, error) {
	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse terraform state: %w", err)
	}
	s := &State{addresses: make(map[string]string)}
	for _, res := range doc.Resources {
		if res.Mode != "managed" {
			continue
		}
		base := res.Type + "." + res.Name
		if res.Module != "" {
			base = res.Module + "." + base
		}
		for i, inst := range res.Instances {
			var ident instanceIdentity
			if err := json.Unmarshal(inst.Attributes, &ident); err != nil {
				continue
			}
			addr := base
			if len(res.Instances) > 1 {
				addr = fmt.Sprintf("%s[%d]", base, i)
			}
			if ident.ID != "" {
				s.addresses[ident.ID] = addr
			}
			if ident.ARN != "" {
				s.addresses[ident.ARN] = addr
			}
		}
	}
	return s, nil
}

// LoadStateFile reads and indexes a state file pulled with
// `terraform state pull`.
func LoadStateFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseState(data)
}

// AddressOf resolves a cloud identifier to its state address.
func (s *State) AddressOf(id string) (string, bool) {
	addr, ok := s.addresses[id]
	return addr, ok
}

// Len reports how many identifiers the state indexes.
func (s *State) Len() int { return len(s.addresses) }

// Annotate marks every finding whose resource the state manages and
// returns how many it marked.
func Annotate(findings []finding.Finding, s *State) int {
	n := 0
	for i := range findings {
		addr, ok := s.AddressOf(findings[i].ResourceID)
		if !ok {
			continue
		}
		findings[i].Metadata.SetDetail("managed_by", "terraform")
		findings[i].Metadata.SetDetail("tf_address", addr)
		n++
	}
	return n
}
