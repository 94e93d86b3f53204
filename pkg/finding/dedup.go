package finding

import "sort"

// Deduplicate collapses findings that point at the same physical resource,
// keyed by (resource_id, region). The highest-cost finding of each group
// survives as the canonical record; ties break on ascending orphan_type so
// reruns are stable. The canonical record absorbs the group: confidence is
// promoted to the group maximum, every scenario id lands in
// detection_scenarios, and each member's verdict is preserved under
// all_detections. The pass is idempotent.
//
// Output ordering is total: resource_type, then region, then resource_id.
func Deduplicate(in []Finding) []Finding {
	type key struct {
		id     string
		region string
	}

	groups := make(map[key][]Finding)
	order := make([]key, 0, len(in))
	for _, f := range in {
		k := key{f.ResourceID, f.Region}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}

	out := make([]Finding, 0, len(order))
	for _, k := range order {
		out = append(out, mergeGroup(groups[k]))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out
}

func mergeGroup(group []Finding) Finding {
	if len(group) == 1 {
		return group[0]
	}

	canonical := group[0]
	for _, f := range group[1:] {
		if f.MonthlyCost > canonical.MonthlyCost ||
			(f.MonthlyCost == canonical.MonthlyCost &&
				f.Metadata.OrphanType < canonical.Metadata.OrphanType) {
			canonical = f
		}
	}

	scenarios := make(map[string]bool)
	var detections []Detection
	count := 0
	confidence := canonical.Metadata.Confidence

	for _, f := range group {
		confidence = MaxConfidence(confidence, f.Metadata.Confidence)

		if len(f.Metadata.DetectionScenarios) > 0 {
			for _, s := range f.Metadata.DetectionScenarios {
				scenarios[s] = true
			}
		} else {
			scenarios[f.Metadata.OrphanType] = true
		}

		if len(f.Metadata.AllDetections) > 0 {
			detections = append(detections, f.Metadata.AllDetections...)
		} else {
			detections = append(detections, Detection{
				OrphanType:  f.Metadata.OrphanType,
				Reason:      f.Metadata.Reason,
				Confidence:  f.Metadata.Confidence,
				MonthlyCost: f.MonthlyCost,
				CostKind:    f.CostKind,
			})
		}

		if f.Metadata.DuplicateCount > 0 {
			count += f.Metadata.DuplicateCount
		} else {
			count++
		}
	}

	names := make([]string, 0, len(scenarios))
	for s := range scenarios {
		names = append(names, s)
	}
	sort.Strings(names)
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].OrphanType < detections[j].OrphanType
	})

	canonical.Metadata.Confidence = confidence
	canonical.Metadata.IsDeduplicated = true
	canonical.Metadata.DuplicateCount = count
	canonical.Metadata.DetectionScenarios = names
	canonical.Metadata.AllDetections = detections
	return canonical
}
