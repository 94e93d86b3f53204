package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	yaml "gopkg.in/yaml.v2"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

func (m *Model) openDetail(f finding.Finding) {
	m.viewport.SetContent(evidenceYAML(f))
	m.viewport.GotoTop()
	m.state = ViewStateDetail
}

func (m Model) viewDetails() string {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return "\n   " + dimStyle.Render("No finding selected.") + "\n"
	}
	f := m.rows[m.cursor]

	header := detailsHeaderStyle.Render(fmt.Sprintf("%s : %s", f.ResourceType, f.ResourceID))

	cost := special.Render(fmt.Sprintf("MONTHLY WASTE: $%.2f", f.MonthlyCost))
	grade := warning.Render("CONFIDENCE:    " + strings.ToUpper(string(f.Metadata.Confidence)))

	blocks := []string{header, "", cost}
	if f.Metadata.AlreadyWasted > 0 {
		blocks = append(blocks, danger.Render(fmt.Sprintf("BURNED TO DATE: $%.2f", f.Metadata.AlreadyWasted)))
	}
	blocks = append(blocks, grade, "", m.viewport.View())

	content := lipgloss.JoinVertical(lipgloss.Left, blocks...)
	return detailsBoxStyle.Render(content)
}

// evidenceYAML renders one finding as ordered YAML for the scrollable pane.
func evidenceYAML(f finding.Finding) string {
	doc := yaml.MapSlice{
		{Key: "resource", Value: yaml.MapSlice{
			{Key: "id", Value: f.ResourceID},
			{Key: "name", Value: f.ResourceName},
			{Key: "type", Value: string(f.ResourceType)},
			{Key: "region", Value: f.Region},
		}},
		{Key: "cost", Value: costSlice(f)},
		{Key: "evidence", Value: yaml.MapSlice{
			{Key: "orphan_type", Value: f.Metadata.OrphanType},
			{Key: "reason", Value: f.Metadata.Reason},
			{Key: "confidence", Value: string(f.Metadata.Confidence)},
			{Key: "age_days", Value: f.Metadata.AgeDays},
		}},
	}
	if len(f.Metadata.Signals) > 0 {
		doc = append(doc, yaml.MapItem{Key: "signals", Value: f.Metadata.Signals})
	}
	if len(f.Metadata.Detail) > 0 {
		doc = append(doc, yaml.MapItem{Key: "detail", Value: f.Metadata.Detail})
	}
	if f.Metadata.IsDeduplicated {
		doc = append(doc, yaml.MapItem{Key: "deduplication", Value: dedupSlice(f.Metadata)})
	}
	if len(f.Tags) > 0 {
		doc = append(doc, yaml.MapItem{Key: "tags", Value: f.Tags})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("render evidence: %v", err)
	}
	return string(out)
}

func costSlice(f finding.Finding) yaml.MapSlice {
	s := yaml.MapSlice{
		{Key: "monthly_usd", Value: f.MonthlyCost},
		{Key: "kind", Value: string(f.CostKind)},
	}
	if f.Metadata.AlreadyWasted > 0 {
		s = append(s, yaml.MapItem{Key: "already_wasted_usd", Value: f.Metadata.AlreadyWasted})
	}
	return s
}

func dedupSlice(e finding.Evidence) yaml.MapSlice {
	detections := make([]yaml.MapSlice, 0, len(e.AllDetections))
	for _, d := range e.AllDetections {
		detections = append(detections, yaml.MapSlice{
			{Key: "orphan_type", Value: d.OrphanType},
			{Key: "reason", Value: d.Reason},
			{Key: "confidence", Value: string(d.Confidence)},
			{Key: "monthly_usd", Value: d.MonthlyCost},
		})
	}
	return yaml.MapSlice{
		{Key: "duplicate_count", Value: e.DuplicateCount},
		{Key: "scenarios", Value: e.DetectionScenarios},
		{Key: "detections", Value: detections},
	}
}
