package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wastewatch/wastewatch/pkg/finding"
)

// Slate palette, adaptive so light terminals stay readable.
var (
	colorSubtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#64748B"}
	colorHighlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#6366F1"}
	colorText      = lipgloss.AdaptiveColor{Light: "#191919", Dark: "#E2E8F0"}
	colorSuccess   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#10B981"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "#F05D5E", Dark: "#F59E0B"}
	colorDanger    = lipgloss.AdaptiveColor{Light: "#FF0000", Dark: "#F43F5E"}

	subtle    = lipgloss.NewStyle().Foreground(colorSubtle)
	dimStyle  = lipgloss.NewStyle().Foreground(colorSubtle)
	highlight = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
	special   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	danger    = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	warning   = lipgloss.NewStyle().Foreground(colorWarning)

	textStyle = lipgloss.NewStyle().Foreground(colorText)

	// HUD bar across the top of every screen.
	hudStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorHighlight).
			Padding(0, 1).
			Foreground(colorText)

	hudLabelStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			Bold(true).
			MarginRight(1)

	hudValueStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	// Findings list rows.
	listSelectedStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Background(lipgloss.Color("#331832")).
				Bold(true)

	listNormalStyle = lipgloss.NewStyle().Foreground(colorSubtle)

	iconSafe = lipgloss.NewStyle().Foreground(colorSuccess).SetString("[SAFE]")

	// Evidence pane.
	detailsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorSuccess).
			Padding(1, 2).
			MarginTop(1)

	detailsHeaderStyle = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Bold(true).
				Underline(true).
				MarginBottom(1)
)

// gradeMark is the plain-text chip for a confidence grade. Plain so column
// widths stay stable; color comes from the row style.
func gradeMark(c finding.Confidence) string {
	switch c {
	case finding.ConfidenceCritical:
		return "[CRIT]"
	case finding.ConfidenceHigh:
		return "[HIGH]"
	case finding.ConfidenceMedium:
		return "[MED]"
	default:
		return "[LOW]"
	}
}

func helpStyle(s string) string {
	return subtle.Render(s)
}
