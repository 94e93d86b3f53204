package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/version"
)

// viewHUD renders the status bar: identity on the left, money on the right,
// and a warning line underneath when regions failed.
func (m Model) viewHUD() string {
	res := m.result
	if res == nil {
		return ""
	}

	segTitle := highlight.Render("WASTEWATCH " + version.Full())
	segAccount := hudLabelStyle.Render("ACCOUNT:") + textStyle.Render(res.Account)

	monthly := finding.RoundCents(res.MonthlyTotal())
	waste := fmt.Sprintf("$%.2f/mo", monthly)
	if monthly > 0 {
		waste += fmt.Sprintf(" ($%.0f/yr)", monthly*12)
	}
	segWaste := hudLabelStyle.Render("WASTE:") + hudValueStyle.Render(waste)

	crit, high := 0, 0
	for i := range res.Findings {
		switch res.Findings[i].Metadata.Confidence {
		case finding.ConfidenceCritical:
			crit++
		case finding.ConfidenceHigh:
			high++
		}
	}
	segGrades := hudLabelStyle.Render("CRIT:") + danger.Render(strconv.Itoa(crit)) +
		"  " + hudLabelStyle.Render("HIGH:") + warning.Render(strconv.Itoa(high))

	left := lipgloss.JoinHorizontal(lipgloss.Center, segTitle, "  ", segAccount)
	right := lipgloss.JoinHorizontal(lipgloss.Center, segWaste, "  |  ", segGrades)

	gap := m.width - 4 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	content := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(gap).Render(""),
		right,
	)

	bar := hudStyle.Width(m.width - 2).Render(content)

	if len(res.RegionErrors) > 0 {
		names := make([]string, 0, len(res.RegionErrors))
		for _, re := range res.RegionErrors {
			names = append(names, re.Region)
		}
		bar += "\n " + warning.Render(fmt.Sprintf("[WARN] %d region(s) failed: %s",
			len(names), strings.Join(names, ", ")))
	}
	return bar
}

// viewFooter shows what the list is filtered to and which keys do what.
func (m Model) viewFooter() string {
	status := fmt.Sprintf("%d/%d shown  sort:%s", len(m.rows), m.total(), m.sortBy)
	if m.gradeOnly != "" {
		status += fmt.Sprintf("  grade:%s", m.gradeOnly)
	}

	keys := "enter: evidence • s: sort • f: grade filter • i: ignore • q: quit"
	if m.state == ViewStateDetail {
		keys = "esc: back • j/k: scroll • i: ignore • q: quit"
	}
	return helpStyle(" " + status + "  " + keys)
}
