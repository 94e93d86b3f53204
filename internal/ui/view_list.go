package ui

import (
	"fmt"
	"strings"
)

func (m Model) viewList() string {
	if len(m.rows) == 0 {
		if m.gradeOnly != "" {
			return "\n   " + dimStyle.Render("No findings at grade "+string(m.gradeOnly)+".") + "\n"
		}
		return "\n   " + iconSafe.Render() + subtle.Render("  Account clean. No waste detected.") + "\n"
	}

	s := strings.Builder{}

	header := fmt.Sprintf("   %-26s %-17s %-11s %-7s %10s  %s",
		"RESOURCE", "TYPE", "REGION", "GRADE", "MONTHLY", "REASON")
	s.WriteString(dimStyle.Render(header) + "\n")
	s.WriteString(dimStyle.Render("   "+strings.Repeat("─", 82)) + "\n")

	start, end := m.calculateWindow(len(m.rows))
	for i := start; i < end; i++ {
		f := m.rows[i]

		mark := " "
		if i == m.cursor {
			mark = ">"
		}

		reason := f.Metadata.OrphanType
		if f.Metadata.IsDeduplicated && len(f.Metadata.DetectionScenarios) > 0 {
			reason = strings.Join(f.Metadata.DetectionScenarios, "+")
		}

		line := fmt.Sprintf("%s  %-26s %-17s %-11s %-7s %10s  %s",
			mark,
			clip(f.ResourceID, 26),
			clip(string(f.ResourceType), 17),
			clip(f.Region, 11),
			gradeMark(f.Metadata.Confidence),
			fmt.Sprintf("$%.2f", f.MonthlyCost),
			clip(reason, 30),
		)

		if i == m.cursor {
			s.WriteString(listSelectedStyle.Render(line) + "\n")
		} else {
			s.WriteString(listNormalStyle.Render(line) + "\n")
		}
	}
	if end < len(m.rows) {
		s.WriteString(dimStyle.Render(fmt.Sprintf("   ... %d more", len(m.rows)-end)) + "\n")
	}

	return s.String()
}

// calculateWindow keeps the cursor centered once the list outgrows the
// terminal.
func (m Model) calculateWindow(total int) (int, int) {
	windowSize := m.height - 8
	if windowSize < 5 {
		windowSize = 5
	}

	start := m.cursor - windowSize/2
	if start < 0 {
		start = 0
	}

	end := start + windowSize
	if end > total {
		end = total
		start = end - windowSize
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
