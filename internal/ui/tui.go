// Package ui is the interactive findings browser behind `scan --tui`. It
// runs the scan with a spinner, then lets the operator walk findings, drill
// into evidence, and ignore resources they have judged intentional.
package ui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	yaml "gopkg.in/yaml.v2"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

// DefaultIgnoreFile is where the browser persists ignored resource ids.
const DefaultIgnoreFile = ".wastewatch-ignore.yaml"

// Run drives the browser to completion and hands back the scan result so the
// caller can still write reports after the screen is gone.
func Run(m Model) (*engine.Result, error) {
	p := tea.NewProgram(m)
	out, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := out.(Model)
	if !ok {
		return nil, fmt.Errorf("ui: unexpected final model %T", out)
	}
	if final.err != nil {
		return nil, final.err
	}
	return final.result, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sizeViewport()
		return m, nil

	case scanDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.result = msg.result
		m.state = ViewStateList
		m.refreshRows()
		return m, nil

	case spinner.TickMsg:
		if m.state != ViewStateScanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != ViewStateScanning {
			return m, nil
		}
		m.tickCount++
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "q" || key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	if m.err != nil {
		return m, nil
	}

	switch m.state {
	case ViewStateDetail:
		switch key {
		case "esc", "backspace":
			m.state = ViewStateList
		case "i":
			m.ignoreSelected()
			m.state = ViewStateList
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case ViewStateList:
		switch key {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "g", "home":
			m.cursor = 0
		case "G", "end":
			if len(m.rows) > 0 {
				m.cursor = len(m.rows) - 1
			}
		case "enter", " ":
			if m.cursor >= 0 && m.cursor < len(m.rows) {
				m.openDetail(m.rows[m.cursor])
			}
		case "s":
			m.sortBy = (m.sortBy + 1) % 3
			m.refreshRows()
		case "f":
			m.gradeOnly = nextGrade(m.gradeOnly)
			m.cursor = 0
			m.refreshRows()
		case "i":
			m.ignoreSelected()
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return "\n " + danger.Render("[FAIL]") + " scan failed: " + m.err.Error() +
			"\n\n " + helpStyle("q: quit") + "\n"
	}
	if m.state == ViewStateScanning {
		dots := strings.Repeat(".", m.tickCount%4)
		return fmt.Sprintf("\n %s Scanning for waste%s (%ds)\n\n %s\n",
			m.spinner.View(), dots, m.tickCount/2, helpStyle("q: abort"))
	}

	var body string
	switch m.state {
	case ViewStateDetail:
		body = m.viewDetails()
	default:
		body = m.viewList()
	}
	return m.viewHUD() + "\n" + body + "\n" + m.viewFooter()
}

// refreshRows rebuilds the visible slice from the result: drop ignored ids,
// apply the grade filter, then order per the active sort mode.
func (m *Model) refreshRows() {
	if m.result == nil {
		m.rows = nil
		return
	}
	rows := make([]finding.Finding, 0, len(m.result.Findings))
	for _, f := range m.result.Findings {
		if m.hidden[f.ResourceID] {
			continue
		}
		if m.gradeOnly != "" && f.Metadata.Confidence != m.gradeOnly {
			continue
		}
		rows = append(rows, f)
	}

	switch m.sortBy {
	case sortAge:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Metadata.AgeDays > rows[j].Metadata.AgeDays
		})
	case sortID:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].ResourceID < rows[j].ResourceID
		})
	default:
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].MonthlyCost != rows[j].MonthlyCost {
				return rows[i].MonthlyCost > rows[j].MonthlyCost
			}
			return rows[i].ResourceID < rows[j].ResourceID
		})
	}

	m.rows = rows
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func nextGrade(c finding.Confidence) finding.Confidence {
	switch c {
	case "":
		return finding.ConfidenceCritical
	case finding.ConfidenceCritical:
		return finding.ConfidenceHigh
	case finding.ConfidenceHigh:
		return finding.ConfidenceMedium
	case finding.ConfidenceMedium:
		return finding.ConfidenceLow
	default:
		return ""
	}
}

func (m *Model) ignoreSelected() {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return
	}
	id := m.rows[m.cursor].ResourceID
	m.hidden[id] = true
	if m.ignorePath != "" {
		appendIgnored(m.ignorePath, id)
	}
	m.refreshRows()
}

func (m *Model) sizeViewport() {
	w := m.width - 10
	if w < 40 {
		w = 40
	}
	h := m.height - 14
	if h < 8 {
		h = 8
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

func (m Model) total() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Findings)
}

type ignoreFile struct {
	Ignored []string `yaml:"ignored"`
}

// LoadIgnored reads an ignore file into a set. A missing file is an empty
// set, not an error.
func LoadIgnored(path string) (map[string]bool, error) {
	ids := map[string]bool{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, err
	}
	var f ignoreFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, id := range f.Ignored {
		ids[id] = true
	}
	return ids, nil
}

// appendIgnored does a read-modify-write so hand edits to the file survive.
func appendIgnored(path, id string) error {
	var f ignoreFile
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &f); err != nil {
			f = ignoreFile{}
		}
	}
	for _, existing := range f.Ignored {
		if existing == id {
			return nil
		}
	}
	f.Ignored = append(f.Ignored, id)
	out, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// ExitSummary is the recap printed after the browser exits, so the final
// numbers survive on the scrollback.
func ExitSummary(res *engine.Result) string {
	if res == nil {
		return ""
	}
	head := special.Render(fmt.Sprintf("WasteWatch: %d findings, $%.2f/mo estimated waste",
		len(res.Findings), finding.RoundCents(res.MonthlyTotal())))
	body := fmt.Sprintf("account %s  regions %d  catalog %s  took %s",
		res.Account, len(res.ScannedRegions), res.CatalogVersion,
		res.Duration.Round(time.Millisecond))
	if wasted := finding.RoundCents(res.WastedTotal()); wasted > 0 {
		body += fmt.Sprintf("  ($%.2f already burned)", wasted)
	}
	return head + "\n" + dimStyle.Render(body)
}
