package ui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

func testResult() *engine.Result {
	return &engine.Result{
		Provider:       "aws",
		Account:        "123456789012",
		CatalogVersion: "2025-08-01",
		StartedAt:      time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC),
		Duration:       90 * time.Second,
		ScannedRegions: []string{"us-east-1", "us-east-2"},
		Findings: []finding.Finding{
			{
				ResourceType: finding.TypeNATGateway,
				ResourceID:   "nat-forsaken",
				ResourceName: "nat-forsaken",
				Region:       "us-east-2",
				MonthlyCost:  32.40,
				CostKind:     finding.CostAbsolute,
				Metadata: finding.Evidence{
					OrphanType:         "no_routes",
					Reason:             "no route table sends traffic to this gateway",
					Confidence:         finding.ConfidenceCritical,
					AgeDays:            120,
					AlreadyWasted:      129.60,
					IsDeduplicated:     true,
					DuplicateCount:     2,
					DetectionScenarios: []string{"no_routes", "zero_traffic"},
					AllDetections: []finding.Detection{
						{
							OrphanType:  "no_routes",
							Reason:      "no route table sends traffic to this gateway",
							Confidence:  finding.ConfidenceCritical,
							MonthlyCost: 32.40,
							CostKind:    finding.CostAbsolute,
						},
						{
							OrphanType:  "zero_traffic",
							Reason:      "no bytes processed in 30 days",
							Confidence:  finding.ConfidenceCritical,
							MonthlyCost: 32.40,
							CostKind:    finding.CostAbsolute,
						},
					},
				},
			},
			{
				ResourceType: finding.TypePublicIP,
				ResourceID:   "eipalloc-lonely",
				ResourceName: "198.51.100.7",
				Region:       "us-east-1",
				MonthlyCost:  3.60,
				CostKind:     finding.CostAbsolute,
				Tags:         map[string]string{"env": "dev"},
				Metadata: finding.Evidence{
					OrphanType:    "unassociated",
					Reason:        "address is not associated with any resource",
					Confidence:    finding.ConfidenceHigh,
					AgeDays:       10,
					AlreadyWasted: 1.20,
				},
			},
			{
				ResourceType: finding.TypeVolume,
				ResourceID:   "vol-dangling",
				ResourceName: "vol-dangling",
				Region:       "us-east-1",
				MonthlyCost:  40.00,
				CostKind:     finding.CostAbsolute,
				Metadata: finding.Evidence{
					OrphanType:    "unattached",
					Reason:        "volume has no attachments",
					Confidence:    finding.ConfidenceHigh,
					AgeDays:       45,
					AlreadyWasted: 60.00,
					Signals:       map[string]float64{"size_gib": 500},
					Detail:        map[string]string{"volume_type": "gp3"},
				},
			},
		},
		RegionErrors: []engine.RegionError{
			{Region: "eu-west-1", Error: "ec2.DescribeVolumes: UnauthorizedOperation"},
		},
	}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func resize(t *testing.T, m Model, w, h int) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return updated.(Model)
}

func TestBrowserListView(t *testing.T) {
	m := NewBrowser(testResult())
	view := m.View()

	want := []string{
		"WASTEWATCH",
		"123456789012",
		"$76.00/mo",
		"vol-dangling", "nat-forsaken", "eipalloc-lonely",
		"[CRIT]", "[HIGH]",
		"$40.00", "$32.40", "$3.60",
		"no_routes+zero_traffic",
		"eu-west-1",
		"3/3 shown",
		"sort:cost",
	}
	for _, w := range want {
		if !strings.Contains(view, w) {
			t.Errorf("list view missing %q\nGot:\n%s", w, view)
		}
	}

	// Cost descending: the volume outranks the NAT gateway outranks the EIP.
	vol := strings.Index(view, "vol-dangling")
	nat := strings.Index(view, "nat-forsaken")
	eip := strings.Index(view, "eipalloc-lonely")
	if !(vol < nat && nat < eip) {
		t.Errorf("expected cost ordering vol < nat < eip, got indexes %d %d %d", vol, nat, eip)
	}
}

func TestBrowserDetailView(t *testing.T) {
	m := NewBrowser(testResult())
	m = resize(t, m, 120, 60)

	// Second row under cost sort is the NAT gateway.
	m = press(t, m, "down", "enter")
	view := m.View()

	want := []string{
		"nat_gateway : nat-forsaken",
		"MONTHLY WASTE: $32.40",
		"BURNED TO DATE: $129.60",
		"CRITICAL",
		"orphan_type: no_routes",
		"reason: no route table sends traffic to this gateway",
		"age_days: 120",
		"duplicate_count: 2",
		"- no_routes",
		"- zero_traffic",
		"no bytes processed in 30 days",
	}
	for _, w := range want {
		if !strings.Contains(view, w) {
			t.Errorf("detail view missing %q\nGot:\n%s", w, view)
		}
	}

	m = press(t, m, "esc")
	if !strings.Contains(m.View(), "RESOURCE") {
		t.Errorf("esc should return to the list view")
	}
}

func TestBrowserDetailShowsSignalsAndTags(t *testing.T) {
	m := NewBrowser(testResult())
	m = resize(t, m, 120, 60)

	// First row is the volume; its evidence carries signals and detail.
	m = press(t, m, "enter")
	view := m.View()
	for _, w := range []string{"size_gib: 500", "volume_type: gp3"} {
		if !strings.Contains(view, w) {
			t.Errorf("volume detail missing %q\nGot:\n%s", w, view)
		}
	}

	// The EIP carries tags.
	m = press(t, m, "esc", "G", "enter")
	view = m.View()
	for _, w := range []string{"eipalloc-lonely", "env: dev"} {
		if !strings.Contains(view, w) {
			t.Errorf("eip detail missing %q\nGot:\n%s", w, view)
		}
	}
}

func TestBrowserSortCycle(t *testing.T) {
	m := NewBrowser(testResult())

	m = press(t, m, "s")
	view := m.View()
	if !strings.Contains(view, "sort:age") {
		t.Fatalf("expected age sort in footer\nGot:\n%s", view)
	}
	if nat, vol := strings.Index(view, "nat-forsaken"), strings.Index(view, "vol-dangling"); nat > vol {
		t.Errorf("age sort should put the 120 day NAT first, indexes nat=%d vol=%d", nat, vol)
	}

	m = press(t, m, "s")
	view = m.View()
	if !strings.Contains(view, "sort:id") {
		t.Fatalf("expected id sort in footer\nGot:\n%s", view)
	}
	eip := strings.Index(view, "eipalloc-lonely")
	nat := strings.Index(view, "nat-forsaken")
	vol := strings.Index(view, "vol-dangling")
	if !(eip < nat && nat < vol) {
		t.Errorf("id sort should be lexicographic, got indexes %d %d %d", eip, nat, vol)
	}

	m = press(t, m, "s")
	if !strings.Contains(m.View(), "sort:cost") {
		t.Errorf("third press should cycle back to cost sort")
	}
}

func TestBrowserGradeFilter(t *testing.T) {
	m := NewBrowser(testResult())

	m = press(t, m, "f")
	view := m.View()
	if !strings.Contains(view, "grade:critical") || !strings.Contains(view, "1/3 shown") {
		t.Fatalf("expected critical filter\nGot:\n%s", view)
	}
	if !strings.Contains(view, "nat-forsaken") {
		t.Errorf("critical filter should keep the NAT finding")
	}
	for _, dw := range []string{"vol-dangling", "eipalloc-lonely"} {
		if strings.Contains(view, dw) {
			t.Errorf("critical filter should hide %q", dw)
		}
	}

	m = press(t, m, "f")
	view = m.View()
	if !strings.Contains(view, "grade:high") || !strings.Contains(view, "2/3 shown") {
		t.Fatalf("expected high filter\nGot:\n%s", view)
	}
	if strings.Contains(view, "nat-forsaken") {
		t.Errorf("high filter should hide the critical NAT finding")
	}

	m = press(t, m, "f")
	if view = m.View(); !strings.Contains(view, "No findings at grade medium.") {
		t.Errorf("empty grade should say so\nGot:\n%s", view)
	}

	// low, then back to all.
	m = press(t, m, "f", "f")
	if view = m.View(); !strings.Contains(view, "3/3 shown") {
		t.Errorf("filter cycle should return to all findings\nGot:\n%s", view)
	}
}

func TestBrowserIgnorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.yaml")

	m := NewBrowser(testResult(), WithIgnoreFile(path))
	m = press(t, m, "i") // cursor on vol-dangling under cost sort
	view := m.View()
	if strings.Contains(view, "vol-dangling") {
		t.Errorf("ignored finding should leave the list\nGot:\n%s", view)
	}
	if !strings.Contains(view, "2/3 shown") {
		t.Errorf("footer should count the ignored finding against the total\nGot:\n%s", view)
	}

	ids, err := LoadIgnored(path)
	if err != nil {
		t.Fatalf("LoadIgnored: %v", err)
	}
	if !ids["vol-dangling"] {
		t.Fatalf("ignore file should contain vol-dangling, got %v", ids)
	}

	// A fresh browser over the same file starts with the resource hidden.
	m2 := NewBrowser(testResult(), WithIgnoreFile(path))
	if strings.Contains(m2.View(), "vol-dangling") {
		t.Errorf("previously ignored finding should stay hidden")
	}
}

func TestBrowserIgnoreIsIdempotentOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.yaml")
	if err := appendIgnored(path, "vol-dangling"); err != nil {
		t.Fatalf("appendIgnored: %v", err)
	}
	if err := appendIgnored(path, "vol-dangling"); err != nil {
		t.Fatalf("appendIgnored twice: %v", err)
	}
	if err := appendIgnored(path, "nat-forsaken"); err != nil {
		t.Fatalf("appendIgnored second id: %v", err)
	}
	ids, err := LoadIgnored(path)
	if err != nil {
		t.Fatalf("LoadIgnored: %v", err)
	}
	if len(ids) != 2 || !ids["vol-dangling"] || !ids["nat-forsaken"] {
		t.Fatalf("unexpected ignore set: %v", ids)
	}
}

func TestLoadIgnoredMissingFile(t *testing.T) {
	ids, err := LoadIgnored(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("missing file should yield an empty set, got %v", ids)
	}
}

func TestBrowserScanFlow(t *testing.T) {
	m := New(func() (*engine.Result, error) { return testResult(), nil })

	if view := m.View(); !strings.Contains(view, "Scanning for waste") {
		t.Fatalf("initial view should show the scan spinner\nGot:\n%s", view)
	}

	updated, _ := m.Update(scanDoneMsg{result: testResult()})
	m = updated.(Model)
	if view := m.View(); !strings.Contains(view, "RESOURCE") || !strings.Contains(view, "vol-dangling") {
		t.Fatalf("scan completion should land on the list\nGot:\n%s", view)
	}
}

func TestBrowserScanFailure(t *testing.T) {
	m := New(func() (*engine.Result, error) { return nil, errors.New("assume role denied") })

	updated, _ := m.Update(scanDoneMsg{err: errors.New("assume role denied")})
	m = updated.(Model)
	view := m.View()
	if !strings.Contains(view, "scan failed") || !strings.Contains(view, "assume role denied") {
		t.Fatalf("failure view should name the error\nGot:\n%s", view)
	}
}

func TestBrowserEmptyResult(t *testing.T) {
	m := NewBrowser(&engine.Result{
		Provider:       "aws",
		Account:        "123456789012",
		CatalogVersion: "2025-08-01",
		ScannedRegions: []string{"us-east-1"},
		Findings:       []finding.Finding{},
	})
	view := m.View()
	if !strings.Contains(view, "[SAFE]") || !strings.Contains(view, "Account clean. No waste detected.") {
		t.Fatalf("empty result should render the clean banner\nGot:\n%s", view)
	}
}

func TestExitSummary(t *testing.T) {
	out := ExitSummary(testResult())
	for _, w := range []string{"3 findings", "$76.00/mo", "123456789012", "2025-08-01", "$190.80", "1m30s"} {
		if !strings.Contains(out, w) {
			t.Errorf("exit summary missing %q\nGot:\n%s", w, out)
		}
	}
	if ExitSummary(nil) != "" {
		t.Errorf("nil result should render nothing")
	}
}
