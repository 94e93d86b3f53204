package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

// ViewState names the screen the browser is on.
type ViewState int

const (
	ViewStateScanning ViewState = iota
	ViewStateList
	ViewStateDetail
)

// ScanFunc produces the result the browser renders. It runs on a bubbletea
// command goroutine so the spinner stays live while the scan is in flight.
type ScanFunc func() (*engine.Result, error)

type sortMode int

const (
	sortCost sortMode = iota
	sortAge
	sortID
)

func (s sortMode) String() string {
	switch s {
	case sortAge:
		return "age"
	case sortID:
		return "id"
	default:
		return "cost"
	}
}

type tickMsg time.Time

type scanDoneMsg struct {
	result *engine.Result
	err    error
}

// Model is the findings browser. Construct with New or NewBrowser; the zero
// value is not usable.
type Model struct {
	spinner  spinner.Model
	viewport viewport.Model

	scan ScanFunc

	state    ViewState
	quitting bool
	err      error
	width    int
	height   int

	result *engine.Result
	rows   []finding.Finding
	hidden map[string]bool

	sortBy    sortMode
	gradeOnly finding.Confidence // empty means all grades

	cursor    int
	tickCount int
	started   time.Time

	ignorePath string
}

// Option tweaks a Model before first render.
type Option func(*Model)

// WithIgnoreFile sets where ignored resource ids persist. An empty path
// disables persistence; ignores then last for the session only.
func WithIgnoreFile(path string) Option {
	return func(m *Model) { m.ignorePath = path }
}

// New builds a browser that runs scan on start and shows a spinner until the
// result lands.
func New(scan ScanFunc, opts ...Option) Model {
	m := newModel(opts...)
	m.scan = scan
	m.state = ViewStateScanning
	return m
}

// NewBrowser builds a browser over a finished scan.
func NewBrowser(res *engine.Result, opts ...Option) Model {
	m := newModel(opts...)
	m.result = res
	m.state = ViewStateList
	m.refreshRows()
	return m
}

func newModel(opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = special

	m := Model{
		spinner:    s,
		viewport:   viewport.New(90, 16),
		width:      100,
		height:     30,
		hidden:     map[string]bool{},
		started:    time.Now(),
		ignorePath: DefaultIgnoreFile,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.ignorePath != "" {
		if ids, err := LoadIgnored(m.ignorePath); err == nil {
			m.hidden = ids
		}
	}
	m.sizeViewport()
	return m
}

func (m Model) Init() tea.Cmd {
	if m.state != ViewStateScanning {
		return nil
	}
	return tea.Batch(m.spinner.Tick, tickCmd(), runScan(m.scan))
}

func runScan(scan ScanFunc) tea.Cmd {
	return func() tea.Msg {
		res, err := scan()
		return scanDoneMsg{result: res, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
