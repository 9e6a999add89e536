// Package tui is a terminal viewer for one session's iterations and the
// changes it proposed.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
)

const (
	tabHistory = iota
	tabChanges
	tabCount
)

// Source supplies the data shown by the viewer
type Source interface {
	LoadSession() (*domain.Session, error)
	ListIterations() ([]*ledger.Iteration, error)
	ListChanges() ([]*ledger.Change, error)
}

// Model is the TUI application model
type Model struct {
	// Data
	repo       string
	issue      int
	source     Source
	session    *domain.Session
	recordedAt map[int]time.Time
	changes    []*ledger.Change
	err        error

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	scroll      int
	showDetail  bool

	// Refresh
	interval    time.Duration
	lastRefresh time.Time
	now         func() time.Time
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Repo            string
	Issue           int
	Source          Source
	RefreshInterval time.Duration
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		repo:       cfg.Repo,
		issue:      cfg.Issue,
		source:     cfg.Source,
		recordedAt: map[int]time.Time{},
		interval:   interval,
		now:        time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadCmd(m.source),
		tickCmd(m.interval),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// DataMsg carries freshly loaded data
type DataMsg struct {
	Session    *domain.Session
	Iterations []*ledger.Iteration
	Changes    []*ledger.Change
	Err        error
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func loadCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		if src == nil {
			return DataMsg{}
		}
		sess, err := src.LoadSession()
		if err != nil {
			return DataMsg{Err: err}
		}
		its, err := src.ListIterations()
		if err != nil {
			return DataMsg{Err: err}
		}
		changes, err := src.ListChanges()
		if err != nil {
			return DataMsg{Err: err}
		}
		return DataMsg{Session: sess, Iterations: its, Changes: changes}
	}
}

// rows returns the number of selectable rows on the active tab
func (m Model) rows() int {
	if m.activeTab == tabChanges {
		return len(m.changes)
	}
	if m.session == nil {
		return 0
	}
	return len(m.session.History)
}

// prCount counts changes that opened a pull request
func (m Model) prCount() int {
	n := 0
	for _, c := range m.changes {
		if c.PRURL != "" {
			n++
		}
	}
	return n
}
