package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// maxVisible is the number of list rows shown before scrolling
const maxVisible = 12

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, loadCmd(m.source)
		case "j", "down":
			if m.selectedRow < m.rows()-1 {
				m.selectedRow++
			}
			if m.selectedRow >= m.scroll+maxVisible {
				m.scroll = m.selectedRow - maxVisible + 1
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.selectedRow < m.scroll {
				m.scroll = m.selectedRow
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
			m.scroll = 0
			m.showDetail = false
		case "h":
			m.activeTab = tabHistory
			m.selectedRow, m.scroll = 0, 0
		case "c":
			m.activeTab = tabChanges
			m.selectedRow, m.scroll = 0, 0
		case "enter":
			if m.rows() > 0 {
				m.showDetail = !m.showDetail
			}
		case "esc":
			m.showDetail = false
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(loadCmd(m.source), tickCmd(m.interval))

	case DataMsg:
		m.lastRefresh = m.now()
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.session = msg.Session
		m.changes = msg.Changes
		m.recordedAt = map[int]time.Time{}
		for _, it := range msg.Iterations {
			m.recordedAt[it.Iteration] = it.RecordedAt
		}
		if n := m.rows(); m.selectedRow >= n {
			m.selectedRow = max(0, n-1)
		}
	}

	return m, nil
}
