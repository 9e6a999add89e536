package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/issue-agent/internal/domain"
	"github.com/hochfrequenz/issue-agent/internal/ledger"
)

type fakeSource struct {
	sess    *domain.Session
	its     []*ledger.Iteration
	changes []*ledger.Change
	err     error
}

func (f fakeSource) LoadSession() (*domain.Session, error)       { return f.sess, f.err }
func (f fakeSource) ListIterations() ([]*ledger.Iteration, error) { return f.its, nil }
func (f fakeSource) ListChanges() ([]*ledger.Change, error)       { return f.changes, nil }

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testSource() fakeSource {
	sess := domain.NewSession("widgets", 7)
	sess.Append(0, "Read main.go\nthen planned")
	sess.Append(1, "Applied fix. TASK_COMPLETE")
	return fakeSource{
		sess: sess,
		its: []*ledger.Iteration{
			{Iteration: 0, RecordedAt: now.Add(-10 * time.Minute)},
			{Iteration: 1, RecordedAt: now.Add(-2 * time.Minute)},
		},
		changes: []*ledger.Change{
			{Path: "main.go", Branch: "agent/issue-7/abc1234", Summary: "Fix crash", Applied: true,
				PRURL: "https://github.com/acme/widgets/pull/3", Patch: "--- a/main.go\n+++ b/main.go\n", CreatedAt: now.Add(-2 * time.Minute)},
			{Path: "README.md", Branch: "agent/issue-7/def5678", Error: "No changes detected.", CreatedAt: now.Add(-5 * time.Minute)},
		},
	}
}

func loadedModel(t *testing.T, src fakeSource) Model {
	t.Helper()
	m := NewModel(ModelConfig{Repo: "widgets", Issue: 7, Source: src})
	m.now = func() time.Time { return now }
	m.width = 120
	m.height = 40

	msg := loadCmd(src)()
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func press(m Model, key tea.KeyMsg) Model {
	updated, _ := m.Update(key)
	return updated.(Model)
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestNewModel(t *testing.T) {
	m := NewModel(ModelConfig{Repo: "widgets", Issue: 7})

	if m.activeTab != tabHistory {
		t.Errorf("activeTab = %d, want history", m.activeTab)
	}
	if m.interval != 2*time.Second {
		t.Errorf("interval = %v, want 2s", m.interval)
	}
	if m.View() != "Loading..." {
		t.Errorf("View() before size = %q", m.View())
	}
}

func TestModel_DataMsg(t *testing.T) {
	m := loadedModel(t, testSource())

	if len(m.session.History) != 2 {
		t.Errorf("history = %d, want 2", len(m.session.History))
	}
	if len(m.changes) != 2 {
		t.Errorf("changes = %d, want 2", len(m.changes))
	}
	if m.prCount() != 1 {
		t.Errorf("prCount() = %d, want 1", m.prCount())
	}
	if m.lastRefresh != now {
		t.Errorf("lastRefresh = %v", m.lastRefresh)
	}
}

func TestModel_TabSwitching(t *testing.T) {
	m := loadedModel(t, testSource())

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.activeTab != tabChanges {
		t.Errorf("after tab: activeTab = %d, want changes", m.activeTab)
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.activeTab != tabHistory {
		t.Errorf("after wrap: activeTab = %d, want history", m.activeTab)
	}

	m = press(m, runeKey('c'))
	if m.activeTab != tabChanges {
		t.Errorf("after 'c': activeTab = %d, want changes", m.activeTab)
	}
}

func TestModel_NavigationBounds(t *testing.T) {
	m := loadedModel(t, testSource())

	m = press(m, runeKey('k'))
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d after k at top, want 0", m.selectedRow)
	}
	for i := 0; i < 5; i++ {
		m = press(m, runeKey('j'))
	}
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d, want clamped to 1", m.selectedRow)
	}
}

func TestModel_ViewHistory(t *testing.T) {
	m := loadedModel(t, testSource())
	view := m.View()

	for _, want := range []string{"widgets#7", "Iterations: 2", "PRs: 1", "Read main.go", "10 minutes ago", "refreshed now"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "then planned") {
		t.Error("list should show only the first line of a result")
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), "then planned") {
		t.Error("detail view should show the whole result")
	}
}

func TestModel_ViewChanges(t *testing.T) {
	m := loadedModel(t, testSource())
	m = press(m, runeKey('c'))
	view := m.View()

	for _, want := range []string{"main.go", "agent/issue-7/abc1234", "README.md"} {
		if !strings.Contains(view, want) {
			t.Errorf("changes view missing %q", want)
		}
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	detail := m.View()
	for _, want := range []string{"Fix crash", "pull/3", "Patch ("} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail missing %q", want)
		}
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	m = press(m, runeKey('j'))
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), "No changes detected.") {
		t.Error("failed change detail should show its error")
	}
}

func TestModel_OtherSession(t *testing.T) {
	src := testSource()
	src.sess = domain.NewSession("widgets", 99)
	m := loadedModel(t, src)

	if !strings.Contains(m.View(), "belongs to widgets#99") {
		t.Error("view should flag a session of another issue")
	}
}

func TestModel_LoadError(t *testing.T) {
	m := loadedModel(t, fakeSource{err: errors.New("corrupt session")})

	if !strings.Contains(m.View(), "Error: corrupt session") {
		t.Errorf("view = %q", m.View())
	}
}

func TestModel_Quit(t *testing.T) {
	m := loadedModel(t, testSource())
	_, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
