package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/issue-agent/internal/ledger"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	iterations := 0
	if m.session != nil {
		iterations = len(m.session.History)
	}
	header := fmt.Sprintf(" issue-agent │ %s#%d │ Iterations: %d │ Changes: %d │ PRs: %d ",
		m.repo, m.issue, iterations, len(m.changes), m.prCount())
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var content string
	switch {
	case m.err != nil:
		content = failedStyle.Render("Error: " + m.err.Error())
	case m.showDetail && m.activeTab == tabHistory:
		content = m.renderIterationDetail()
	case m.showDetail && m.activeTab == tabChanges:
		content = m.renderChangeDetail()
	case m.activeTab == tabChanges:
		content = m.renderChanges()
	default:
		content = m.renderHistory()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"History", "Changes"}
	parts := make([]string, len(names))
	for i, name := range names {
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(name)
		} else {
			parts[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) renderHistory() string {
	if m.session == nil {
		return dimmedStyle.Render("No session for this issue yet")
	}
	if !m.session.Matches(m.repo, m.issue) {
		return warningStyle.Render(fmt.Sprintf("Session file belongs to %s", m.session.Key()))
	}
	if len(m.session.History) == 0 {
		return dimmedStyle.Render("No iterations yet")
	}

	var b strings.Builder
	b.WriteString("ITERATIONS\n")
	end := min(m.scroll+maxVisible, len(m.session.History))
	for i := m.scroll; i < end; i++ {
		rec := m.session.History[i]
		when := ""
		if t, ok := m.recordedAt[rec.Iteration]; ok {
			when = humanize.RelTime(t, m.now(), "ago", "from now")
		}
		line := fmt.Sprintf("#%-3d %-50s %s", rec.Iteration, truncate(firstLine(rec.Result), 50), dimmedStyle.Render(when))
		b.WriteString(m.row(i, line))
	}
	return b.String()
}

func (m Model) renderIterationDetail() string {
	rec := m.session.History[m.selectedRow]
	return fmt.Sprintf("ITERATION %d\n\n%s", rec.Iteration, rec.Result)
}

func (m Model) renderChanges() string {
	if len(m.changes) == 0 {
		return dimmedStyle.Render("No changes proposed yet")
	}

	var b strings.Builder
	b.WriteString("CHANGES\n")
	end := min(m.scroll+maxVisible, len(m.changes))
	for i := m.scroll; i < end; i++ {
		c := m.changes[i]
		line := fmt.Sprintf("%s %-30s %-28s %s", changeIcon(c), truncate(c.Path, 30), truncate(c.Branch, 28),
			dimmedStyle.Render(humanize.RelTime(c.CreatedAt, m.now(), "ago", "from now")))
		b.WriteString(m.row(i, line))
	}
	return b.String()
}

func (m Model) renderChangeDetail() string {
	c := m.changes[m.selectedRow]

	var b strings.Builder
	fmt.Fprintf(&b, "CHANGE %s\n\n", c.Path)
	fmt.Fprintf(&b, "Branch:  %s\n", c.Branch)
	fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
	if c.DryRun {
		b.WriteString(warningStyle.Render("Dry run") + "\n")
	}
	if c.CommitID != "" {
		fmt.Fprintf(&b, "Commit:  %s\n", c.CommitID)
	}
	if c.PRURL != "" {
		fmt.Fprintf(&b, "PR:      %s\n", c.PRURL)
	}
	if c.Error != "" {
		b.WriteString(failedStyle.Render("Error:   "+c.Error) + "\n")
	}
	if c.Patch != "" {
		fmt.Fprintf(&b, "\nPatch (%s):\n", humanize.Bytes(uint64(len(c.Patch))))
		lines := strings.Split(c.Patch, "\n")
		limit := max(m.height-14, 10)
		if len(lines) > limit {
			lines = append(lines[:limit], dimmedStyle.Render(fmt.Sprintf("... %d more lines", len(lines)-limit)))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = humanize.RelTime(m.lastRefresh, m.now(), "ago", "from now")
	}
	bar := fmt.Sprintf(" [tab] switch  [j/k] move  [enter] details  [r] refresh  [q] quit │ refreshed %s ", refreshed)
	return statusBarStyle.Width(m.width).Render(bar)
}

func (m Model) row(i int, line string) string {
	if i == m.selectedRow {
		return selectedStyle.Render("> "+line) + "\n"
	}
	return "  " + line + "\n"
}

func changeIcon(c *ledger.Change) string {
	switch {
	case c.Error != "":
		return failedStyle.Render("✗")
	case c.Applied:
		return completedStyle.Render("✓")
	default:
		return dimmedStyle.Render("·")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
