package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/nf-ci-console/internal/poller"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedSectionStyle = sectionStyle.
				BorderForeground(lipgloss.Color("205"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

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
			Foreground(lipgloss.Color("255"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

const cursorMark = "▸ "

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	q := m.sync.Queue()
	header := fmt.Sprintf(" NF CI Console │ Queue: %d │ Staged: %d │ Updated: %s ",
		len(q.Rows), m.staged.Len(), formatClock(q.UpdatedAt))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.activeTab {
	case TabDashboard:
		b.WriteString(m.section(m.renderQueue(), m.dashFocus == FocusQueue, m.width-2))
		b.WriteString("\n")
		if m.sync.Running().State != poller.StateDisabled {
			b.WriteString(m.section(m.renderRunning(), false, m.width-2))
			b.WriteString("\n")
		}
		b.WriteString(m.section(m.renderHistory(), m.dashFocus == FocusHistory, m.width-2))
		b.WriteString("\n")

	case TabStage:
		third := (m.width - 6) / 3
		if third < 20 {
			third = 20
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			m.section(m.renderComponents(), m.stageFocus == FocusComponents, third),
			m.section(m.renderRequests(), m.stageFocus == FocusRequests, third),
			m.section(m.renderStaged(), m.stageFocus == FocusStaged, third),
		)
		b.WriteString(row)
		b.WriteString("\n")
		if msg := m.flow.Message(); msg != "" {
			style := queuedStyle
			if strings.HasPrefix(msg, "error") {
				style = warningStyle
			} else if m.flow.Busy() {
				style = runningStyle
			}
			b.WriteString(style.Render(" " + msg))
			b.WriteString("\n")
		}

	case TabPreview:
		b.WriteString(m.section(m.renderPreview(), true, m.width-2))
		b.WriteString("\n")
	}

	// Confirmation or flash message
	if m.confirmID != "" {
		b.WriteString(warningStyle.Width(m.width).Render(fmt.Sprintf(" delete task %s? [y/n] ", m.confirmID)))
		b.WriteString("\n")
	} else if m.statusMsg != "" && m.now().Before(m.statusExpiry) {
		b.WriteString(queuedStyle.Width(m.width).Render(" " + m.statusMsg + " "))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Width(m.width).Render(" " + m.help.View(m.keys)))
	return b.String()
}

func (m Model) section(content string, focused bool, width int) string {
	style := sectionStyle
	if focused {
		style = focusedSectionStyle
	}
	return style.Width(width).Render(content)
}

func (m Model) renderTabs() string {
	tabs := []string{"Dashboard", "Stage", "Preview"}
	var parts []string

	for i, tab := range tabs {
		if i == m.activeTab {
			parts = append(parts, tabActiveStyle.Render(fmt.Sprintf(" %s ", tab)))
		} else {
			parts = append(parts, tabInactiveStyle.Render(fmt.Sprintf(" %s ", tab)))
		}
	}

	return strings.Join(parts, "│")
}

func (m Model) renderQueue() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("QUEUE"))
	b.WriteString("\n")

	v := m.sync.Queue()
	if v.State != poller.StateRows {
		b.WriteString(placeholderStyle(v.State).Render("  " + v.Placeholder))
		b.WriteString(staleNote(v.Err))
		return b.String()
	}

	for i, row := range v.Rows {
		spin := "  "
		if row.Spinner == poller.SpinnerActive {
			spin = m.spinner.View()
		}
		line := fmt.Sprintf("%s %-6s %-10s %s", spin, row.ID, row.StatusText, strings.Join(row.Lines, ", "))
		if row.CanDelete {
			line += dimmedStyle.Render("  [d]elete")
		}
		b.WriteString(m.cursorLine(line, m.dashFocus == FocusQueue && i == m.queueCursor))
		b.WriteString("\n")
	}
	b.WriteString(staleNote(v.Err))
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderRunning() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("RUNNING"))
	b.WriteString("\n")

	v := m.sync.Running()
	if v.State != poller.StateRows {
		b.WriteString(placeholderStyle(v.State).Render("  " + v.Placeholder))
		b.WriteString(staleNote(v.Err))
		return b.String()
	}

	for _, row := range v.Rows {
		line := fmt.Sprintf("  ● %-20s %s %3d%%  %s left",
			truncate(row.Name, 20), progressBar(row.Percent, 20), row.Percent, formatDuration(row.Remaining))
		b.WriteString(runningStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString(staleNote(v.Err))
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("HISTORY"))
	b.WriteString("\n")

	v := m.sync.History()
	if v.State != poller.StateRows {
		b.WriteString(placeholderStyle(v.State).Render("  " + v.Placeholder))
		b.WriteString(staleNote(v.Err))
		return b.String()
	}

	for i, row := range v.Rows {
		result := lipgloss.NewStyle().Foreground(lipgloss.Color(row.Color)).Render(fmt.Sprintf("%-8s", row.Result))
		line := fmt.Sprintf("%s  %s  %s", row.Time, result, strings.Join(row.Lines, ", "))
		var actions []string
		if row.CanPreview {
			actions = append(actions, "[p]review")
		}
		if row.CanDownload {
			actions = append(actions, "[D]ownload")
		}
		if len(actions) > 0 {
			line += dimmedStyle.Render("  " + strings.Join(actions, " "))
		}
		b.WriteString(m.cursorLine(line, m.dashFocus == FocusHistory && i == m.historyCursor))
		b.WriteString("\n")
	}
	b.WriteString(staleNote(v.Err))
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderComponents() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("COMPONENT"))
	b.WriteString("\n")

	current := m.loader.Component()
	for i, c := range m.cfg.Requests.Components {
		label := c
		if c == current {
			label = selectedStyle.Render(c + " ✓")
		}
		b.WriteString(m.cursorLine(label, m.stageFocus == FocusComponents && i == m.componentCursor))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderRequests() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("REVIEW REQUEST"))
	b.WriteString("\n")

	selected := m.loader.SelectedIndex()
	for i, opt := range m.loader.Options() {
		text := opt.Text
		switch {
		case opt.Disabled():
			text = dimmedStyle.Render(text)
		case i == selected:
			text = selectedStyle.Render(text)
		}
		b.WriteString(m.cursorLine(text, m.stageFocus == FocusRequests && i == m.requestCursor))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderStaged() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("STAGED (%d)", m.staged.Len())))
	b.WriteString("\n")

	rows := m.staged.Rows()
	if len(rows) == 0 {
		b.WriteString(queuedStyle.Render("  nothing staged"))
		return b.String()
	}
	for i, row := range rows {
		line := fmt.Sprintf("%-10s %s", row.Component, row.Request)
		b.WriteString(m.cursorLine(line, m.stageFocus == FocusStaged && i == m.stagedCursor))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderPreview() string {
	var b strings.Builder

	switch {
	case m.previewing != "":
		b.WriteString(titleStyle.Render("TASK " + m.previewing))
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + queuedStyle.Render(" loading..."))
		return b.String()
	case m.previewErr != "":
		b.WriteString(titleStyle.Render("TASK"))
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("  " + m.previewErr))
		return b.String()
	case m.preview == nil:
		b.WriteString(titleStyle.Render("TASK"))
		b.WriteString("\n")
		b.WriteString(queuedStyle.Render("  select a history entry and press [p]"))
		return b.String()
	}

	p := m.preview
	b.WriteString(titleStyle.Render("TASK " + p.TaskID))
	b.WriteString("\n")
	status := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.StatusColor)).Render(p.StatusLabel)
	when := p.Time
	if p.Relative != "" {
		when += " (" + p.Relative + ")"
	}
	b.WriteString(fmt.Sprintf("  status: %s   time: %s\n", status, when))

	if p.Mode == preview.ModePerTest {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("FAILED TESTS"))
		b.WriteString("\n")
		for i, name := range p.Tests() {
			b.WriteString(m.cursorLine(name, i == p.Selected()))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("LOG"))
	b.WriteString("\n")
	b.WriteString(clipLines(p.Log(), m.logLines()))
	return b.String()
}

func (m Model) cursorLine(line string, active bool) string {
	if active {
		return selectedStyle.Render(cursorMark) + line
	}
	return "  " + line
}

// logLines is how many log lines fit below the preview header
func (m Model) logLines() int {
	n := m.height - 14
	if m.preview != nil {
		n -= len(m.preview.Tests())
	}
	if n < 5 {
		n = 5
	}
	return n
}

func placeholderStyle(s poller.State) lipgloss.Style {
	if s == poller.StateFailed {
		return warningStyle
	}
	return queuedStyle
}

func staleNote(err error) string {
	if err == nil {
		return ""
	}
	return "\n" + dimmedStyle.Render("  last update failed, showing previous data")
}

func clipLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	hidden := len(lines) - max
	return strings.Join(lines[:max], "\n") + "\n" + dimmedStyle.Render(fmt.Sprintf("... %d more lines, [D] to download", hidden))
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("15:04:05")
}
