package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
)

const statusTTL = 5 * time.Second

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case TickMsg:
		cmds := m.dueCmds()
		cmds = append(cmds, tickCmd())
		return m, tea.Batch(cmds...)

	case StatusFetchedMsg:
		m.sync.Apply(msg.Batch)
		m.sched.MarkComplete(JobStatus)
		m.clampCursors()

	case RequestsFetchedMsg:
		if m.loader.Apply(msg.Result) {
			m.requestCursor = m.loader.SelectedIndex()
		}
		m.sched.MarkComplete(JobRequests)

	case IngestDoneMsg:
		if msg.Generation != m.loader.Generation() {
			return m, nil
		}
		if msg.Err != nil {
			m.log.WithError(msg.Err).WithField("component", m.loader.Component()).Error("ingest review requests")
			m.setStatus("ingest failed: " + errorText(msg.Err))
		}
		m.sched.Trigger(JobRequests)

	case SubmitDoneMsg:
		if m.flow.Finish(msg.Batch, msg.Err) {
			m.sched.Trigger(JobStatus)
		}
		m.clampCursors()

	case DeleteDoneMsg:
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("remove task %s: %s", msg.ID, errorText(msg.Err)))
		} else {
			m.setStatus(fmt.Sprintf("task %s removed", msg.ID))
		}
		m.sched.Trigger(JobStatus)

	case PreviewLoadedMsg:
		if msg.ID != m.previewing {
			return m, nil
		}
		m.previewing = ""
		if msg.Err != nil {
			m.preview = nil
			m.previewErr = preview.ErrorText(msg.Err)
			return m, nil
		}
		m.preview = msg.Preview
		m.previewErr = ""

	case DownloadDoneMsg:
		if msg.Err != nil {
			m.setStatus("download failed: " + errorText(msg.Err))
		} else {
			m.setStatus("saved " + msg.Saved.String())
		}

	case ConfigReloadMsg:
		m.applyConfig(msg)
		return m, waitForReload(m.reloads)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// dueCmds turns the jobs the scheduler reports due into fetch commands.
// Each job stays marked running until its result message is applied.
func (m Model) dueCmds() []tea.Cmd {
	var cmds []tea.Cmd
	for _, name := range m.sched.Due(m.now()) {
		switch name {
		case JobStatus:
			cmds = append(cmds, fetchStatusCmd(m.ctx, m.sync))
		case JobRequests:
			if m.loader.Component() == "" {
				m.sched.MarkComplete(name)
				continue
			}
			cmds = append(cmds, fetchRequestsCmd(m.ctx, m.loader, m.loader.Generation()))
		default:
			m.sched.MarkComplete(name)
		}
	}
	return cmds
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmID != "" {
		return m.handleConfirm(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case key.Matches(msg, m.keys.ShiftTab):
		m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.sched.Trigger(JobStatus)
		m.sched.Trigger(JobRequests)
		if m.activeTab == TabPreview && m.preview != nil {
			return m.openPreview(m.preview.TaskID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.startSubmit()
	}

	switch m.activeTab {
	case TabDashboard:
		return m.dashboardKey(msg)
	case TabStage:
		return m.stageKey(msg)
	case TabPreview:
		return m.previewKey(msg)
	}
	return m, nil
}

func (m Model) handleConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		id := m.confirmID
		m.confirmID = ""
		if err := m.sync.CheckDeletable(id); err != nil {
			m.setStatus(errorText(err))
			return m, nil
		}
		m.setStatus(fmt.Sprintf("removing task %s...", id))
		return m, deleteCmd(m.ctx, m.sync, id)
	case key.Matches(msg, m.keys.No):
		m.confirmID = ""
		m.setStatus("delete cancelled")
	}
	return m, nil
}

func (m Model) dashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	queue := m.sync.Queue().Rows
	history := m.sync.History().Rows

	switch {
	case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Right):
		if m.dashFocus == FocusQueue {
			m.dashFocus = FocusHistory
		} else {
			m.dashFocus = FocusQueue
		}
	case key.Matches(msg, m.keys.Up):
		if m.dashFocus == FocusQueue {
			m.queueCursor = clamp(m.queueCursor-1, len(queue))
		} else {
			m.historyCursor = clamp(m.historyCursor-1, len(history))
		}
	case key.Matches(msg, m.keys.Down):
		if m.dashFocus == FocusQueue {
			m.queueCursor = clamp(m.queueCursor+1, len(queue))
		} else {
			m.historyCursor = clamp(m.historyCursor+1, len(history))
		}
	case key.Matches(msg, m.keys.Delete):
		if m.dashFocus != FocusQueue || len(queue) == 0 {
			return m, nil
		}
		row := queue[m.queueCursor]
		if err := m.sync.CheckDeletable(row.ID); err != nil {
			m.setStatus(errorText(err))
			return m, nil
		}
		m.confirmID = row.ID
	case key.Matches(msg, m.keys.Enter), key.Matches(msg, m.keys.Preview):
		if m.dashFocus != FocusHistory || len(history) == 0 {
			return m, nil
		}
		row := history[m.historyCursor]
		if !row.CanPreview {
			m.setStatus(preview.MissingIDText)
			return m, nil
		}
		return m.openPreview(row.TaskID)
	case key.Matches(msg, m.keys.Download):
		if m.dashFocus != FocusHistory || len(history) == 0 {
			return m, nil
		}
		row := history[m.historyCursor]
		if !row.CanDownload {
			m.setStatus("no logs to download for this task")
			return m, nil
		}
		return m, downloadAllCmd(m.ctx, m.resolver, row.TaskID, m.downloadDir)
	}
	return m, nil
}

func (m Model) stageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Left):
		m.stageFocus = (m.stageFocus + 2) % 3
	case key.Matches(msg, m.keys.Right):
		m.stageFocus = (m.stageFocus + 1) % 3
	case key.Matches(msg, m.keys.Up):
		m.moveStageCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveStageCursor(1)
	case key.Matches(msg, m.keys.Enter):
		switch m.stageFocus {
		case FocusComponents:
			return m.selectComponent(m.componentCursor)
		case FocusRequests:
			if err := m.loader.Choose(m.requestCursor); err != nil {
				m.setStatus(errorText(err))
			}
			m.requestCursor = m.loader.SelectedIndex()
		}
	case key.Matches(msg, m.keys.Add):
		m.stageSelection()
	case key.Matches(msg, m.keys.Remove):
		if m.stageFocus != FocusStaged {
			return m, nil
		}
		tasks := m.staged.List()
		if len(tasks) == 0 {
			return m, nil
		}
		m.staged.Remove(tasks[m.stagedCursor].LocalID)
		m.stagedCursor = clamp(m.stagedCursor, m.staged.Len())
	}
	return m, nil
}

func (m *Model) moveStageCursor(delta int) {
	switch m.stageFocus {
	case FocusComponents:
		m.componentCursor = clamp(m.componentCursor+delta, len(m.cfg.Requests.Components))
	case FocusRequests:
		m.requestCursor = clamp(m.requestCursor+delta, len(m.loader.Options()))
	case FocusStaged:
		m.stagedCursor = clamp(m.stagedCursor+delta, m.staged.Len())
	}
}

func (m Model) selectComponent(index int) (tea.Model, tea.Cmd) {
	components := m.cfg.Requests.Components
	if index < 0 || index >= len(components) {
		return m, nil
	}
	req, err := m.loader.Select(components[index])
	if err != nil {
		m.setStatus(errorText(err))
		return m, nil
	}
	m.requestCursor = 0
	m.stageFocus = FocusRequests
	return m, ingestCmd(m.ctx, m.loader, req)
}

// stageSelection adds the request under the cursor, or the loader's current
// selection when the cursor rests on a sentinel
func (m *Model) stageSelection() {
	opts := m.loader.Options()
	if m.stageFocus == FocusRequests && m.requestCursor < len(opts) && opts[m.requestCursor].Kind == requests.KindRequest {
		if err := m.loader.Choose(m.requestCursor); err != nil {
			m.setStatus(errorText(err))
			return
		}
	}
	task, err := m.staged.AddSelection(m.loader.Component(), m.loader.Selected())
	if err != nil {
		m.setStatus(errorText(err))
		return
	}
	m.setStatus(fmt.Sprintf("staged %s %s", task.Component, task.Label()))
}

func (m Model) startSubmit() (tea.Model, tea.Cmd) {
	b, err := m.flow.Begin()
	if err != nil {
		m.setStatus(errorText(err))
		return m, nil
	}
	return m, submitCmd(m.ctx, m.flow, b)
}

func (m Model) previewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.preview == nil {
		return m, nil
	}
	tests := m.preview.Tests()

	switch {
	case key.Matches(msg, m.keys.Up):
		if len(tests) > 0 {
			m.preview.Select(clamp(m.preview.Selected()-1, len(tests)))
		}
	case key.Matches(msg, m.keys.Down):
		if len(tests) > 0 {
			m.preview.Select(clamp(m.preview.Selected()+1, len(tests)))
		}
	case key.Matches(msg, m.keys.Download):
		if m.preview.Mode == preview.ModePerTest {
			return m, downloadSelectedCmd(m.ctx, m.resolver, *m.preview, m.downloadDir)
		}
		return m, downloadAllCmd(m.ctx, m.resolver, m.preview.TaskID, m.downloadDir)
	}
	return m, nil
}

func (m Model) openPreview(id string) (tea.Model, tea.Cmd) {
	m.activeTab = TabPreview
	m.previewing = id
	m.previewErr = ""
	return m, previewCmd(m.ctx, m.resolver, id)
}

func (m *Model) applyConfig(msg ConfigReloadMsg) {
	if msg.Err != nil {
		m.log.WithError(msg.Err).Warn("config reload failed")
		m.setStatus("config reload failed: " + msg.Err.Error())
		return
	}
	cfg := msg.Config
	m.cfg = cfg
	m.loader.SetConfig(cfg.Requests)
	if err := m.sched.SetInterval(JobStatus, cfg.Poll.StatusInterval.Duration); err != nil {
		m.log.WithError(err).Warn("status interval not applied")
	}
	if err := m.sched.SetInterval(JobRequests, cfg.Poll.RequestsInterval.Duration); err != nil {
		m.log.WithError(err).Warn("request interval not applied")
	}
	m.downloadDir = cfg.Download.Dir
	m.componentCursor = clamp(m.componentCursor, len(cfg.Requests.Components))
	m.log.Info("configuration reloaded")
	m.setStatus("configuration reloaded")
}

func (m *Model) clampCursors() {
	m.queueCursor = clamp(m.queueCursor, len(m.sync.Queue().Rows))
	m.historyCursor = clamp(m.historyCursor, len(m.sync.History().Rows))
	m.stagedCursor = clamp(m.stagedCursor, m.staged.Len())
}

func (m *Model) setStatus(s string) {
	m.statusMsg = s
	m.statusExpiry = m.now().Add(statusTTL)
}

func (m Model) now() time.Time {
	return m.sched.Clock().Now()
}

func clamp(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func errorText(err error) string {
	var uie *domain.UserInputError
	if errors.As(err, &uie) {
		return uie.Prompt
	}
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) && netErr.Message != "" {
		return netErr.Message
	}
	return err.Error()
}
