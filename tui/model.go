package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/logger"
	"github.com/hochfrequenz/nf-ci-console/internal/poller"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/hochfrequenz/nf-ci-console/internal/staging"
	"github.com/hochfrequenz/nf-ci-console/internal/submit"
)

// Scheduler job names
const (
	JobStatus   = "status"
	JobRequests = "requests"
)

// Tabs
const (
	TabDashboard = iota
	TabStage
	TabPreview
	tabCount
)

// Focus identifies the pane that receives cursor keys within a tab
type Focus int

const (
	FocusComponents Focus = iota
	FocusRequests
	FocusStaged
)

const (
	FocusQueue Focus = iota
	FocusHistory
)

// Gateway is everything the dashboard asks of the backend
type Gateway interface {
	requests.Gateway
	poller.Gateway
	submit.Gateway
	preview.Gateway
}

// Model is the TUI application model
type Model struct {
	ctx context.Context
	cfg *config.Config
	log *logrus.Entry

	// Components
	sched    *scheduler.Scheduler
	loader   *requests.Loader
	staged   *staging.List
	sync     *poller.Synchronizer
	flow     *submit.Flow
	resolver *preview.Resolver
	reloads  <-chan ConfigReloadMsg

	// Widgets
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	// UI state
	width      int
	height     int
	activeTab  int
	stageFocus Focus
	dashFocus  Focus
	showHelp   bool

	componentCursor int
	requestCursor   int
	stagedCursor    int
	queueCursor     int
	historyCursor   int

	// Preview tab
	preview      *preview.Preview
	previewErr   string
	previewing   string
	downloadDir  string
	confirmID    string
	statusMsg    string
	statusExpiry time.Time
}

// ModelConfig holds the collaborators of the TUI model
type ModelConfig struct {
	Context context.Context
	Config  *config.Config
	Gateway Gateway
	Clock   scheduler.Clock
	// Reloads delivers configuration changes; nil disables hot reload
	Reloads <-chan ConfigReloadMsg
}

// NewModel wires the dashboard components around one gateway
func NewModel(mc ModelConfig) (Model, error) {
	if mc.Context == nil {
		mc.Context = context.Background()
	}
	if mc.Config == nil {
		mc.Config = config.Default()
	}
	if mc.Clock == nil {
		mc.Clock = scheduler.RealClock{}
	}
	cfg := mc.Config

	sched := scheduler.New(mc.Clock)
	if err := sched.Add(JobStatus, cfg.Poll.StatusInterval.Duration, nil); err != nil {
		return Model{}, fmt.Errorf("schedule status poll: %w", err)
	}
	if err := sched.Add(JobRequests, cfg.Poll.RequestsInterval.Duration, nil); err != nil {
		return Model{}, fmt.Errorf("schedule request poll: %w", err)
	}

	staged := staging.New()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = runningStyle

	return Model{
		ctx:         mc.Context,
		cfg:         cfg,
		log:         logger.TUILog,
		sched:       sched,
		loader:      requests.New(mc.Gateway, cfg.Requests, mc.Clock, logger.RequestsLog),
		staged:      staged,
		sync:        poller.New(mc.Gateway, mc.Clock, logger.PollLog),
		flow:        submit.New(mc.Gateway, staged, logger.SubmitLog),
		resolver:    preview.New(mc.Gateway, mc.Clock, logger.PreviewLog),
		reloads:     mc.Reloads,
		keys:        keys,
		help:        help.New(),
		spinner:     sp,
		downloadDir: cfg.Download.Dir,
		activeTab:   TabDashboard,
	}, nil
}

// Init starts the tick loop, the spinner and the reload listener
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		waitForReload(m.reloads),
	)
}

// TickMsg drives the scheduler
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// StatusFetchedMsg carries one poll cycle's fetched collections
type StatusFetchedMsg struct {
	Batch poller.Batch
}

// RequestsFetchedMsg carries a shortlist read
type RequestsFetchedMsg struct {
	Result requests.Result
}

// IngestDoneMsg reports the clear+ingest call pair for a component change
type IngestDoneMsg struct {
	Generation uint64
	Err        error
}

// SubmitDoneMsg reports the outcome of a batch submission
type SubmitDoneMsg struct {
	Batch submit.Batch
	Err   error
}

// DeleteDoneMsg reports a queued task removal
type DeleteDoneMsg struct {
	ID  string
	Err error
}

// PreviewLoadedMsg carries a resolved task detail
type PreviewLoadedMsg struct {
	ID      string
	Preview *preview.Preview
	Err     error
}

// DownloadDoneMsg reports a saved artifact
type DownloadDoneMsg struct {
	Saved preview.Saved
	Err   error
}

// ConfigReloadMsg carries a reloaded configuration file
type ConfigReloadMsg struct {
	Config *config.Config
	Err    error
}

func waitForReload(ch <-chan ConfigReloadMsg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func fetchStatusCmd(ctx context.Context, s *poller.Synchronizer) tea.Cmd {
	return func() tea.Msg {
		return StatusFetchedMsg{Batch: s.Fetch(ctx)}
	}
}

func fetchRequestsCmd(ctx context.Context, l *requests.Loader, gen uint64) tea.Cmd {
	return func() tea.Msg {
		return RequestsFetchedMsg{Result: l.FetchFor(ctx, gen)}
	}
}

func ingestCmd(ctx context.Context, l *requests.Loader, req requests.IngestRequest) tea.Cmd {
	return func() tea.Msg {
		return IngestDoneMsg{Generation: req.Generation, Err: l.Ingest(ctx, req)}
	}
}

func submitCmd(ctx context.Context, f *submit.Flow, b submit.Batch) tea.Cmd {
	return func() tea.Msg {
		return SubmitDoneMsg{Batch: b, Err: f.Send(ctx, b)}
	}
}

func deleteCmd(ctx context.Context, s *poller.Synchronizer, id string) tea.Cmd {
	return func() tea.Msg {
		return DeleteDoneMsg{ID: id, Err: s.Remove(ctx, id)}
	}
}

func previewCmd(ctx context.Context, r *preview.Resolver, id string) tea.Cmd {
	return func() tea.Msg {
		p, err := r.Load(ctx, id)
		return PreviewLoadedMsg{ID: id, Preview: p, Err: err}
	}
}

func downloadSelectedCmd(ctx context.Context, r *preview.Resolver, p preview.Preview, dir string) tea.Cmd {
	return func() tea.Msg {
		saved, err := r.DownloadSelected(ctx, &p, dir)
		return DownloadDoneMsg{Saved: saved, Err: err}
	}
}

func downloadAllCmd(ctx context.Context, r *preview.Resolver, id, dir string) tea.Cmd {
	return func() tea.Msg {
		saved, err := r.DownloadAll(ctx, id, dir)
		return DownloadDoneMsg{Saved: saved, Err: err}
	}
}
