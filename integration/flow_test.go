//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/poller"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/hochfrequenz/nf-ci-console/internal/staging"
	"github.com/hochfrequenz/nf-ci-console/internal/submit"
)

func TestFlow_IngestStageSubmitPreview(t *testing.T) {
	b := StartBackend(t, 200*time.Millisecond)
	ctx := context.Background()
	clock := scheduler.RealClock{}

	// Review requests: the alias maps upf to go-upf, the backend seeds seven
	loader := requests.New(b.Client, b.Config.Requests, clock, nullLog())
	req, err := loader.Select("upf")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if req.Repo != "go-upf" {
		t.Errorf("Repo = %q, want go-upf", req.Repo)
	}
	if err := loader.Ingest(ctx, req); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// the first read races the delayed ingestion and must show loading
	if err := loader.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := loader.Selected().Kind; got != requests.KindLoading {
		t.Errorf("first read kind = %v, want loading", got)
	}

	Eventually(t, 3*time.Second, func() bool {
		loader.Refresh(ctx)
		return loader.Selected().Kind == requests.KindRequest
	}, "review requests never loaded")

	opts := loader.Options()
	if len(opts) != 6 || opts[5].Kind != requests.KindLoadMore {
		t.Fatalf("collapsed options = %d, want 5 requests plus load more", len(opts))
	}

	// newest first, so the oldest two sit behind "load more"
	if err := loader.ChooseValue(requests.LoadMoreValue); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if n := len(loader.Options()); n != 8 {
		t.Fatalf("expanded options = %d, want placeholder plus 7", n)
	}

	// Stage two requests: 100 passes, 101 fails
	list := staging.New()
	for _, number := range []string{"100", "101"} {
		if err := loader.ChooseValue(number); err != nil {
			t.Fatalf("ChooseValue(%s): %v", number, err)
		}
		task, err := list.AddSelection(loader.Component(), loader.Selected())
		if err != nil {
			t.Fatalf("AddSelection(%s): %v", number, err)
		}
		if got := task.Pair()[1]; got != number {
			t.Errorf("staged #%s, want #%s", got, number)
		}
	}

	flow := submit.New(b.Client, list, nullLog())
	if ok, err := flow.Submit(ctx); !ok || err != nil {
		t.Fatalf("Submit = %v, %v", ok, err)
	}
	if list.Len() != 0 {
		t.Errorf("staged after submit = %d, want 0", list.Len())
	}

	sync := poller.New(b.Client, clock, nullLog())
	sync.Cycle(ctx)
	q := sync.Queue()
	if q.State != poller.StateRows || len(q.Rows) != 1 {
		t.Fatalf("queue = %v with %d rows, want 1 row", q.State, len(q.Rows))
	}
	row := q.Rows[0]
	if !row.CanDelete || row.Spinner != poller.SpinnerPlaceholder {
		t.Errorf("queued row = %+v, want deletable with placeholder spinner", row)
	}
	if len(row.Lines) != 2 {
		t.Errorf("queued lines = %v", row.Lines)
	}
	if h := sync.History(); h.State != poller.StateIdle && h.State != poller.StateEmpty {
		t.Errorf("history before any run = %v, want idle or empty", h.State)
	}

	// one step starts the task
	if err := b.Server.Simulator().Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	sync.Cycle(ctx)
	if row := sync.Queue().Rows[0]; row.Status != domain.StatusRunning || row.CanDelete {
		t.Errorf("running row = %+v, want running without delete", row)
	}
	if r := sync.Running(); r.State != poller.StateRows || len(r.Rows) != 1 {
		t.Errorf("running = %v with %d rows, want 1 row", r.State, len(r.Rows))
	}
	if err := sync.Delete(ctx, row.ID); !domain.IsUserInput(err) {
		t.Errorf("Delete running task = %v, want user input error", err)
	}

	if err := b.Server.Simulator().Drain(20); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	sync.Cycle(ctx)
	if q := sync.Queue(); q.State == poller.StateRows {
		t.Errorf("queue after drain still has %d rows", len(q.Rows))
	}
	h := sync.History()
	if h.State != poller.StateRows || len(h.Rows) != 1 {
		t.Fatalf("history = %v with %d rows, want 1 row", h.State, len(h.Rows))
	}
	hr := h.Rows[0]
	if hr.Status != domain.StatusFailed || hr.Color != poller.ColorFailed || !hr.CanPreview {
		t.Errorf("history row = %+v, want failed with preview", hr)
	}

	// Preview the failed test and download its log
	resolver := preview.New(b.Client, clock, nullLog())
	p, err := resolver.Load(ctx, hr.TaskID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Mode != preview.ModePerTest || p.StatusColor != preview.ColorFailed {
		t.Errorf("preview mode = %v color = %s, want per-test failed", p.Mode, p.StatusColor)
	}
	tests := p.Tests()
	if len(tests) != 1 || tests[0] != "TestUPF_PR101" {
		t.Errorf("failed tests = %v", tests)
	}
	if log := p.Select(0); strings.Contains(log, "\r") || !strings.Contains(log, "--- FAIL") {
		t.Errorf("log = %q, want normalized failure log", log)
	}

	saved, err := resolver.DownloadSelected(ctx, p, b.Config.Download.Dir)
	if err != nil {
		t.Fatalf("DownloadSelected: %v", err)
	}
	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read saved log: %v", err)
	}
	if !strings.Contains(string(data), "TestUPF_PR101") {
		t.Errorf("saved log = %q", data)
	}

	all, err := resolver.DownloadAll(ctx, hr.TaskID, b.Config.Download.Dir)
	if err != nil {
		t.Fatalf("DownloadAll: %v", err)
	}
	if filepath.Ext(all.Path) != ".zip" || all.Size == 0 {
		t.Errorf("archive = %+v, want non-empty zip", all)
	}
}

func TestFlow_CancelQueuedTask(t *testing.T) {
	b := StartBackend(t, 0)
	ctx := context.Background()

	list := staging.New()
	list.Add("amf", 42, "register")
	flow := submit.New(b.Client, list, nullLog())
	if _, err := flow.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sync := poller.New(b.Client, scheduler.RealClock{}, nullLog())
	sync.Cycle(ctx)
	rows := sync.Queue().Rows
	if len(rows) != 1 {
		t.Fatalf("queue rows = %d, want 1", len(rows))
	}
	if err := sync.Delete(ctx, rows[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	sync.Cycle(ctx)
	if q := sync.Queue(); q.State == poller.StateRows {
		t.Errorf("queue after cancel = %d rows, want none", len(q.Rows))
	}

	// a second delete of the same id is rejected by the backend
	if err := sync.Remove(ctx, rows[0].ID); !domain.IsNetwork(err) {
		t.Errorf("Remove twice = %v, want network error", err)
	}
}

func TestFlow_EmptyComponentSettlesAfterGrace(t *testing.T) {
	b := StartBackend(t, 0)
	ctx := context.Background()

	cfg := b.Config.Requests
	cfg.GraceWindow = config.Duration{Duration: 300 * time.Millisecond}
	loader := requests.New(emptyShortlist{b}, cfg, scheduler.RealClock{}, nullLog())
	req, _ := loader.Select("amf")
	if err := loader.Ingest(ctx, req); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	loader.Refresh(ctx)
	if got := loader.Selected().Kind; got != requests.KindLoading {
		t.Errorf("within grace = %v, want loading", got)
	}
	Eventually(t, 2*time.Second, func() bool {
		loader.Refresh(ctx)
		return loader.Selected().Kind == requests.KindNone
	}, "empty component never settled to none")
}

// emptyShortlist forwards the ingest calls but always reads an empty list
type emptyShortlist struct{ b *Backend }

func (e emptyShortlist) ClearShortlist(ctx context.Context) error {
	return e.b.Client.ClearShortlist(ctx)
}

func (e emptyShortlist) IngestRequests(ctx context.Context, owner, repo string) error {
	return e.b.Client.IngestRequests(ctx, owner, repo)
}

func (e emptyShortlist) Shortlist(ctx context.Context) ([]domain.ReviewRequest, error) {
	if _, err := e.b.Client.Shortlist(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func TestFlow_ConfigFileDrivesClient(t *testing.T) {
	b := StartBackend(t, 0)
	path := WriteConfig(t, `
[server]
base_url = "`+b.HTTP.URL+`"
timeout = "2s"

[requests]
grace_window = "1s"
display_limit = 2
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Requests.DisplayLimit != 2 || cfg.Requests.GraceWindow.Duration != time.Second {
		t.Errorf("requests config = %+v", cfg.Requests)
	}
	if cfg.Requests.RepoFor("upf") != "go-upf" {
		t.Errorf("default alias lost after load")
	}
}
