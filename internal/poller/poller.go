// Package poller reconciles the backend's queue, running and history
// collections into views. Fetches of one cycle run concurrently; their
// results are applied in a fixed order, each from its own response.
package poller

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Placeholder texts
const (
	QueueUnloaded   = "loading queue..."
	QueueIdle       = "idle: nothing queued"
	QueueEmpty      = "no active tasks"
	QueueFailed     = "failed to load queue"
	RunningIdle     = "no task running"
	RunningFailed   = "failed to load running tasks"
	HistoryUnloaded = "loading history..."
	HistoryIdle     = "no history yet"
	HistoryFailed   = "failed to load history"
)

// Gateway is the subset of the remote gateway the synchronizer calls
type Gateway interface {
	Queue(ctx context.Context) (gateway.List[domain.RemoteTask], error)
	RunningEnabled() bool
	Running(ctx context.Context) (gateway.List[domain.RunningTask], error)
	History(ctx context.Context) (gateway.List[domain.HistoryRecord], error)
	DeleteQueued(ctx context.Context, id string) error
}

type fetched[T any] struct {
	list gateway.List[T]
	err  error
	done bool
}

// Batch holds the responses of one cycle, not yet applied
type Batch struct {
	queue   fetched[domain.RemoteTask]
	running fetched[domain.RunningTask]
	history fetched[domain.HistoryRecord]
}

// Synchronizer owns the three collection views. Apply and the accessors
// must be called from one goroutine; Fetch reads no view state.
type Synchronizer struct {
	gw    Gateway
	clock scheduler.Clock
	log   *logrus.Entry

	queue   View[QueueRow]
	running View[RunningRow]
	history View[HistoryRow]
	cycles  int
}

// New creates a Synchronizer with unloaded views
func New(gw Gateway, clock scheduler.Clock, log *logrus.Entry) *Synchronizer {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Synchronizer{
		gw:      gw,
		clock:   clock,
		log:     log,
		queue:   View[QueueRow]{Placeholder: QueueUnloaded},
		running: View[RunningRow]{Placeholder: RunningIdle},
		history: View[HistoryRow]{Placeholder: HistoryUnloaded},
	}
	if !gw.RunningEnabled() {
		s.running.State = StateDisabled
	}
	return s
}

// Fetch issues every collection read of one cycle concurrently
func (s *Synchronizer) Fetch(ctx context.Context) Batch {
	var b Batch
	var g errgroup.Group

	g.Go(func() error {
		b.queue.list, b.queue.err = s.gw.Queue(ctx)
		b.queue.done = true
		return nil
	})
	if s.gw.RunningEnabled() {
		g.Go(func() error {
			b.running.list, b.running.err = s.gw.Running(ctx)
			b.running.done = true
			return nil
		})
	}
	g.Go(func() error {
		b.history.list, b.history.err = s.gw.History(ctx)
		b.history.done = true
		return nil
	})

	g.Wait()
	return b
}

// Apply renders a batch: queue, then running, then history
func (s *Synchronizer) Apply(b Batch) {
	s.cycles++
	if b.queue.done {
		s.applyQueue(b.queue)
	}
	if b.running.done {
		s.applyRunning(b.running)
	}
	if b.history.done {
		s.applyHistory(b.history)
	}
}

// Cycle fetches and applies one reconciliation pass
func (s *Synchronizer) Cycle(ctx context.Context) {
	s.Apply(s.Fetch(ctx))
}

func (s *Synchronizer) applyQueue(f fetched[domain.RemoteTask]) {
	if !s.accept("queue", f.err, &s.queue.Err) {
		if domain.IsDataShape(f.err) {
			s.queue = View[QueueRow]{State: StateFailed, Placeholder: QueueFailed, Err: f.err, UpdatedAt: s.clock.Now()}
		}
		return
	}
	if f.list.Null {
		s.queue = View[QueueRow]{State: StateIdle, Placeholder: QueueIdle, UpdatedAt: s.clock.Now()}
		return
	}

	rows := make([]QueueRow, 0, len(f.list.Items))
	for _, t := range f.list.Items {
		if !t.Status.Active() {
			continue
		}
		rows = append(rows, queueRow(t))
	}
	s.queue = rowsView(rows, QueueEmpty, s.clock)
}

func (s *Synchronizer) applyRunning(f fetched[domain.RunningTask]) {
	if !s.accept("running", f.err, &s.running.Err) {
		if domain.IsDataShape(f.err) {
			s.running = View[RunningRow]{State: StateFailed, Placeholder: RunningFailed, Err: f.err, UpdatedAt: s.clock.Now()}
		}
		return
	}
	if f.list.Null {
		s.running = View[RunningRow]{State: StateIdle, Placeholder: RunningIdle, UpdatedAt: s.clock.Now()}
		return
	}

	rows := make([]RunningRow, len(f.list.Items))
	for i, t := range f.list.Items {
		rows[i] = runningRow(t)
	}
	s.running = rowsView(rows, RunningIdle, s.clock)
}

func (s *Synchronizer) applyHistory(f fetched[domain.HistoryRecord]) {
	if !s.accept("history", f.err, &s.history.Err) {
		if domain.IsDataShape(f.err) {
			s.history = View[HistoryRow]{State: StateFailed, Placeholder: HistoryFailed, Err: f.err, UpdatedAt: s.clock.Now()}
		}
		return
	}
	if f.list.Null {
		s.history = View[HistoryRow]{State: StateIdle, Placeholder: HistoryIdle, UpdatedAt: s.clock.Now()}
		return
	}

	rows := make([]HistoryRow, len(f.list.Items))
	for i, r := range f.list.Items {
		rows[i] = historyRow(r)
	}
	s.history = rowsView(rows, HistoryIdle, s.clock)
}

// accept logs a failed fetch and records it on the view. A transport or
// status failure leaves the view's rows untouched.
func (s *Synchronizer) accept(collection string, err error, lastErr *error) bool {
	if err == nil {
		return true
	}
	entry := s.log.WithError(err).WithField("collection", collection)
	if domain.IsDataShape(err) {
		entry.Warn("malformed collection payload")
		return false
	}
	entry.Error("poll failed, keeping previous view")
	*lastErr = err
	return false
}

func rowsView[T any](rows []T, empty string, clock scheduler.Clock) View[T] {
	if len(rows) == 0 {
		return View[T]{State: StateEmpty, Placeholder: empty, UpdatedAt: clock.Now()}
	}
	return View[T]{State: StateRows, Rows: rows, UpdatedAt: clock.Now()}
}

// Queue returns the queue view
func (s *Synchronizer) Queue() View[QueueRow] { return s.queue }

// Running returns the running view
func (s *Synchronizer) Running() View[RunningRow] { return s.running }

// History returns the history view
func (s *Synchronizer) History() View[HistoryRow] { return s.history }

// Cycles returns how many batches were applied
func (s *Synchronizer) Cycles() int { return s.cycles }

// FindQueued returns the queue row with id
func (s *Synchronizer) FindQueued(id string) (QueueRow, bool) {
	for _, r := range s.queue.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return QueueRow{}, false
}

// CheckDeletable reports why the task id cannot be deleted, nil when it can
func (s *Synchronizer) CheckDeletable(id string) error {
	row, ok := s.FindQueued(id)
	if !ok {
		return &domain.UserInputError{Prompt: fmt.Sprintf("task %s is not in the queue", id)}
	}
	if !row.CanDelete {
		return &domain.UserInputError{Prompt: fmt.Sprintf("task %s is %s and cannot be removed", id, row.StatusText)}
	}
	return nil
}

// Delete removes a queued task after checking it against the current view
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if err := s.CheckDeletable(id); err != nil {
		return err
	}
	return s.Remove(ctx, id)
}

// Remove issues the delete call without consulting the view
func (s *Synchronizer) Remove(ctx context.Context, id string) error {
	if err := s.gw.DeleteQueued(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	s.log.WithField("task_id", id).Info("queued task removed")
	return nil
}
