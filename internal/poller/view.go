package poller

import (
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
)

// State is what a collection view currently shows
type State int

const (
	StateUnloaded State = iota // no cycle has completed yet
	StateRows                  // at least one row
	StateIdle                  // the backend answered null
	StateEmpty                 // an array without displayable rows
	StateFailed                // the answer was not an array
	StateDisabled              // the collection is not configured
)

func (s State) String() string {
	switch s {
	case StateRows:
		return "rows"
	case StateIdle:
		return "idle"
	case StateEmpty:
		return "empty"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	}
	return "unloaded"
}

// Spinner is the visual treatment of a queue row's status cell
type Spinner int

const (
	SpinnerPlaceholder Spinner = iota // reserved space, not animated
	SpinnerActive                     // animated
)

// History result colors
const (
	ColorFailed  = "#c62828"
	ColorRunning = "#fb8c00"
	ColorDone    = "#2e7d32"
)

// View is the rendered state of one polled collection
type View[T any] struct {
	State       State
	Rows        []T
	Placeholder string
	// Err is the last fetch failure. Rows are left as they were.
	Err       error
	UpdatedAt time.Time
}

// QueueRow is one active entry of the queue
type QueueRow struct {
	ID         string
	Status     domain.Status
	StatusText string
	Lines      []string
	CanDelete  bool
	Spinner    Spinner
}

// RunningRow is one progress entry
type RunningRow struct {
	ID        string
	Name      string
	Percent   int
	Remaining time.Duration
}

// HistoryRow is one result record
type HistoryRow struct {
	Time        string
	Lines       []string
	Result      string
	Status      domain.Status
	Color       string
	TaskID      string // trailing integer of the task name, "" when absent
	CanPreview  bool
	CanDownload bool
}

func queueRow(t domain.RemoteTask) QueueRow {
	row := QueueRow{
		ID:         t.ID,
		Status:     t.Status,
		StatusText: t.RawStatus,
		Lines:      t.Lines(),
		CanDelete:  t.Status == domain.StatusQueueing && t.HasID(),
	}
	switch t.Status {
	case domain.StatusRunning:
		row.StatusText = "running"
		row.Spinner = SpinnerActive
	case domain.StatusQueueing:
		row.StatusText = "queueing"
	}
	if row.StatusText == "" {
		row.StatusText = "-"
	}
	return row
}

func runningRow(t domain.RunningTask) RunningRow {
	return RunningRow{
		ID:        t.ID,
		Name:      t.Name,
		Percent:   min(max(t.Percent, 0), 100),
		Remaining: time.Duration(t.Remaining) * time.Second,
	}
}

func historyRow(r domain.HistoryRecord) HistoryRow {
	id, _ := r.FailedTestID()
	result := r.Result
	if result == "" {
		result = "-"
	}
	status := r.ResultStatus()

	color := ColorDone
	switch status {
	case domain.StatusFailed:
		color = ColorFailed
	case domain.StatusRunning:
		color = ColorRunning
	}

	artifacts := r.HasArtifacts()
	return HistoryRow{
		Time:        r.Time,
		Lines:       r.Lines(),
		Result:      result,
		Status:      status,
		Color:       color,
		TaskID:      id,
		CanPreview:  artifacts,
		CanDownload: artifacts,
	}
}
