// Package preview resolves the failure detail of a single task and
// downloads its log artifacts
package preview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/gateway"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Display texts
const (
	MissingIDText    = "missing task id"
	GenericLoadError = "could not load task detail"
	LogNotFound      = "log not found"
	NoLogs           = "no logs"
	NoTimestamp      = "—"
	LogSeparator     = "\n----------------------------------------\n"
	TimeLayout       = "2006-01-02 15:04:05"
)

// Status colors
const (
	ColorSuccess  = "#2e7d32"
	ColorFailed   = "#c62828"
	ColorRunning  = "#fb8c00"
	ColorQueueing = "#1565c0"
	ColorOther    = "#311b92"
)

var statusColors = map[domain.Status]string{
	domain.StatusSuccess:  ColorSuccess,
	domain.StatusFailed:   ColorFailed,
	domain.StatusRunning:  ColorRunning,
	domain.StatusQueueing: ColorQueueing,
}

// Gateway is the subset of the remote gateway the resolver calls
type Gateway interface {
	Task(ctx context.Context, id string) (domain.TaskDetail, error)
	Download(ctx context.Context, id string) (*gateway.Artifact, error)
	DownloadSingle(ctx context.Context, id, testName string) (*gateway.Artifact, error)
}

// Mode selects how logs are presented
type Mode int

const (
	ModeCombined Mode = iota // every log in one block, no selector
	ModePerTest              // one log per failed test, chosen by index
)

// Preview is the resolved detail of one task
type Preview struct {
	TaskID      string
	Detail      domain.TaskDetail
	StatusLabel string
	StatusColor string
	Time        string
	Relative    string
	Mode        Mode
	Combined    string

	selected int
}

// Resolver loads previews
type Resolver struct {
	gw    Gateway
	clock scheduler.Clock
	log   *logrus.Entry
}

// New creates a Resolver
func New(gw Gateway, clock scheduler.Clock, log *logrus.Entry) *Resolver {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{gw: gw, clock: clock, log: log}
}

// TaskIDFromQuery extracts taskId from a query string such as "?taskId=42"
func TaskIDFromQuery(raw string) (string, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return "", &domain.UserInputError{Prompt: MissingIDText}
	}
	id := strings.TrimSpace(values.Get("taskId"))
	if id == "" {
		return "", &domain.UserInputError{Prompt: MissingIDText}
	}
	return id, nil
}

// ErrorText renders a load failure for display: the backend's message when
// it sent one, otherwise a generic text
func ErrorText(err error) string {
	var input *domain.UserInputError
	if errors.As(err, &input) {
		return input.Prompt
	}
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) && netErr.Message != "" {
		return netErr.Message
	}
	return GenericLoadError
}

// Load fetches and resolves the detail of task id
func (r *Resolver) Load(ctx context.Context, id string) (*Preview, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &domain.UserInputError{Prompt: MissingIDText}
	}
	detail, err := r.gw.Task(ctx, id)
	if err != nil {
		r.log.WithError(err).WithField("task_id", id).Error("load task detail")
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return r.resolve(id, detail), nil
}

func (r *Resolver) resolve(id string, detail domain.TaskDetail) *Preview {
	p := &Preview{
		TaskID:      id,
		Detail:      detail,
		StatusLabel: detail.RawStatus,
		StatusColor: ColorOther,
		Time:        NoTimestamp,
	}
	if p.StatusLabel == "" {
		p.StatusLabel = "-"
	}
	if c, ok := statusColors[detail.Status]; ok {
		p.StatusColor = c
	}
	if detail.Timestamp > 0 {
		t := time.Unix(detail.Timestamp, 0)
		p.Time = t.Local().Format(TimeLayout)
		p.Relative = humanize.RelTime(t, r.clock.Now(), "ago", "from now")
	}

	if detail.Status == domain.StatusFailed && len(detail.FailedTests) > 0 {
		p.Mode = ModePerTest
		return p
	}
	p.Combined = combineLogs(detail.Logs)
	return p
}

func combineLogs(logs []string) string {
	parts := make([]string, 0, len(logs))
	for _, l := range logs {
		if l = normalizeLog(l); l != "" {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		return NoLogs
	}
	return strings.Join(parts, LogSeparator)
}

func normalizeLog(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// Tests returns the failed test names offered by the selector
func (p *Preview) Tests() []string {
	if p.Mode != ModePerTest {
		return nil
	}
	return append([]string(nil), p.Detail.FailedTests...)
}

// Select chooses the failed test at index and returns its log
func (p *Preview) Select(index int) string {
	p.selected = index
	return p.Log()
}

// Selected returns the selected index
func (p *Preview) Selected() int {
	return p.selected
}

// Log returns the log shown for the current selection
func (p *Preview) Log() string {
	if p.Mode == ModeCombined {
		return p.Combined
	}
	logs := p.Detail.Logs
	if p.selected < 0 || p.selected >= len(logs) {
		return LogNotFound
	}
	if l := normalizeLog(logs[p.selected]); l != "" {
		return l
	}
	return NoLogs
}

// SelectedTest resolves the selected index back to a test name
func (p *Preview) SelectedTest() (string, error) {
	if p.Mode != ModePerTest {
		return "", &domain.ResolutionError{Index: p.selected, Reason: "no failed tests recorded"}
	}
	tests := p.Detail.FailedTests
	if p.selected < 0 || p.selected >= len(tests) {
		return "", &domain.ResolutionError{Index: p.selected, Reason: "no such failed test"}
	}
	name := strings.TrimSpace(tests[p.selected])
	if name == "" {
		return "", &domain.ResolutionError{Index: p.selected, Reason: "test has no name"}
	}
	return name, nil
}
