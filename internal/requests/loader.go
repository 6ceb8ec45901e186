// Package requests loads the review requests of the selected component into
// a selector. An empty answer shortly after a selection change is shown as
// "loading" because the backend may still be ingesting.
package requests

import (
	"context"
	"fmt"
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Gateway is the subset of the remote gateway the loader calls
type Gateway interface {
	ClearShortlist(ctx context.Context) error
	IngestRequests(ctx context.Context, owner, repo string) error
	Shortlist(ctx context.Context) ([]domain.ReviewRequest, error)
}

// Expansion is the pagination state of the selector
type Expansion int

const (
	Collapsed Expansion = iota // first DisplayLimit entries plus "load more"
	Expanded                   // placeholder plus every entry
)

func (e Expansion) String() string {
	if e == Expanded {
		return "expanded"
	}
	return "collapsed"
}

// IngestRequest is the pair of calls issued after a component change
type IngestRequest struct {
	Generation uint64
	Component  string
	Owner      string
	Repo       string
}

// Result is one shortlist fetch
type Result struct {
	Generation uint64
	Requests   []domain.ReviewRequest
	Err        error
}

// Loader is the selector state machine. Its methods are not safe for
// concurrent use; Ingest and Fetch touch no state and may run elsewhere.
type Loader struct {
	gw    Gateway
	cfg   config.RequestsConfig
	clock scheduler.Clock
	log   *logrus.Entry

	component  string
	generation uint64
	lastChange time.Time // zero once the grace window no longer applies
	expansion  Expansion
	requests   []domain.ReviewRequest
	options    []Option
	selected   int
}

// New creates a Loader with no component selected
func New(gw Gateway, cfg config.RequestsConfig, clock scheduler.Clock, log *logrus.Entry) *Loader {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{
		gw:      gw,
		cfg:     cfg,
		clock:   clock,
		log:     log,
		options: []Option{sentinel(KindPrompt)},
	}
}

// SetConfig replaces the tunables. Takes effect on the next Apply.
func (l *Loader) SetConfig(cfg config.RequestsConfig) {
	l.cfg = cfg
}

// Select switches to component. The selector drops to the loading sentinel
// and the returned request must be passed to Ingest.
func (l *Loader) Select(component string) (IngestRequest, error) {
	if component == "" {
		return IngestRequest{}, &domain.UserInputError{Prompt: "select a component"}
	}

	l.generation++
	l.component = component
	l.lastChange = l.clock.Now()
	l.expansion = Collapsed
	l.requests = nil
	l.options = []Option{sentinel(KindLoading)}
	l.selected = 0

	l.log.WithFields(logrus.Fields{"component": component, "generation": l.generation}).Debug("component selected")
	return IngestRequest{
		Generation: l.generation,
		Component:  component,
		Owner:      l.cfg.Owner,
		Repo:       l.cfg.RepoFor(component),
	}, nil
}

// Reset returns to the no-selection state
func (l *Loader) Reset() {
	l.generation++
	l.component = ""
	l.lastChange = time.Time{}
	l.expansion = Collapsed
	l.requests = nil
	l.options = []Option{sentinel(KindPrompt)}
	l.selected = 0
}

// Ingest clears the remote shortlist, then asks the backend to fetch the
// component's requests
func (l *Loader) Ingest(ctx context.Context, req IngestRequest) error {
	if err := l.gw.ClearShortlist(ctx); err != nil {
		return fmt.Errorf("clear shortlist: %w", err)
	}
	if err := l.gw.IngestRequests(ctx, req.Owner, req.Repo); err != nil {
		return fmt.Errorf("ingest %s/%s: %w", req.Owner, req.Repo, err)
	}
	return nil
}

// Fetch reads the shortlist, tagged with the current generation
func (l *Loader) Fetch(ctx context.Context) Result {
	return l.FetchFor(ctx, l.generation)
}

// FetchFor reads the shortlist on behalf of generation gen. It touches no
// loader state, so it may run off the goroutine that owns the Loader.
func (l *Loader) FetchFor(ctx context.Context, gen uint64) Result {
	prs, err := l.gw.Shortlist(ctx)
	return Result{Generation: gen, Requests: prs, Err: err}
}

// Generation returns the selection generation results are matched against
func (l *Loader) Generation() uint64 {
	return l.generation
}

// Apply folds a fetch result into the selector. Results issued before the
// latest component change are dropped. Returns false when nothing changed.
func (l *Loader) Apply(res Result) bool {
	if l.component == "" || res.Generation != l.generation {
		return false
	}

	if res.Err != nil {
		l.log.WithError(res.Err).WithField("component", l.component).Error("update review requests")
		l.requests = nil
		l.options = []Option{sentinel(KindFailed)}
		l.selected = 0
		return true
	}

	if len(res.Requests) == 0 {
		l.requests = nil
		l.selected = 0
		if l.withinGrace() {
			l.options = []Option{sentinel(KindLoading)}
			return true
		}
		l.lastChange = time.Time{}
		l.options = []Option{sentinel(KindNone)}
		return true
	}

	previous := l.Selected()
	l.lastChange = time.Time{}
	l.requests = append([]domain.ReviewRequest(nil), res.Requests...)
	l.rebuild()
	l.reselect(previous)
	return true
}

// Refresh fetches and applies in one step. No-op without a component.
func (l *Loader) Refresh(ctx context.Context) error {
	if l.component == "" {
		return nil
	}
	res := l.Fetch(ctx)
	l.Apply(res)
	return res.Err
}

func (l *Loader) withinGrace() bool {
	if l.lastChange.IsZero() {
		return false
	}
	return l.clock.Now().Sub(l.lastChange) < l.cfg.GraceWindow.Duration
}

func (l *Loader) displayLimit() int {
	if l.cfg.DisplayLimit < 1 {
		return 1
	}
	return l.cfg.DisplayLimit
}

func (l *Loader) rebuild() {
	limit := l.displayLimit()
	opts := make([]Option, 0, len(l.requests)+1)

	if l.expansion == Expanded {
		opts = append(opts, sentinel(KindPlaceholder))
		for _, pr := range l.requests {
			opts = append(opts, requestOption(pr, l.cfg.TitleLimit))
		}
		l.options = opts
		return
	}

	for i, pr := range l.requests {
		if i == limit {
			break
		}
		opts = append(opts, requestOption(pr, l.cfg.TitleLimit))
	}
	if len(l.requests) > limit {
		opts = append(opts, sentinel(KindLoadMore))
	}
	l.options = opts
}

// reselect keeps the previous request selected when it survived the
// refresh, otherwise falls back to the first option
func (l *Loader) reselect(previous Option) {
	l.selected = 0
	if previous.Kind != KindRequest {
		return
	}
	for i, o := range l.options {
		if o.Kind == KindRequest && o.Value() == previous.Value() {
			l.selected = i
			return
		}
	}
}

// Choose selects the option at index. Choosing "load more" expands the
// list once; the expansion is kept across refreshes until the component changes.
func (l *Loader) Choose(index int) error {
	if index < 0 || index >= len(l.options) {
		return &domain.UserInputError{Prompt: fmt.Sprintf("no option %d", index)}
	}
	opt := l.options[index]
	switch {
	case opt.Kind == KindLoadMore:
		l.expand()
		return nil
	case opt.Disabled():
		return &domain.UserInputError{Prompt: "select a request"}
	}
	l.selected = index
	return nil
}

// ChooseValue selects the option with the given value
func (l *Loader) ChooseValue(value string) error {
	if value == LoadMoreValue {
		l.expand()
		return nil
	}
	for i, o := range l.options {
		if o.Kind == KindRequest && o.Value() == value {
			l.selected = i
			return nil
		}
	}
	return &domain.UserInputError{Prompt: fmt.Sprintf("request #%s is not listed", value)}
}

func (l *Loader) expand() {
	if l.expansion == Expanded {
		return
	}
	l.expansion = Expanded
	l.rebuild()
	l.selected = 0
}

// Component returns the selected component, "" when none
func (l *Loader) Component() string {
	return l.component
}

// Expansion returns the pagination state
func (l *Loader) Expansion() Expansion {
	return l.expansion
}

// Options returns a copy of the current selector options
func (l *Loader) Options() []Option {
	return append([]Option(nil), l.options...)
}

// SelectedIndex returns the index of the selected option
func (l *Loader) SelectedIndex() int {
	return l.selected
}

// Selected returns the selected option
func (l *Loader) Selected() Option {
	if l.selected < 0 || l.selected >= len(l.options) {
		return sentinel(KindPrompt)
	}
	return l.options[l.selected]
}

// Requests returns the full list behind the selector
func (l *Loader) Requests() []domain.ReviewRequest {
	return append([]domain.ReviewRequest(nil), l.requests...)
}
