// Package submit turns the staging list into one batch submission
package submit

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/staging"
	"github.com/sirupsen/logrus"
)

// Status line texts
const (
	SendingText = "sending..."
	EmptyPrompt = "nothing staged to submit"
	BusyPrompt  = "a submission is already in progress"
)

// Gateway is the subset of the remote gateway the flow calls
type Gateway interface {
	SubmitBatch(ctx context.Context, params [][]string) error
}

// Batch is an in-flight submission
type Batch struct {
	IDs    []uint64
	Params [][]string
}

// Flow guards submissions and updates the staging list on completion.
// Begin and Finish must be called from the goroutine that owns the list.
type Flow struct {
	gw      Gateway
	list    *staging.List
	log     *logrus.Entry
	busy    bool
	message string
}

// New creates a Flow over list
func New(gw Gateway, list *staging.List, log *logrus.Entry) *Flow {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Flow{gw: gw, list: list, log: log}
}

// Begin snapshots the staging list into a batch and marks the flow busy.
// An empty list or a submission already in flight is a *domain.UserInputError.
func (f *Flow) Begin() (Batch, error) {
	if f.busy {
		return Batch{}, &domain.UserInputError{Prompt: BusyPrompt}
	}
	tasks := f.list.List()
	if len(tasks) == 0 {
		return Batch{}, &domain.UserInputError{Prompt: EmptyPrompt}
	}

	b := Batch{
		IDs:    make([]uint64, len(tasks)),
		Params: make([][]string, len(tasks)),
	}
	for i, t := range tasks {
		b.IDs[i] = t.LocalID
		b.Params[i] = t.Pair()
	}
	f.busy = true
	f.message = SendingText
	return b, nil
}

// Send issues the submission call. It touches no flow state.
func (f *Flow) Send(ctx context.Context, b Batch) error {
	if err := f.gw.SubmitBatch(ctx, b.Params); err != nil {
		return fmt.Errorf("submit %d request(s): %w", len(b.Params), err)
	}
	return nil
}

// Finish records the outcome and always clears the busy flag. On success the
// submitted entries leave the list and true is returned so the caller can
// refresh at once; on failure the list is kept for a retry.
func (f *Flow) Finish(b Batch, err error) bool {
	f.busy = false
	if err != nil {
		f.log.WithError(err).WithField("count", len(b.IDs)).Error("submission failed")
		f.message = "error: " + err.Error()
		return false
	}

	f.list.RemoveAll(b.IDs)
	f.message = fmt.Sprintf("sent %d request(s)", len(b.IDs))
	f.log.WithField("count", len(b.IDs)).Info("batch submitted")
	return true
}

// Submit runs Begin, Send and Finish in sequence
func (f *Flow) Submit(ctx context.Context) (bool, error) {
	b, err := f.Begin()
	if err != nil {
		return false, err
	}
	err = f.Send(ctx, b)
	return f.Finish(b, err), err
}

// Busy reports whether a submission is in flight
func (f *Flow) Busy() bool {
	return f.busy
}

// Message returns the status line of the last submission
func (f *Flow) Message() string {
	return f.message
}
