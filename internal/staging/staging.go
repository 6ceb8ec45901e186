// Package staging holds the local, not yet submitted batch of test runs
package staging

import (
	"strconv"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
)

// Row is the rendered form of a staged task
type Row struct {
	LocalID   uint64
	Component string
	Request   string
}

// List is the staging list. IDs are never reused within one List.
type List struct {
	nextID uint64
	tasks  []domain.StagedTask
}

// New creates an empty staging list
func New() *List {
	return &List{nextID: 1}
}

// Add stages a run of component against review request number
func (l *List) Add(component string, number int, title string) (domain.StagedTask, error) {
	if component == "" {
		return domain.StagedTask{}, &domain.UserInputError{Prompt: "select a component"}
	}
	if number <= 0 {
		return domain.StagedTask{}, &domain.UserInputError{Prompt: "select a review request"}
	}

	task := domain.StagedTask{
		LocalID:       l.nextID,
		Component:     component,
		RequestNumber: number,
		RequestTitle:  title,
	}
	l.nextID++
	l.tasks = append(l.tasks, task)
	return task, nil
}

// AddSelection stages the option currently chosen in the request selector.
// Sentinel options are rejected with a prompt naming the reason.
func (l *List) AddSelection(component string, opt requests.Option) (domain.StagedTask, error) {
	if component == "" {
		return domain.StagedTask{}, &domain.UserInputError{Prompt: "select a component"}
	}
	switch opt.Kind {
	case requests.KindRequest:
		return l.Add(component, opt.Request.Number, opt.Request.Title)
	case requests.KindLoading:
		return domain.StagedTask{}, &domain.UserInputError{Prompt: "review requests are still loading, please wait"}
	case requests.KindNone:
		return domain.StagedTask{}, &domain.UserInputError{Prompt: component + " has no open review requests"}
	case requests.KindFailed:
		return domain.StagedTask{}, &domain.UserInputError{Prompt: "review requests could not be loaded"}
	}
	return domain.StagedTask{}, &domain.UserInputError{Prompt: "select a review request"}
}

// Remove drops the task with localID. Returns false when absent.
func (l *List) Remove(localID uint64) bool {
	for i, t := range l.tasks {
		if t.LocalID == localID {
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll drops every task whose ID is in ids and returns how many were removed
func (l *List) RemoveAll(ids []uint64) int {
	drop := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := l.tasks[:0]
	removed := 0
	for _, t := range l.tasks {
		if drop[t.LocalID] {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	l.tasks = kept
	return removed
}

// List returns the staged tasks in insertion order
func (l *List) List() []domain.StagedTask {
	return append([]domain.StagedTask(nil), l.tasks...)
}

// Len returns the number of staged tasks
func (l *List) Len() int {
	return len(l.tasks)
}

// Rows renders the list
func (l *List) Rows() []Row {
	rows := make([]Row, len(l.tasks))
	for i, t := range l.tasks {
		rows[i] = Row{LocalID: t.LocalID, Component: t.Component, Request: t.Label()}
	}
	return rows
}

// ParseNumber parses a request number typed by the user
func ParseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &domain.UserInputError{Prompt: "review request number must be a positive integer, got " + strconv.Quote(s)}
	}
	return n, nil
}
