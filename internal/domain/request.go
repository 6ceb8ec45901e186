package domain

import (
	"fmt"
	"strconv"
)

// ReviewRequest is an open review request (pull request) of a component
type ReviewRequest struct {
	Number int
	Title  string
}

// Value returns the selector value of the request
func (r ReviewRequest) Value() string {
	return strconv.Itoa(r.Number)
}

// Label renders "#N: title", truncating the title to limit runes for display.
// A limit <= 0 disables truncation.
func (r ReviewRequest) Label(limit int) string {
	title := r.Title
	if runes := []rune(title); limit > 0 && len(runes) > limit {
		title = string(runes[:limit]) + "..."
	}
	return fmt.Sprintf("#%d: %s", r.Number, title)
}

// StagedTask is a locally staged, not yet submitted test run
type StagedTask struct {
	LocalID       uint64
	Component     string
	RequestNumber int
	RequestTitle  string
}

// Label renders the request column of the staging list
func (t StagedTask) Label() string {
	return fmt.Sprintf("#%d: %s", t.RequestNumber, t.RequestTitle)
}

// Pair returns the backend batch shape [component, requestNumber]
func (t StagedTask) Pair() []string {
	return []string{t.Component, strconv.Itoa(t.RequestNumber)}
}
