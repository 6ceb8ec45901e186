package domain

import "strings"

// Status is a task status as reported by the backend, normalized to lower case
type Status string

const (
	StatusQueueing Status = "queueing"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// ParseStatus normalizes a raw status. Legacy free-text values are kept
// (lower-cased) so they still compare and render predictably.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Active reports whether the status belongs in the queue view
func (s Status) Active() bool {
	return s == StatusQueueing || s == StatusRunning
}

// Known reports whether the status is one of the enumerated states
func (s Status) Known() bool {
	switch s {
	case StatusQueueing, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}
