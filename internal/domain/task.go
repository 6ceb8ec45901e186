package domain

import (
	"fmt"
	"regexp"
)

var digitsRegex = regexp.MustCompile(`\d+`)

// TaskParam is one {component, request} pair of a submitted batch
type TaskParam struct {
	Component     string
	RequestNumber string
}

// Line renders the parameter as "component [#N]", using "-" for missing parts
func (p TaskParam) Line() string {
	component := p.Component
	if component == "" {
		component = "-"
	}
	number := p.RequestNumber
	if number == "" {
		number = "-"
	}
	return fmt.Sprintf("%s [#%s]", component, number)
}

// RemoteTask is an entry of the backend queue
type RemoteTask struct {
	ID        string
	Status    Status
	RawStatus string
	Params    []TaskParam
	Name      string
}

// HasID reports whether the task carries an identifier usable for deletion
func (t RemoteTask) HasID() bool {
	return t.ID != "" && t.ID != "-"
}

// Lines returns the display label of the task, one line per parameter,
// falling back to the free-text name.
func (t RemoteTask) Lines() []string {
	return paramLines(t.Params, t.Name)
}

// RunningTask is a progress entry of the optional running collection
type RunningTask struct {
	ID        string
	Name      string
	Percent   int
	Remaining int // seconds
}

// HistoryRecord is an entry of the backend history
type HistoryRecord struct {
	Time     string
	TaskName string
	Result   string
	Params   []TaskParam
}

// ResultStatus returns the normalized result
func (r HistoryRecord) ResultStatus() Status {
	return ParseStatus(r.Result)
}

// FailedTestID extracts the last integer substring of the task name
func (r HistoryRecord) FailedTestID() (string, bool) {
	all := digitsRegex.FindAllString(r.TaskName, -1)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1], true
}

// HasArtifacts reports whether preview and download apply to the record
func (r HistoryRecord) HasArtifacts() bool {
	_, ok := r.FailedTestID()
	return ok && r.ResultStatus() != StatusSuccess
}

// Lines returns the display label of the record
func (r HistoryRecord) Lines() []string {
	return paramLines(r.Params, r.TaskName)
}

// TaskDetail is the full result of a single task
type TaskDetail struct {
	Status      Status
	RawStatus   string
	Timestamp   int64 // epoch seconds, 0 when unknown
	FailedTests []string
	Logs        []string
}

func paramLines(params []TaskParam, fallback string) []string {
	if len(params) == 0 {
		if fallback == "" {
			fallback = "-"
		}
		return []string{fallback}
	}
	lines := make([]string, len(params))
	for i, p := range params {
		lines[i] = p.Line()
	}
	return lines
}
