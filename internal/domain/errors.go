package domain

import (
	"errors"
	"fmt"
)

// UserInputError blocks an action because of a missing or sentinel selection.
// It is shown to the user and changes no state.
type UserInputError struct {
	Prompt string
}

func (e *UserInputError) Error() string { return e.Prompt }

// NetworkError is a rejected call or a non-success HTTP status
type NetworkError struct {
	Op         string
	StatusCode int    // 0 when the call never got a response
	Message    string // the payload's "error" field, if any
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": request failed"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DataShapeError means the payload did not have the expected shape
type DataShapeError struct {
	Op   string
	Want string
	Err  error
}

func (e *DataShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: expected %s: %v", e.Op, e.Want, e.Err)
	}
	return fmt.Sprintf("%s: expected %s", e.Op, e.Want)
}

func (e *DataShapeError) Unwrap() error { return e.Err }

// ResolutionError means a selected failed-test index has no name or log
type ResolutionError struct {
	Index  int
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed test %d: %s", e.Index, e.Reason)
}

// IsUserInput reports whether err is a UserInputError
func IsUserInput(err error) bool {
	var target *UserInputError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is a NetworkError
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsDataShape reports whether err is a DataShapeError
func IsDataShape(err error) bool {
	var target *DataShapeError
	return errors.As(err, &target)
}

// IsResolution reports whether err is a ResolutionError
func IsResolution(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}
