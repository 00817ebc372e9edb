package task

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a task name is not in the registry.
var ErrNotFound = errors.New("task not found")

// ValidationError rejects a bad schedule description before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid task: " + e.Reason
	}
	return fmt.Sprintf("invalid task: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CancelFailure is one row whose native cancel failed during a bulk delete.
type CancelFailure struct {
	TaskName    string
	NativeJobID string
	Err         error
}

// PartialFailure reports rows removed from the registry whose native job
// could not be canceled and may need manual cleanup.
type PartialFailure struct {
	Failures []CancelFailure
}

func (e *PartialFailure) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "partial failure"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", f.TaskName, f.NativeJobID, f.Err))
	}
	return fmt.Sprintf("%d native cancel(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual cancel errors to errors.Is/As.
func (e *PartialFailure) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
