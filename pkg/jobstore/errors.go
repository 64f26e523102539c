package jobstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for job store operations.
var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrJobState indicates a lifecycle transition was attempted from a
	// state that does not permit it.
	ErrJobState = errors.New("job state violation")
)

// StateError reports a rejected lifecycle transition.
type StateError struct {
	// ID is the job row id.
	ID int64

	// Status is the job's status at the time of the attempt.
	Status Status

	// Op is the rejected transition (e.g., "cancel", "delete").
	Op string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("job %d: cannot %s while %s", e.ID, e.Op, e.Status)
}

// Unwrap allows errors.Is(err, ErrJobState).
func (e *StateError) Unwrap() error {
	return ErrJobState
}

// IsNotFound returns true if the error indicates a missing job.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStateError returns true if the error is a rejected transition.
func IsStateError(err error) bool {
	return errors.Is(err, ErrJobState)
}
