package measure

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned from suspend points after Stop has been called.
	// It marks a user-requested termination, not a defect: Run treats it as
	// a clean outcome.
	ErrStopped = errors.New("measurement stopped")

	// ErrConcurrencyViolation is returned when a session is entered or used
	// from a goroutine other than the one that started the running
	// measurement.
	ErrConcurrencyViolation = errors.New("measurement already running in a different goroutine")

	// ErrTooManyArrays is returned when the dataset would exceed the array
	// ceiling. It almost always means repeated measurements were not
	// enclosed in a Sweep, so every call minted a fresh array.
	ErrTooManyArrays = errors.New("too many data arrays; did you forget to enclose repeated measurements in a Sweep?")

	// ErrClosed is returned when a finished session is used again.
	ErrClosed = errors.New("measurement session is closed")

	// ErrNotRunning is returned when an operation requires an active session.
	ErrNotRunning = errors.New("no measurement is running")
)

// SequenceMismatchError reports an action address re-encountered with a
// different action name: the measured sequence has drifted between
// repetitions, typically via a conditionally skipped branch.
type SequenceMismatchError struct {
	Addr Address
	Want string
	Got  string
}

func (e *SequenceMismatchError) Error() string {
	return fmt.Sprintf("wrong action at indices %s: expected %q, received %q",
		e.Addr, e.Want, e.Got)
}

// NameConflictError reports a result delivered to an existing data array
// under a different name.
type NameConflictError struct {
	Addr Address
	Want string
	Got  string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("existing data array %q at indices %s differs from result %q",
		e.Want, e.Addr, e.Got)
}

// ShapeMismatchError reports a data array whose set-array count no longer
// matches the loop dimensionality plus the result dimensionality.
type ShapeMismatchError struct {
	ArrayID string
	Want    int
	Got     int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("wrong number of set arrays for %s: expected %d, have %d",
		e.ArrayID, e.Want, e.Got)
}

// UnsupportedTypeError reports a value Measure does not know how to
// dispatch.
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("cannot measure %T: not a parameter, callable, map, numeric, bool, or array", e.Value)
}
