package segment

import (
	"errors"
	"fmt"
)

// ErrorKind categorises engine failures.
type ErrorKind string

const (
	// KindPrecondition covers shape mismatches, thresholds outside [0,1] and
	// invalid step parameters. Nothing has been computed when it is returned.
	KindPrecondition ErrorKind = "precondition"

	// KindDiverged means a descent step produced NaN or ±Inf in the gradient or
	// in the next field. The session that hit it refuses further steps.
	KindDiverged ErrorKind = "diverged"

	// KindStaleStatistics is returned by Step and Energy on a session with
	// explicit statistics whose region means are outdated.
	KindStaleStatistics ErrorKind = "stale_statistics"
)

// Error is a structured engine error.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string

	// Step is the 1-based iteration that failed (diverged errors only).
	Step int
	// Index is the row-major pixel index of the offending value, or -1.
	Index int
	// Value is the offending non-finite value (diverged errors only).
	Value float64

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	if e.Kind == KindDiverged {
		msg = fmt.Sprintf("%s (step %d, pixel %d, value %g)", msg, e.Step, e.Index, e.Value)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

func preconditionError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Message: fmt.Sprintf(format, args...), Index: -1}
}

func divergedError(op, where string, step, index int, value float64) *Error {
	return &Error{
		Kind:    KindDiverged,
		Op:      op,
		Message: "non-finite value in " + where,
		Step:    step,
		Index:   index,
		Value:   value,
	}
}

// IsKind reports whether err is, or wraps, an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
