package engine

import (
	"errors"
	"fmt"
)

// ErrNoMarks distinguishes "no marks entered yet" from a legitimate score
// of zero. Subjects in this state are excluded from a result instead of
// being counted as failed.
var ErrNoMarks = errors.New("no marks available")

// ValidationError covers malformed input: a score outside [0, max], a
// non-positive weight, a zero total weight. Never retried automatically.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// ConflictError covers duplicate writes: a second mark for the same
// (assignment, student, test type, date) tuple, or recomputing a published
// result without the explicit recompute flag.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Msg }

// ConfigurationError covers a stored formula whose mode the engine does not
// implement. It fails the one computation that referenced the formula, not
// a whole class batch.
type ConfigurationError struct {
	Formula string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	if e.Formula == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: formula %q: %s", e.Formula, e.Msg)
}

// InsufficientDataError means a student had zero scoreable subjects for the
// term; no result row is written.
type InsufficientDataError struct {
	StudentID    int64
	AcademicYear string
	Term         string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: student %d has no scoreable subjects in %s %s",
		e.StudentID, e.AcademicYear, e.Term)
}
