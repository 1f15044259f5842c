package dag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for construction/initialization faults. These are the
// only errors Start ever returns synchronously; per-task action failures
// never surface through this path (spec.md §7).
var (
	// ErrLoopGraph indicates the dependency graph contains a cycle,
	// including a single-task self-loop.
	ErrLoopGraph = errors.New("dag: dependency graph contains a cycle")

	// ErrEmptyJob indicates no tasks were supplied to the engine.
	ErrEmptyJob = errors.New("dag: no tasks to execute")

	// ErrInnerPanic indicates a task goroutine terminated unexpectedly
	// instead of returning through its Action's normal Output path.
	ErrInnerPanic = errors.New("dag: task execution panicked")

	// ErrParseError wraps a failure from a Parser implementation.
	ErrParseError = errors.New("dag: configuration parse error")
)

// RelyTaskIllegalError indicates a task declared a predecessor id that is
// not present in the task set handed to the engine.
type RelyTaskIllegalError struct {
	TaskName string
}

func (e *RelyTaskIllegalError) Error() string {
	return fmt.Sprintf("dag: task %q depends on an unknown predecessor", e.TaskName)
}

// newRelyTaskIllegal builds a RelyTaskIllegalError wrapped with a stack
// trace at the point of failure, matching the corpus's pkg/errors usage
// at construction/validation boundaries.
func newRelyTaskIllegal(taskName string) error {
	return errors.WithStack(&RelyTaskIllegalError{TaskName: taskName})
}

// parseError wraps an underlying Parser failure. It matches
// errors.Is(err, ErrParseError) via Is, and unwraps to the original
// cause for errors.As.
type parseError struct {
	cause error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrParseError.Error(), e.cause)
}

func (e *parseError) Unwrap() error { return e.cause }

func (e *parseError) Is(target error) bool { return target == ErrParseError }

// wrapParseError wraps an underlying Parser error as ErrParseError,
// preserving it for errors.Is/errors.As while attaching a stack trace.
func wrapParseError(err error) error {
	return errors.WithStack(&parseError{cause: err})
}
