// Package kernelerr defines the sentinel error values surfaced at core
// kernel APIs. Allocation exhaustion and task-table/id failures are normal,
// checked error returns; the remaining kinds are programmer mistakes.
// internal/pool checks for an invalid pointer only under the tkdebug build
// tag; internal/task reports an invalid transition in every build.
package kernelerr

import "errors"

var (
	// ErrAllocationExhausted is returned when a pool or the bump arena
	// cannot satisfy a request.
	ErrAllocationExhausted = errors.New("kernelerr: allocation exhausted")

	// ErrTaskTableFull is returned from CreateTask when the scheduler
	// cannot assign a new task id.
	ErrTaskTableFull = errors.New("kernelerr: task table full")

	// ErrInvalidTaskId is returned from DestroyTask/lookup on a miss or a
	// destroyed-id reuse.
	ErrInvalidTaskId = errors.New("kernelerr: invalid task id")

	// ErrInvalidTransition indicates a requested task state change
	// violates the state-transition table. task.SetState returns it in
	// every build.
	ErrInvalidTransition = errors.New("kernelerr: invalid state transition")

	// ErrInvalidPointer indicates a free of a pointer outside any pool's
	// arena, or misaligned to a block boundary. Pool.Deallocate checks for
	// it only under the tkdebug build tag; numa.Manager.Deallocate returns
	// it in every build for a pointer no pool owns.
	ErrInvalidPointer = errors.New("kernelerr: invalid pointer")
)

// Is reports whether err wraps target, delegating to errors.Is so callers
// can match sentinels through any wrapping this package's consumers add.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
