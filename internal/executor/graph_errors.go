package executor

import "fmt"

// CircularDependencyError reports a cycle found while computing levels for
// the dependency graph (§4.2 step 2). OffendingID names a task on the cycle,
// discovered as the back-edge target during the depth-first traversal.
type CircularDependencyError struct {
	OffendingID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected at task %s", e.OffendingID)
}

// UnknownDependencyError reports a declared dependency id with no matching
// task in the plan (§4.2 step 1).
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependencyID)
}

// InconsistentGraphError reports a forward/inverse edge mismatch (§4.2 step
// 3): a task believed to depend on another whose own dependents list does not
// name it back.
type InconsistentGraphError struct {
	TaskID       string
	DependencyID string
}

func (e *InconsistentGraphError) Error() string {
	return fmt.Sprintf("graph inconsistent between task %s and dependency %s: forward and inverse edges disagree", e.TaskID, e.DependencyID)
}

// IsCircularDependency reports whether err is a *CircularDependencyError.
func IsCircularDependency(err error) bool {
	_, ok := err.(*CircularDependencyError)
	return ok
}

// IsUnknownDependency reports whether err is an *UnknownDependencyError.
func IsUnknownDependency(err error) bool {
	_, ok := err.(*UnknownDependencyError)
	return ok
}
