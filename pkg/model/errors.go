package model

import "fmt"

// Instance failure reasons recorded on Reason and reported to the audit sink.
const (
	ReasonPendingTimeout = "pending timeout"
	ReasonRunningTimeout = "running timeout"
	ReasonTaskVanished   = "task no longer in catalog"
)

// CatalogIntegrityError flags a Task whose declared edges cannot be trusted:
// a dependency cycle, a dangling parent reference, or malformed scheduling
// metadata. The offending Task is excluded from scheduling for the tick and
// the error is surfaced to the audit sink; it is never fatal to the tracker.
type CatalogIntegrityError struct {
	TaskID string
	Detail string
}

func (e *CatalogIntegrityError) Error() string {
	return fmt.Sprintf("catalog integrity: task %s: %s", e.TaskID, e.Detail)
}

// NewCatalogIntegrityError builds a CatalogIntegrityError with a formatted detail.
func NewCatalogIntegrityError(taskID, format string, args ...any) *CatalogIntegrityError {
	return &CatalogIntegrityError{TaskID: taskID, Detail: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is returned when an instance state transition is invalid.
type InvalidTransitionError struct {
	InstanceID string
	From       InstanceState
	To         InstanceState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid instance state transition: %s → %s (instance %s)", e.From, e.To, e.InstanceID)
}
