package model

import "time"

// Instance is one concrete execution attempt of a Task for one firing cycle.
// Identity is (TaskID, CycleID, Attempt). Queue and Priority are copied from
// the Task at creation so dispatch ordering survives later catalog edits.
type Instance struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	CycleID string `json:"cycle_id"`
	Attempt int    `json:"attempt"`

	State    InstanceState `json:"state"`
	Queue    string        `json:"queue"`
	Priority int           `json:"priority"`

	// Reason records why the instance ended up where it is:
	// "pending timeout", "running timeout", a dependency-block note, an
	// execution failure detail, or a hold explanation while WAITING.
	Reason string `json:"reason,omitempty"`

	// NotBefore gates admission of retry instances until RetryDelay elapses.
	NotBefore *time.Time `json:"not_before,omitempty"`

	// KillRequestedAt is set when the monitor asks the backend to kill a
	// timed-out run; after the kill grace the instance is KILLED regardless.
	KillRequestedAt *time.Time `json:"kill_requested_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AdmittedAt *time.Time `json:"admitted_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// FiringCycle is the logical time bucket shared by every Task fired at the
// same boundary. Parent/child dependency evaluation only compares instances
// from the same cycle.
type FiringCycle struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	CreatedAt time.Time `json:"created_at"`
}

// CycleIDFormat is the layout cycle ids are derived from (boundary time, UTC).
const CycleIDFormat = "2006-01-02T15:04"

// CycleID derives the cycle id for a boundary time.
func CycleID(boundary time.Time) string {
	return boundary.UTC().Format(CycleIDFormat)
}

// ListOptions carries pagination and filters for instance listings.
type ListOptions struct {
	Limit   int
	Offset  int
	State   string
	TaskID  string
	CycleID string
	Queue   string
}

// Clamp bounds Limit and Offset to sane values.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
