package backend

import (
	"context"
	"time"

	"github.com/me/tempo/pkg/model"
)

// Submission carries everything a backend needs to start a job run. It is a
// flattened view of an Instance plus its Task payload so backends never touch
// the catalog or the store. Args is opaque to the scheduler; each backend
// interprets it for its own job type.
type Submission struct {
	InstanceID string
	TaskID     string
	CycleID    string
	Attempt    int
	MirrorID   string
	Args       string
}

// Report is the terminal result a backend delivers for a submitted instance.
// Reports are drained by the tracker at the start of each tick.
type Report struct {
	InstanceID string
	Outcome    model.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
	Detail     string
}

// Backend is a pluggable execution engine for one job type.
type Backend interface {
	// Type returns the job type this backend handles.
	Type() model.JobType

	// Submit starts the job asynchronously. The backend delivers a Report on
	// its report channel when the run reaches a terminal outcome.
	Submit(ctx context.Context, sub *Submission) error

	// Kill requests termination of a running instance. Backends that cannot
	// locate the run return an error; the caller treats that as best-effort.
	Kill(ctx context.Context, instanceID string) error
}
