package model

import "time"

// Period defines how often a Task fires.
type Period string

const (
	PeriodOnce    Period = "once"
	PeriodHourly  Period = "hourly"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	// PeriodCron fires on a cron expression carried in Task.CronSpec.
	PeriodCron Period = "cron"
)

// KnownPeriod returns true for periods the trigger understands.
func KnownPeriod(p Period) bool {
	switch p {
	case PeriodOnce, PeriodHourly, PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodCron:
		return true
	}
	return false
}

// ConditionKind is the closed set of parent-edge conditions.
// Unknown kinds are a catalog integrity error, never a guess.
type ConditionKind string

const (
	// ConditionSuccess is satisfied when the parent instance succeeded, or
	// failed while the parent task is marked SoftFail.
	ConditionSuccess ConditionKind = "success"
	// ConditionForce is satisfied by any terminal parent state.
	ConditionForce ConditionKind = "force"
)

// KnownCondition returns true for condition kinds the resolver understands.
func KnownCondition(k ConditionKind) bool {
	return k == ConditionSuccess || k == ConditionForce
}

// Dependency declares one parent edge of a Task.
type Dependency struct {
	Parent    string        `yaml:"task" json:"task"`
	Condition ConditionKind `yaml:"condition" json:"condition"`
}

// JobType identifies which execution backend runs a payload.
type JobType string

const (
	JobTypeSQL       JobType = "sql"
	JobTypeMapReduce JobType = "mapreduce"
	JobTypeSpark     JobType = "spark"
	JobTypeShell     JobType = "shell"
)

// Payload is what a real Task hands to the execution backend. MirrorID pins
// the code snapshot to execute; Args is opaque to the scheduler.
type Payload struct {
	Type     JobType `yaml:"type" json:"type"`
	MirrorID string  `yaml:"mirror_id" json:"mirror_id"`
	Args     string  `yaml:"args" json:"args"`
}

// Task is a schedulable template from the Task Catalog. The catalog owns
// Tasks; the scheduler core reads an immutable snapshot of them each tick.
type Task struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Owners []string `json:"owners,omitempty"`

	Period   Period `json:"period"`
	CronSpec string `json:"cron,omitempty"`
	Valid    bool   `json:"valid"`
	Removed  bool   `json:"removed"`

	DependsOn []Dependency `json:"depends_on,omitempty"`

	Queue          string        `json:"queue"`
	Priority       int           `json:"priority"`
	PendingTimeout time.Duration `json:"pending_timeout"`
	RunningTimeout time.Duration `json:"running_timeout"`
	Retries        int           `json:"retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	SoftFail       bool          `json:"soft_fail"`

	// Payload is nil for virtual tasks (pure dependency join points).
	Payload *Payload `json:"payload,omitempty"`
}

// IsVirtual reports whether this Task has no payload. Virtual instances
// succeed on admission without touching the execution backend.
func (t *Task) IsVirtual() bool {
	return t.Payload == nil
}

// ParentIDs returns the declared parent task ids.
func (t *Task) ParentIDs() []string {
	ids := make([]string, len(t.DependsOn))
	for i, d := range t.DependsOn {
		ids[i] = d.Parent
	}
	return ids
}
