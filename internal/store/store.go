package store

import (
	"context"
	"time"

	"github.com/me/tempo/pkg/model"
)

// Store defines the persistence layer for tempo scheduling state.
//
// Instances and firing cycles must be durable across tracker restarts so the
// at-most-one-firing-per-boundary guarantee and retry counts survive.
type Store interface {
	// Firing cycles
	EnsureCycle(ctx context.Context, c *model.FiringCycle) error
	GetCycle(ctx context.Context, id string) (*model.FiringCycle, error)
	ListCycles(ctx context.Context, limit int) ([]*model.FiringCycle, error)

	// Instances
	CreateInstance(ctx context.Context, inst *model.Instance) error
	GetInstance(ctx context.Context, id string) (*model.Instance, error)
	UpdateInstance(ctx context.Context, inst *model.Instance) error
	GetInstancesByState(ctx context.Context, state model.InstanceState) ([]*model.Instance, error)
	GetInstancesByCycle(ctx context.Context, cycleID string) ([]*model.Instance, error)
	ListInstances(ctx context.Context, opts model.ListOptions) ([]*model.Instance, int, error)
	// LatestAttempt returns the instance with the highest attempt number for
	// (taskID, cycleID), or nil if the task has no instance in the cycle.
	LatestAttempt(ctx context.Context, taskID, cycleID string) (*model.Instance, error)
	CountRunningByQueue(ctx context.Context) (map[string]int, error)

	// Trigger watermarks: last fired cycle id per task ("" = never fired).
	GetTriggerMark(ctx context.Context, taskID string) (string, error)
	SetTriggerMark(ctx context.Context, taskID, cycleID string, firedAt time.Time) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
