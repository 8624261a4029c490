package catalog

import (
	"context"
	"time"

	"github.com/me/tempo/pkg/model"
	"github.com/robfig/cron/v3"
)

// Catalog is the read-only view of task definitions the tracker consumes.
// Snapshot returns only valid, non-removed tasks; the result is immutable
// for the duration of a tick.
type Catalog interface {
	Snapshot(ctx context.Context) ([]*model.Task, error)
}

// cronParser accepts the standard five-field format plus descriptors
// (@daily, @every ...), matching what catalog authors expect.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateTask checks the static scheduling metadata of a single task.
// Structural problems (cycles, dangling parents) are the graph's job; this
// covers everything decidable from the task alone.
func ValidateTask(t *model.Task) *model.CatalogIntegrityError {
	if t.ID == "" {
		return model.NewCatalogIntegrityError(t.ID, "empty task id")
	}
	if !model.KnownPeriod(t.Period) {
		return model.NewCatalogIntegrityError(t.ID, "unknown period %q", t.Period)
	}
	if t.Period == model.PeriodCron {
		if t.CronSpec == "" {
			return model.NewCatalogIntegrityError(t.ID, "period cron requires a cron expression")
		}
		if _, err := cronParser.Parse(t.CronSpec); err != nil {
			return model.NewCatalogIntegrityError(t.ID, "bad cron expression %q: %v", t.CronSpec, err)
		}
	}
	for _, dep := range t.DependsOn {
		if dep.Parent == "" {
			return model.NewCatalogIntegrityError(t.ID, "dependency with empty parent id")
		}
		if !model.KnownCondition(dep.Condition) {
			return model.NewCatalogIntegrityError(t.ID, "unknown condition kind %q on parent %s", dep.Condition, dep.Parent)
		}
	}
	if t.Retries < 0 {
		return model.NewCatalogIntegrityError(t.ID, "negative retries %d", t.Retries)
	}
	if t.Payload != nil && t.Payload.Type == "" {
		return model.NewCatalogIntegrityError(t.ID, "payload without a job type")
	}
	return nil
}

// ApplyDefaults normalizes optional task fields in place: empty queue maps
// to "default", missing condition kinds to "success", zero timeouts to the
// given fallbacks.
func ApplyDefaults(t *model.Task, pendingTimeout, runningTimeout time.Duration) {
	if t.Queue == "" {
		t.Queue = "default"
	}
	for i := range t.DependsOn {
		if t.DependsOn[i].Condition == "" {
			t.DependsOn[i].Condition = model.ConditionSuccess
		}
	}
	if t.PendingTimeout <= 0 {
		t.PendingTimeout = pendingTimeout
	}
	if t.RunningTimeout <= 0 {
		t.RunningTimeout = runningTimeout
	}
}
