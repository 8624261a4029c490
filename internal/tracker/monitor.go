package tracker

import (
	"context"

	"github.com/me/tempo/internal/graph"
	"github.com/me/tempo/pkg/model"
)

// monitor polices admitted and running instances against their task's
// timeouts, and spawns retry attempts for retryable failures.
func (l *Loop) monitor(ctx context.Context, g *graph.Graph) error {
	if err := l.flagOrphans(ctx, g); err != nil {
		return err
	}
	if err := l.expirePending(ctx, g); err != nil {
		return err
	}
	if err := l.expireRunning(ctx, g); err != nil {
		return err
	}
	return l.spawnRetries(ctx, g)
}

// flagOrphans stamps a reason on non-terminal WAITING and READY instances
// whose task vanished from the snapshot (valid flipped off, or deleted).
// They stay frozen rather than timing out against limits that no longer
// exist; the reason makes the freeze visible through the status API. RUNNING
// instances are untouched and finish normally via their backend report.
func (l *Loop) flagOrphans(ctx context.Context, g *graph.Graph) error {
	for _, state := range []model.InstanceState{model.InstanceWaiting, model.InstanceReady} {
		insts, err := l.store.GetInstancesByState(ctx, state)
		if err != nil {
			return err
		}
		for _, inst := range insts {
			if g.Task(inst.TaskID) != nil {
				continue
			}
			l.hold(ctx, inst, model.ReasonTaskVanished)
		}
	}
	return nil
}

// expirePending fails READY instances that sat past their pending timeout
// without winning queue capacity. The failure counts toward retries like any
// other.
func (l *Loop) expirePending(ctx context.Context, g *graph.Graph) error {
	ready, err := l.store.GetInstancesByState(ctx, model.InstanceReady)
	if err != nil {
		return err
	}

	now := l.now()
	for _, inst := range ready {
		t := g.Task(inst.TaskID)
		if t == nil || inst.AdmittedAt == nil {
			continue
		}
		if now.Sub(*inst.AdmittedAt) < t.PendingTimeout {
			continue
		}
		if err := l.finish(ctx, inst, model.InstanceFailed, model.ReasonPendingTimeout); err != nil {
			l.logger.Error("expire pending", "instance_id", inst.ID, "error", err)
		}
	}
	return nil
}

// expireRunning asks the backend to kill runs past their running timeout,
// then marks them KILLED once the kill grace has elapsed. The normal path is
// that the killed process's failure report arrives first and finalizes the
// instance; the grace deadline only catches backends that never report.
func (l *Loop) expireRunning(ctx context.Context, g *graph.Graph) error {
	running, err := l.store.GetInstancesByState(ctx, model.InstanceRunning)
	if err != nil {
		return err
	}

	now := l.now()
	for _, inst := range running {
		t := g.Task(inst.TaskID)
		if t == nil || inst.StartedAt == nil {
			continue
		}

		if inst.KillRequestedAt != nil {
			if now.Sub(*inst.KillRequestedAt) >= l.config.KillGrace {
				if err := l.finish(ctx, inst, model.InstanceKilled, model.ReasonRunningTimeout); err != nil {
					l.logger.Error("kill grace expire", "instance_id", inst.ID, "error", err)
				}
			}
			continue
		}

		if now.Sub(*inst.StartedAt) < t.RunningTimeout {
			continue
		}

		l.logger.Warn("running timeout, killing",
			"instance_id", inst.ID,
			"task_id", inst.TaskID,
			"running_timeout", t.RunningTimeout,
		)
		if t.Payload != nil {
			if b, err := l.registry.Get(t.Payload.Type); err == nil {
				if err := b.Kill(ctx, inst.ID); err != nil {
					l.logger.Error("kill request", "instance_id", inst.ID, "error", err)
				}
			}
		}
		inst.KillRequestedAt = &now
		if err := l.store.UpdateInstance(ctx, inst); err != nil {
			l.logger.Error("record kill request", "instance_id", inst.ID, "error", err)
		}
	}
	return nil
}

// spawnRetries creates the next attempt for FAILED and KILLED instances whose
// task has retry budget left. The new attempt starts PENDING with a NotBefore
// gate of RetryDelay.
func (l *Loop) spawnRetries(ctx context.Context, g *graph.Graph) error {
	for _, state := range []model.InstanceState{model.InstanceFailed, model.InstanceKilled} {
		finished, err := l.store.GetInstancesByState(ctx, state)
		if err != nil {
			return err
		}

		for _, inst := range finished {
			t := g.Task(inst.TaskID)
			if t == nil || inst.Attempt >= t.Retries {
				continue
			}

			latest, err := l.store.LatestAttempt(ctx, inst.TaskID, inst.CycleID)
			if err != nil {
				l.logger.Error("latest attempt", "instance_id", inst.ID, "error", err)
				continue
			}
			if latest == nil || latest.Attempt > inst.Attempt {
				continue // a newer attempt already exists
			}

			if err := l.createAttempt(ctx, t, inst.CycleID, inst.Attempt+1); err != nil {
				l.logger.Error("spawn retry", "instance_id", inst.ID, "error", err)
				continue
			}
			l.logger.Info("retry scheduled",
				"task_id", inst.TaskID,
				"cycle_id", inst.CycleID,
				"attempt", inst.Attempt+1,
				"retry_delay", t.RetryDelay,
			)
		}
	}
	return nil
}
