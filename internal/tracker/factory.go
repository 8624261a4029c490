package tracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/me/tempo/internal/graph"
	"github.com/me/tempo/internal/trigger"
	"github.com/me/tempo/pkg/model"
)

// fireDue walks the schedulable tasks, fires every period that reached a new
// boundary, and creates the attempt-0 instance for the boundary's cycle.
//
// The watermark is written only after the instance exists, so a crash between
// the two leaves a re-firable boundary; the unique (task, cycle, attempt)
// constraint keeps the re-fire from duplicating the instance.
func (l *Loop) fireDue(ctx context.Context, g *graph.Graph) error {
	now := l.now()

	for _, taskID := range g.Order() {
		t := g.Task(taskID)

		mark, err := l.store.GetTriggerMark(ctx, t.ID)
		if err != nil {
			l.logger.Error("get trigger mark", "task_id", t.ID, "error", err)
			continue
		}

		boundary, due := trigger.Due(t, mark, now)
		if !due {
			continue
		}

		cycleID := model.CycleID(boundary)
		if err := l.store.EnsureCycle(ctx, &model.FiringCycle{
			ID:        cycleID,
			Time:      boundary,
			CreatedAt: now,
		}); err != nil {
			l.logger.Error("ensure cycle", "cycle_id", cycleID, "error", err)
			continue
		}

		if err := l.createAttempt(ctx, t, cycleID, 0); err != nil {
			l.logger.Error("create instance", "task_id", t.ID, "cycle_id", cycleID, "error", err)
			continue
		}

		if err := l.store.SetTriggerMark(ctx, t.ID, cycleID, now); err != nil {
			l.logger.Error("set trigger mark", "task_id", t.ID, "error", err)
			continue
		}

		l.logger.Info("task fired",
			"task_id", t.ID,
			"period", t.Period,
			"cycle_id", cycleID,
		)
	}
	return nil
}

// createAttempt inserts a new PENDING instance unless that attempt (or a
// later one) already exists for the cycle.
func (l *Loop) createAttempt(ctx context.Context, t *model.Task, cycleID string, attempt int) error {
	latest, err := l.store.LatestAttempt(ctx, t.ID, cycleID)
	if err != nil {
		return err
	}
	if latest != nil && latest.Attempt >= attempt {
		return nil
	}

	now := l.now()
	inst := &model.Instance{
		ID:        uuid.NewString(),
		TaskID:    t.ID,
		CycleID:   cycleID,
		Attempt:   attempt,
		State:     model.InstancePending,
		Queue:     t.Queue,
		Priority:  t.Priority,
		CreatedAt: now,
	}
	if attempt > 0 && t.RetryDelay > 0 {
		nb := now.Add(t.RetryDelay)
		inst.NotBefore = &nb
	}

	if err := l.store.CreateInstance(ctx, inst); err != nil {
		return fmt.Errorf("create attempt %d: %w", attempt, err)
	}
	return nil
}

// admitPending moves PENDING instances to WAITING once their NotBefore gate
// has passed. Attempt-0 instances have no gate and advance immediately.
func (l *Loop) admitPending(ctx context.Context) error {
	pending, err := l.store.GetInstancesByState(ctx, model.InstancePending)
	if err != nil {
		return err
	}

	now := l.now()
	for _, inst := range pending {
		if inst.NotBefore != nil && now.Before(*inst.NotBefore) {
			continue
		}
		inst.State = model.InstanceWaiting
		if err := l.store.UpdateInstance(ctx, inst); err != nil {
			l.logger.Error("admit instance", "instance_id", inst.ID, "error", err)
			continue
		}
		l.logger.Debug("instance waiting",
			"instance_id", inst.ID,
			"task_id", inst.TaskID,
			"attempt", inst.Attempt,
		)
	}
	return nil
}
