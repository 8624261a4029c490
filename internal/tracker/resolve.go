package tracker

import (
	"context"
	"fmt"

	"github.com/me/tempo/internal/graph"
	"github.com/me/tempo/pkg/model"
)

// parentVerdict is the resolver's view of one parent edge.
type parentVerdict int

const (
	// parentUnsettled: the parent has no settled terminal attempt yet, so
	// the child keeps waiting.
	parentUnsettled parentVerdict = iota
	// parentSatisfied: the edge condition holds.
	parentSatisfied
	// parentBlocked: the parent settled in a state the condition can never
	// accept, so the child is skipped.
	parentBlocked
)

// resolveWaiting evaluates WAITING instances against their same-cycle parent
// instances. Children are processed in topological order so a skip cascades
// through an entire blocked subtree within one tick.
func (l *Loop) resolveWaiting(ctx context.Context, g *graph.Graph) error {
	waiting, err := l.store.GetInstancesByState(ctx, model.InstanceWaiting)
	if err != nil {
		return err
	}
	if len(waiting) == 0 {
		return nil
	}

	// Group by cycle; dependency evaluation never crosses cycle boundaries.
	byCycle := make(map[string]map[string]*model.Instance)
	for _, inst := range waiting {
		if byCycle[inst.CycleID] == nil {
			byCycle[inst.CycleID] = make(map[string]*model.Instance)
		}
		byCycle[inst.CycleID][inst.TaskID] = inst
	}

	for cycleID, byTask := range byCycle {
		// settled caches this cycle's latest attempts, including instances
		// finalized earlier in this same pass.
		settled := make(map[string]*model.Instance)

		for _, taskID := range g.Order() {
			inst, ok := byTask[taskID]
			if !ok {
				continue
			}
			t := g.Task(taskID)
			l.resolveInstance(ctx, t, inst, cycleID, g, settled)
		}
	}
	return nil
}

// resolveInstance decides one WAITING instance: READY when every parent edge
// is satisfied, SKIPPED when any edge is permanently blocked, otherwise it
// stays WAITING with a reason explaining the hold.
func (l *Loop) resolveInstance(ctx context.Context, t *model.Task, inst *model.Instance,
	cycleID string, g *graph.Graph, settled map[string]*model.Instance) {

	for _, dep := range t.DependsOn {
		parent := g.Task(dep.Parent)
		if parent == nil {
			// The parent was excluded from this snapshot; hold until the
			// catalog heals or the operator intervenes.
			l.hold(ctx, inst, fmt.Sprintf("parent %s missing from catalog", dep.Parent))
			return
		}

		latest, err := l.latestSettled(ctx, dep.Parent, cycleID, settled)
		if err != nil {
			l.logger.Error("resolve parent", "instance_id", inst.ID, "parent", dep.Parent, "error", err)
			return
		}

		switch verdict(dep.Condition, parent, latest) {
		case parentSatisfied:
			continue
		case parentBlocked:
			reason := fmt.Sprintf("parent %s settled %s, condition %s unmet", dep.Parent, latest.State, dep.Condition)
			if err := l.finish(ctx, inst, model.InstanceSkipped, reason); err != nil {
				l.logger.Error("skip instance", "instance_id", inst.ID, "error", err)
				return
			}
			settled[t.ID] = inst
			if kids := g.Children(t.ID); len(kids) > 0 {
				l.logger.Debug("skip will cascade", "task_id", t.ID, "children", kids)
			}
			return
		default:
			if latest == nil {
				l.hold(ctx, inst, fmt.Sprintf("parent %s has no instance this cycle", dep.Parent))
			} else {
				l.hold(ctx, inst, fmt.Sprintf("parent %s not settled (attempt %d %s)", dep.Parent, latest.Attempt, latest.State))
			}
			return
		}
	}

	now := l.now()
	inst.State = model.InstanceReady
	inst.AdmittedAt = &now
	inst.Reason = ""
	if err := l.store.UpdateInstance(ctx, inst); err != nil {
		l.logger.Error("admit ready", "instance_id", inst.ID, "error", err)
		return
	}
	l.logger.Debug("instance ready", "instance_id", inst.ID, "task_id", inst.TaskID)
}

// latestSettled returns the parent's latest same-cycle attempt, preferring
// instances finalized earlier in this resolve pass.
func (l *Loop) latestSettled(ctx context.Context, taskID, cycleID string, settled map[string]*model.Instance) (*model.Instance, error) {
	if inst, ok := settled[taskID]; ok {
		return inst, nil
	}
	inst, err := l.store.LatestAttempt(ctx, taskID, cycleID)
	if err != nil {
		return nil, err
	}
	if inst != nil {
		settled[taskID] = inst
	}
	return inst, nil
}

// verdict evaluates one parent edge against the parent's latest attempt.
//
// A FAILED or KILLED attempt with retries remaining is not settled: a new
// attempt will supersede it, so children keep waiting rather than skipping
// on a state that may still turn around.
func verdict(cond model.ConditionKind, parent *model.Task, latest *model.Instance) parentVerdict {
	if latest == nil || !latest.State.IsTerminal() {
		return parentUnsettled
	}

	switch latest.State {
	case model.InstanceSucceeded:
		return parentSatisfied
	case model.InstanceSkipped:
		if cond == model.ConditionForce {
			return parentSatisfied
		}
		return parentBlocked
	case model.InstanceFailed, model.InstanceKilled:
		if latest.Attempt < parent.Retries {
			return parentUnsettled
		}
		if cond == model.ConditionForce || parent.SoftFail {
			return parentSatisfied
		}
		return parentBlocked
	}
	return parentUnsettled
}

// hold records why a WAITING instance is still held without changing state.
func (l *Loop) hold(ctx context.Context, inst *model.Instance, reason string) {
	if inst.Reason == reason {
		return
	}
	inst.Reason = reason
	if err := l.store.UpdateInstance(ctx, inst); err != nil {
		l.logger.Error("record hold reason", "instance_id", inst.ID, "error", err)
	}
}
