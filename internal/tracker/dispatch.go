package tracker

import (
	"container/heap"
	"context"

	"github.com/me/tempo/internal/backend"
	"github.com/me/tempo/internal/graph"
	"github.com/me/tempo/pkg/model"
)

// instanceHeap orders READY instances for dispatch: lowest priority value
// first, then oldest CreatedAt, then lowest id. The order is total so two
// trackers over the same store would dispatch identically.
type instanceHeap []*model.Instance

func (h instanceHeap) Len() int { return len(h) }

func (h instanceHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (h instanceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *instanceHeap) Push(x any) { *h = append(*h, x.(*model.Instance)) }

func (h *instanceHeap) Pop() any {
	old := *h
	n := len(old)
	inst := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return inst
}

// dispatchReady hands READY instances to their backends within per-queue
// capacity. Capacity is configured slots minus currently RUNNING instances;
// a queue not in the config has zero slots and its instances wait until the
// pending timeout fails them.
//
// Virtual instances consume no capacity and succeed immediately.
func (l *Loop) dispatchReady(ctx context.Context, g *graph.Graph) error {
	ready, err := l.store.GetInstancesByState(ctx, model.InstanceReady)
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}

	running, err := l.store.CountRunningByQueue(ctx)
	if err != nil {
		return err
	}

	queues := make(map[string]*instanceHeap)
	for _, inst := range ready {
		t := g.Task(inst.TaskID)
		if t == nil {
			continue
		}

		if t.IsVirtual() {
			if err := l.completeVirtual(ctx, inst); err != nil {
				l.logger.Error("complete virtual", "instance_id", inst.ID, "error", err)
			}
			continue
		}

		h, ok := queues[inst.Queue]
		if !ok {
			h = &instanceHeap{}
			queues[inst.Queue] = h
		}
		heap.Push(h, inst)
	}

	for queue, h := range queues {
		slots, ok := l.config.QueueSlots[queue]
		if !ok {
			l.logger.Warn("queue has no configured slots, instances will starve",
				"queue", queue,
				"ready", h.Len(),
			)
		}
		capacity := slots - running[queue]
		for capacity > 0 && h.Len() > 0 {
			inst := heap.Pop(h).(*model.Instance)
			if l.submit(ctx, g.Task(inst.TaskID), inst) {
				capacity--
			}
		}
	}
	return nil
}

// completeVirtual walks a virtual instance through its running states without
// touching any backend.
func (l *Loop) completeVirtual(ctx context.Context, inst *model.Instance) error {
	now := l.now()
	inst.State = model.InstanceRunning
	inst.StartedAt = &now
	return l.finish(ctx, inst, model.InstanceSucceeded, "")
}

// submit hands one instance to its backend. Submission errors fail the
// instance, which counts toward its retry budget. Returns true when a slot
// was consumed.
func (l *Loop) submit(ctx context.Context, t *model.Task, inst *model.Instance) bool {
	b, err := l.registry.Get(t.Payload.Type)
	if err != nil {
		if ferr := l.finish(ctx, inst, model.InstanceFailed, err.Error()); ferr != nil {
			l.logger.Error("fail unsubmittable", "instance_id", inst.ID, "error", ferr)
		}
		return false
	}

	sub := &backend.Submission{
		InstanceID: inst.ID,
		TaskID:     inst.TaskID,
		CycleID:    inst.CycleID,
		Attempt:    inst.Attempt,
		MirrorID:   t.Payload.MirrorID,
		Args:       t.Payload.Args,
	}
	if err := b.Submit(ctx, sub); err != nil {
		l.logger.Error("submit failed", "instance_id", inst.ID, "error", err)
		if ferr := l.finish(ctx, inst, model.InstanceFailed, err.Error()); ferr != nil {
			l.logger.Error("fail failed submit", "instance_id", inst.ID, "error", ferr)
		}
		return false
	}

	now := l.now()
	inst.State = model.InstanceRunning
	inst.StartedAt = &now
	if err := l.store.UpdateInstance(ctx, inst); err != nil {
		l.logger.Error("record dispatch", "instance_id", inst.ID, "error", err)
		return true
	}

	l.logger.Info("instance dispatched",
		"instance_id", inst.ID,
		"task_id", inst.TaskID,
		"queue", inst.Queue,
		"job_type", t.Payload.Type,
	)
	return true
}
