// Package tracker runs the scheduling core: a single-threaded tick loop that
// fires periods, creates instances, resolves dependencies, polices timeouts
// and retries, and dispatches ready work to execution backends.
//
// All state transitions happen inside Tick, so no instance is ever mutated
// concurrently. Backends run jobs on their own goroutines and hand results
// back through a report channel drained at the start of each tick.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/tempo/internal/backend"
	"github.com/me/tempo/internal/catalog"
	"github.com/me/tempo/internal/graph"
	"github.com/me/tempo/internal/notify"
	"github.com/me/tempo/internal/store"
	"github.com/me/tempo/pkg/model"
)

// Config holds tracker configuration.
type Config struct {
	TickInterval time.Duration
	// KillGrace is how long after a kill request a run may linger before it
	// is marked KILLED regardless of backend acknowledgement.
	KillGrace time.Duration
	// QueueSlots caps concurrently RUNNING instances per queue name.
	QueueSlots map[string]int
}

// Loop is the scheduler core.
type Loop struct {
	store    store.Store
	catalog  catalog.Catalog
	registry *backend.Registry
	sink     notify.Sink
	config   Config
	logger   *slog.Logger

	reports <-chan *backend.Report
	now     func() time.Time // injectable for tests

	// warned suppresses repeat integrity warnings while a snapshot problem
	// persists across ticks.
	warned map[string]bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a tracker loop. reports is where backends deliver terminal
// results; pass nil when no asynchronous backend is registered.
func NewLoop(st store.Store, cat catalog.Catalog, reg *backend.Registry, sink notify.Sink,
	reports <-chan *backend.Report, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		store:    st,
		catalog:  cat,
		registry: reg,
		sink:     sink,
		config:   cfg,
		logger:   logger.With("component", "tracker"),
		reports:  reports,
		now:      func() time.Time { return time.Now().UTC() },
		warned:   make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the tick loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("tracker started", "tick_interval", l.config.TickInterval)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("tracker stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("tracker stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop shuts the loop down and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs a single scheduling iteration.
func (l *Loop) Tick(ctx context.Context) error {
	// Phase 0: Drain backend reports accumulated since the last tick.
	if err := l.drainReports(ctx); err != nil {
		return fmt.Errorf("phase 0 (reports): %w", err)
	}

	// Phase 1: Snapshot the catalog and build the dependency graph.
	g, err := l.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("phase 1 (snapshot): %w", err)
	}

	// Phase 2: Fire due periods and admit pending instances.
	if err := l.fireDue(ctx, g); err != nil {
		return fmt.Errorf("phase 2 (trigger): %w", err)
	}
	if err := l.admitPending(ctx); err != nil {
		return fmt.Errorf("phase 2 (admit): %w", err)
	}

	// Phase 3: Resolve WAITING instances against their parents.
	if err := l.resolveWaiting(ctx, g); err != nil {
		return fmt.Errorf("phase 3 (resolve): %w", err)
	}

	// Phase 4: Enforce timeouts and spawn retries.
	if err := l.monitor(ctx, g); err != nil {
		return fmt.Errorf("phase 4 (monitor): %w", err)
	}

	// Phase 5: Dispatch READY instances within queue capacity.
	if err := l.dispatchReady(ctx, g); err != nil {
		return fmt.Errorf("phase 5 (dispatch): %w", err)
	}

	return nil
}

// snapshot reads the catalog and builds the tick's dependency graph.
// Excluded tasks produce a one-time integrity warning each.
func (l *Loop) snapshot(ctx context.Context) (*graph.Graph, error) {
	tasks, err := l.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", err)
	}

	// Static per-task validation first, then structural checks on what's left.
	schedulable := tasks[:0]
	var integrityErrs []*model.CatalogIntegrityError
	for _, t := range tasks {
		if ierr := catalog.ValidateTask(t); ierr != nil {
			integrityErrs = append(integrityErrs, ierr)
			continue
		}
		schedulable = append(schedulable, t)
	}

	g, structuralErrs := graph.Build(schedulable)
	integrityErrs = append(integrityErrs, structuralErrs...)

	seen := make(map[string]bool, len(integrityErrs))
	for _, ierr := range integrityErrs {
		key := ierr.TaskID + ": " + ierr.Detail
		seen[key] = true
		if l.warned[key] {
			continue
		}
		l.warned[key] = true
		l.sink.IntegrityWarning(ctx, ierr)
	}
	// Forget resolved problems so they warn again if they come back.
	for key := range l.warned {
		if !seen[key] {
			delete(l.warned, key)
		}
	}

	return g, nil
}

// drainReports applies all pending backend reports without blocking.
func (l *Loop) drainReports(ctx context.Context) error {
	if l.reports == nil {
		return nil
	}
	for {
		select {
		case r := <-l.reports:
			if err := l.applyReport(ctx, r); err != nil {
				l.logger.Error("apply report", "instance_id", r.InstanceID, "error", err)
			}
		default:
			return nil
		}
	}
}

// applyReport finalizes a RUNNING instance from a backend report. Reports for
// instances already finalized (kill grace expired first) are dropped.
func (l *Loop) applyReport(ctx context.Context, r *backend.Report) error {
	inst, err := l.store.GetInstance(ctx, r.InstanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("instance %s not found", r.InstanceID)
	}
	if inst.State != model.InstanceRunning {
		l.logger.Debug("late report ignored", "instance_id", inst.ID, "state", inst.State)
		return nil
	}

	var state model.InstanceState
	var reason string
	switch {
	case r.Outcome == model.OutcomeSuccess:
		state = model.InstanceSucceeded
	case inst.KillRequestedAt != nil:
		state = model.InstanceKilled
		reason = model.ReasonRunningTimeout
	default:
		state = model.InstanceFailed
		reason = r.Detail
	}

	if inst.StartedAt == nil && !r.StartedAt.IsZero() {
		inst.StartedAt = &r.StartedAt
	}
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = l.now()
	}
	inst.FinishedAt = &finished

	return l.finish(ctx, inst, state, reason)
}

// finish transitions an instance to a terminal state, persists it, and
// notifies the sinks.
func (l *Loop) finish(ctx context.Context, inst *model.Instance, state model.InstanceState, reason string) error {
	if !inst.State.CanTransitionTo(state) {
		return &model.InvalidTransitionError{InstanceID: inst.ID, From: inst.State, To: state}
	}
	inst.State = state
	if reason != "" {
		inst.Reason = reason
	}
	if inst.FinishedAt == nil {
		now := l.now()
		inst.FinishedAt = &now
	}
	if err := l.store.UpdateInstance(ctx, inst); err != nil {
		return err
	}

	l.logger.Info("instance finished",
		"instance_id", inst.ID,
		"task_id", inst.TaskID,
		"cycle_id", inst.CycleID,
		"attempt", inst.Attempt,
		"state", state,
		"reason", inst.Reason,
	)
	l.sink.TerminalTransition(ctx, inst)
	return nil
}
