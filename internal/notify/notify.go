package notify

import (
	"context"
	"log/slog"

	"github.com/me/tempo/pkg/model"
)

// Sink receives scheduler events. Sinks must not block the tick loop; slow
// delivery belongs inside the sink itself.
type Sink interface {
	// TerminalTransition fires once per instance reaching a terminal state.
	TerminalTransition(ctx context.Context, inst *model.Instance)

	// IntegrityWarning fires when a catalog snapshot excludes a task.
	IntegrityWarning(ctx context.Context, err *model.CatalogIntegrityError)
}

// LogSink writes events to structured logs.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a Sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "notify")}
}

func (s *LogSink) TerminalTransition(_ context.Context, inst *model.Instance) {
	s.logger.Info("instance finished",
		"instance_id", inst.ID,
		"task_id", inst.TaskID,
		"cycle_id", inst.CycleID,
		"attempt", inst.Attempt,
		"state", inst.State,
		"reason", inst.Reason,
	)
}

func (s *LogSink) IntegrityWarning(_ context.Context, err *model.CatalogIntegrityError) {
	s.logger.Warn("task excluded from schedule",
		"task_id", err.TaskID,
		"detail", err.Detail,
	)
}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) TerminalTransition(ctx context.Context, inst *model.Instance) {
	for _, s := range m {
		s.TerminalTransition(ctx, inst)
	}
}

func (m Multi) IntegrityWarning(ctx context.Context, err *model.CatalogIntegrityError) {
	for _, s := range m {
		s.IntegrityWarning(ctx, err)
	}
}
