package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/me/tempo/pkg/model"
	"gopkg.in/yaml.v3"
)

// taskSpec is the on-disk shape of one task. Timeouts and delays are minute
// integers (yaml.v3 does not decode time.Duration); valid defaults to true
// so a minimal entry schedules.
type taskSpec struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Owners  []string `yaml:"owners"`
	Period  string   `yaml:"period"`
	Cron    string   `yaml:"cron"`
	Valid   *bool    `yaml:"valid"`
	Removed bool     `yaml:"removed"`

	DependsOn []model.Dependency `yaml:"depends_on"`

	Queue                 string `yaml:"queue"`
	Priority              int    `yaml:"priority"`
	PendingTimeoutMinutes int    `yaml:"pending_timeout_minutes"`
	RunningTimeoutMinutes int    `yaml:"running_timeout_minutes"`
	Retries               int    `yaml:"retries"`
	RetryDelayMinutes     int    `yaml:"retry_delay_minutes"`
	SoftFail              bool   `yaml:"soft_fail"`

	Payload *model.Payload `yaml:"payload"`
}

type catalogFile struct {
	Tasks []taskSpec `yaml:"tasks"`
}

// FileCatalog reads task definitions from a YAML file. The file is re-read
// on every Snapshot so catalog edits take effect on the next tick, matching
// the rebuild-per-tick model.
type FileCatalog struct {
	path           string
	pendingDefault time.Duration
	runningDefault time.Duration
	logger         *slog.Logger
}

// NewFileCatalog creates a catalog bound to a YAML file. The two durations
// back-fill per-task timeouts left unset in the file.
func NewFileCatalog(path string, pendingDefault, runningDefault time.Duration, logger *slog.Logger) *FileCatalog {
	return &FileCatalog{
		path:           path,
		pendingDefault: pendingDefault,
		runningDefault: runningDefault,
		logger:         logger.With("component", "catalog"),
	}
}

// Snapshot returns the valid, non-removed tasks currently in the file.
func (c *FileCatalog) Snapshot(ctx context.Context) ([]*model.Task, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", c.path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", c.path, err)
	}

	tasks := make([]*model.Task, 0, len(f.Tasks))
	for _, spec := range f.Tasks {
		t := spec.toTask()
		if !t.Valid || t.Removed {
			c.logger.Debug("task not schedulable", "task_id", t.ID, "valid", t.Valid, "removed", t.Removed)
			continue
		}
		ApplyDefaults(t, c.pendingDefault, c.runningDefault)
		tasks = append(tasks, t)
	}

	c.logger.Debug("catalog snapshot", "tasks", len(tasks))
	return tasks, nil
}

func (s taskSpec) toTask() *model.Task {
	valid := true
	if s.Valid != nil {
		valid = *s.Valid
	}
	return &model.Task{
		ID:             s.ID,
		Name:           s.Name,
		Owners:         s.Owners,
		Period:         model.Period(s.Period),
		CronSpec:       s.Cron,
		Valid:          valid,
		Removed:        s.Removed,
		DependsOn:      s.DependsOn,
		Queue:          s.Queue,
		Priority:       s.Priority,
		PendingTimeout: time.Duration(s.PendingTimeoutMinutes) * time.Minute,
		RunningTimeout: time.Duration(s.RunningTimeoutMinutes) * time.Minute,
		Retries:        s.Retries,
		RetryDelay:     time.Duration(s.RetryDelayMinutes) * time.Minute,
		SoftFail:       s.SoftFail,
		Payload:        s.Payload,
	}
}
