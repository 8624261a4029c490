package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/me/tempo/pkg/model"
)

func validTask() *model.Task {
	return &model.Task{
		ID:     "daily-etl",
		Period: model.PeriodDaily,
		Valid:  true,
		Payload: &model.Payload{
			Type: model.JobTypeShell,
			Args: "true",
		},
	}
}

func TestValidateTaskAcceptsMinimal(t *testing.T) {
	if err := ValidateTask(validTask()); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	virtual := validTask()
	virtual.Payload = nil
	if err := ValidateTask(virtual); err != nil {
		t.Errorf("virtual task rejected: %v", err)
	}
}

func TestValidateTaskRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Task)
		want   string
	}{
		{"empty id", func(t *model.Task) { t.ID = "" }, "empty task id"},
		{"unknown period", func(t *model.Task) { t.Period = "fortnightly" }, "unknown period"},
		{"cron without spec", func(t *model.Task) { t.Period = model.PeriodCron }, "requires a cron expression"},
		{"bad cron spec", func(t *model.Task) {
			t.Period = model.PeriodCron
			t.CronSpec = "61 * * * *"
		}, "bad cron expression"},
		{"empty parent", func(t *model.Task) {
			t.DependsOn = []model.Dependency{{Parent: "", Condition: model.ConditionSuccess}}
		}, "empty parent"},
		{"unknown condition", func(t *model.Task) {
			t.DependsOn = []model.Dependency{{Parent: "p", Condition: "maybe"}}
		}, "unknown condition"},
		{"negative retries", func(t *model.Task) { t.Retries = -1 }, "negative retries"},
		{"payload without type", func(t *model.Task) { t.Payload = &model.Payload{Args: "x"} }, "without a job type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(task)
			err := ValidateTask(task)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !strings.Contains(err.Detail, tt.want) {
				t.Errorf("detail = %q, want substring %q", err.Detail, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	task := validTask()
	task.DependsOn = []model.Dependency{{Parent: "p"}}

	ApplyDefaults(task, 30*time.Minute, 2*time.Hour)

	if task.Queue != "default" {
		t.Errorf("queue = %q, want default", task.Queue)
	}
	if task.DependsOn[0].Condition != model.ConditionSuccess {
		t.Errorf("condition = %q, want success", task.DependsOn[0].Condition)
	}
	if task.PendingTimeout != 30*time.Minute || task.RunningTimeout != 2*time.Hour {
		t.Errorf("timeouts = %v/%v", task.PendingTimeout, task.RunningTimeout)
	}

	// Explicit values survive.
	task2 := validTask()
	task2.Queue = "heavy"
	task2.PendingTimeout = time.Minute
	ApplyDefaults(task2, 30*time.Minute, 2*time.Hour)
	if task2.Queue != "heavy" || task2.PendingTimeout != time.Minute {
		t.Errorf("explicit values overwritten: %q %v", task2.Queue, task2.PendingTimeout)
	}
}
