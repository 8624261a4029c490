package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/tempo/internal/logging"
	"github.com/me/tempo/pkg/model"
)

const sampleCatalog = `
tasks:
  - id: daily-etl
    name: Daily warehouse load
    owners: [data-eng]
    period: daily
    queue: heavy
    priority: 5
    pending_timeout_minutes: 45
    running_timeout_minutes: 180
    retries: 2
    retry_delay_minutes: 10
    payload:
      type: shell
      mirror_id: rev-42
      args: "run-etl --date $TEMPO_CYCLE_ID"
  - id: downstream
    period: daily
    depends_on:
      - task: daily-etl
        condition: success
      - task: cleanup
        condition: force
    payload:
      type: shell
      args: "true"
  - id: join-point
    period: daily
  - id: disabled
    period: daily
    valid: false
  - id: gone
    period: daily
    removed: true
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestFileCatalogSnapshot(t *testing.T) {
	path := writeCatalog(t, sampleCatalog)
	cat := NewFileCatalog(path, 30*time.Minute, 2*time.Hour, logging.Discard())

	tasks, err := cat.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3 (invalid and removed excluded)", len(tasks))
	}

	byID := make(map[string]*model.Task)
	for _, task := range tasks {
		byID[task.ID] = task
	}

	etl := byID["daily-etl"]
	if etl == nil {
		t.Fatal("daily-etl missing")
	}
	if etl.Queue != "heavy" || etl.Priority != 5 || etl.Retries != 2 {
		t.Errorf("scheduling fields mismatch: %+v", etl)
	}
	if etl.PendingTimeout != 45*time.Minute || etl.RunningTimeout != 180*time.Minute {
		t.Errorf("timeouts = %v/%v", etl.PendingTimeout, etl.RunningTimeout)
	}
	if etl.RetryDelay != 10*time.Minute {
		t.Errorf("retry delay = %v", etl.RetryDelay)
	}
	if etl.Payload == nil || etl.Payload.Type != model.JobTypeShell || etl.Payload.MirrorID != "rev-42" {
		t.Errorf("payload mismatch: %+v", etl.Payload)
	}

	down := byID["downstream"]
	if down == nil {
		t.Fatal("downstream missing")
	}
	if len(down.DependsOn) != 2 {
		t.Fatalf("deps = %v", down.DependsOn)
	}
	if down.DependsOn[0].Condition != model.ConditionSuccess || down.DependsOn[1].Condition != model.ConditionForce {
		t.Errorf("conditions mismatch: %v", down.DependsOn)
	}
	// Defaults back-fill unset fields.
	if down.Queue != "default" || down.PendingTimeout != 30*time.Minute {
		t.Errorf("defaults not applied: %q %v", down.Queue, down.PendingTimeout)
	}

	join := byID["join-point"]
	if join == nil {
		t.Fatal("join-point missing")
	}
	if !join.IsVirtual() {
		t.Error("task without payload must be virtual")
	}
}

func TestFileCatalogRereadsOnSnapshot(t *testing.T) {
	path := writeCatalog(t, "tasks:\n  - id: a\n    period: daily\n")
	cat := NewFileCatalog(path, 30*time.Minute, 2*time.Hour, logging.Discard())

	tasks, err := cat.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d, want 1", len(tasks))
	}

	// Edits take effect on the next snapshot without a restart.
	if err := os.WriteFile(path, []byte("tasks:\n  - id: a\n    period: daily\n  - id: b\n    period: hourly\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	tasks, err = cat.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("got %d after edit, want 2", len(tasks))
	}
}

func TestFileCatalogErrors(t *testing.T) {
	cat := NewFileCatalog("/no/such/file.yaml", time.Minute, time.Minute, logging.Discard())
	if _, err := cat.Snapshot(context.Background()); err == nil {
		t.Error("missing file must error")
	}

	bad := writeCatalog(t, "tasks: [not a mapping")
	cat = NewFileCatalog(bad, time.Minute, time.Minute, logging.Discard())
	if _, err := cat.Snapshot(context.Background()); err == nil {
		t.Error("malformed yaml must error")
	}
}
