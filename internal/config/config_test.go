package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tempo.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultHasDefaultQueue(t *testing.T) {
	cfg := Default()
	slots := cfg.QueueSlots()
	if slots["default"] != 4 {
		t.Errorf("default queue slots = %d, want 4", slots["default"])
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("tick = %v", cfg.TickInterval)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.LogLevel != "info" {
		t.Errorf("defaults mismatch: %+v", cfg)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_level: debug
db_path: /var/lib/tempo/tempo.db
catalog: /etc/tempo/catalog.yaml
tick_seconds: 5
kill_grace_seconds: 30
default_pending_timeout_minutes: 15
default_running_timeout_minutes: 90
queues:
  - name: heavy
    slots: 2
archive:
  s3_bucket: tempo-archive
  s3_prefix: prod
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.TickInterval != 5*time.Second || cfg.KillGrace != 30*time.Second {
		t.Errorf("durations = %v/%v", cfg.TickInterval, cfg.KillGrace)
	}
	if cfg.DefaultPendingTimeout != 15*time.Minute || cfg.DefaultRunningTimeout != 90*time.Minute {
		t.Errorf("timeout defaults = %v/%v", cfg.DefaultPendingTimeout, cfg.DefaultRunningTimeout)
	}
	if cfg.CatalogPath != "/etc/tempo/catalog.yaml" {
		t.Errorf("catalog = %q", cfg.CatalogPath)
	}
	if cfg.Archive.S3Bucket != "tempo-archive" || cfg.Archive.S3Prefix != "prod" {
		t.Errorf("archive = %+v", cfg.Archive)
	}

	// The default queue is guaranteed even when the file names others.
	slots := cfg.QueueSlots()
	if slots["heavy"] != 2 {
		t.Errorf("heavy slots = %d", slots["heavy"])
	}
	if slots["default"] == 0 {
		t.Error("default queue must always exist")
	}
}

func TestLoadClampsZeroSlots(t *testing.T) {
	path := writeConfig(t, "queues:\n  - name: default\n    slots: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueSlots()["default"] != 1 {
		t.Errorf("zero slots must clamp to 1, got %d", cfg.QueueSlots()["default"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.yaml"); err == nil {
		t.Error("missing file must error")
	}
}
