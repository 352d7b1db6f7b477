package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Worker.Capacity != 4 {
		t.Errorf("capacity = %d, want 4", cfg.Worker.Capacity)
	}
	if cfg.Worker.TickInterval != 200*time.Millisecond {
		t.Errorf("worker tick = %v", cfg.Worker.TickInterval)
	}
	if cfg.Worker.HeartbeatInterval != 2*time.Second {
		t.Errorf("heartbeat = %v", cfg.Worker.HeartbeatInterval)
	}
	if cfg.Worker.DeadAfterSecs != 30 {
		t.Errorf("dead after = %d", cfg.Worker.DeadAfterSecs)
	}
	if cfg.Scheduler.TickInterval != 2*time.Second {
		t.Errorf("scheduler tick = %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.Window != time.Minute {
		t.Errorf("window = %v", cfg.Scheduler.Window)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dromio.yaml")
	content := `
database_url: postgres://x:y@db:5432/dromio
data_dir: /var/lib/dromio
worker:
  capacity: 8
  dead_after_secs: 60
scheduler:
  catch_up: true
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://x:y@db:5432/dromio" {
		t.Errorf("database_url = %q", cfg.DatabaseURL)
	}
	if cfg.Worker.Capacity != 8 || cfg.Worker.DeadAfterSecs != 60 {
		t.Errorf("worker overrides not applied: %+v", cfg.Worker)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Worker.HeartbeatInterval != 2*time.Second {
		t.Errorf("heartbeat lost its default: %v", cfg.Worker.HeartbeatInterval)
	}
	if !cfg.Scheduler.CatchUp {
		t.Error("catch_up not applied")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dromio.yaml")
	if err := os.WriteFile(path, []byte("worker: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config accepted")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dromio.yaml")
	if err := os.WriteFile(path, []byte("worker:\n  capacity: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DROMIO_WORKER_CAPACITY", "16")
	t.Setenv("DROMIO_DATABASE_URL", "postgres://env@db/dromio")
	t.Setenv("ALLOW_MULTI_ID", "true")
	t.Setenv("DROMIO_WORKER_TICK", "500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Capacity != 16 {
		t.Errorf("capacity = %d, want env value 16", cfg.Worker.Capacity)
	}
	if cfg.DatabaseURL != "postgres://env@db/dromio" {
		t.Errorf("database_url = %q", cfg.DatabaseURL)
	}
	if !cfg.AllowMultiID {
		t.Error("ALLOW_MULTI_ID not applied")
	}
	if cfg.Worker.TickInterval != 500*time.Millisecond {
		t.Errorf("worker tick = %v", cfg.Worker.TickInterval)
	}
}
