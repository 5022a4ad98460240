package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	if len(cfg.Stages) == 0 {
		t.Fatal("expected default stages")
	}
	if cfg.Queue.DequeueTimeout() != 30*time.Second {
		t.Fatalf("expected 30s dequeue timeout, got %s", cfg.Queue.DequeueTimeout())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	yamlBody := "workerName: test-worker\nqueue:\n  name: custom-queue\n  dequeueTimeoutMs: 5000\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerName != "test-worker" {
		t.Fatalf("expected overridden worker name, got %q", cfg.WorkerName)
	}
	if cfg.Queue.Name != "custom-queue" {
		t.Fatalf("expected overridden queue name, got %q", cfg.Queue.Name)
	}
	if cfg.Queue.DequeueTimeout() != 5*time.Second {
		t.Fatalf("expected 5s dequeue timeout, got %s", cfg.Queue.DequeueTimeout())
	}
	// Fields absent from the YAML keep Default()'s values.
	if cfg.Shutdown.Graceful != true {
		t.Fatal("expected default graceful shutdown to survive a partial overlay")
	}
}
