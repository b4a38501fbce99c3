package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kortex.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Agent.ServiceName != "kortex-agent" {
		t.Errorf("default service name wrong: %q", cfg.Agent.ServiceName)
	}
	if cfg.Export.Endpoint != "localhost:4318" {
		t.Errorf("default endpoint wrong: %q", cfg.Export.Endpoint)
	}
	if cfg.Export.Batch.MaxSize != 100 || cfg.Export.Batch.Timeout != time.Second {
		t.Errorf("default batching wrong: %+v", cfg.Export.Batch)
	}
	if cfg.Export.Queue.Capacity != 10000 {
		t.Errorf("default queue capacity wrong: %d", cfg.Export.Queue.Capacity)
	}
	if cfg.Export.ShutdownGrace != 5*time.Second {
		t.Errorf("default shutdown grace wrong: %v", cfg.Export.ShutdownGrace)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  service_name: checkout
  environment: staging
  log_level: debug
export:
  endpoint: collector:4318
  batch:
    max_size: 50
    timeout: 500ms
  queue:
    capacity: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Agent.ServiceName != "checkout" || cfg.Agent.Environment != "staging" {
		t.Errorf("agent section wrong: %+v", cfg.Agent)
	}
	if cfg.Export.Endpoint != "collector:4318" {
		t.Errorf("endpoint wrong: %q", cfg.Export.Endpoint)
	}
	if cfg.Export.Batch.MaxSize != 50 || cfg.Export.Batch.Timeout != 500*time.Millisecond {
		t.Errorf("batch section wrong: %+v", cfg.Export.Batch)
	}
	if cfg.Export.Queue.Capacity != 2000 {
		t.Errorf("queue capacity wrong: %d", cfg.Export.Queue.Capacity)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.HealthPort != 8889 {
		t.Errorf("unset health port should keep default, got %d", cfg.Agent.HealthPort)
	}
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("COLLECTOR_HOST", "otel.internal")
	path := writeConfig(t, `
export:
  endpoint: ${COLLECTOR_HOST}:4318
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Export.Endpoint != "otel.internal:4318" {
		t.Errorf("env var not expanded: %q", cfg.Export.Endpoint)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	t.Setenv("KORTEX_ENDPOINT", "override:4318")
	t.Setenv("KORTEX_SERVICE_NAME", "from-env")
	t.Setenv("KORTEX_API_KEY", "k-env")
	path := writeConfig(t, `
agent:
  service_name: from-file
export:
  endpoint: file:4318
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Export.Endpoint != "override:4318" {
		t.Errorf("endpoint env override lost: %q", cfg.Export.Endpoint)
	}
	if cfg.Agent.ServiceName != "from-env" {
		t.Errorf("service name env override lost: %q", cfg.Agent.ServiceName)
	}
	if cfg.Export.Auth.APIKey != "k-env" {
		t.Errorf("api key env override lost: %q", cfg.Export.Auth.APIKey)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero batch size", "export:\n  batch:\n    max_size: -1\n"},
		{"tiny batch timeout", "export:\n  batch:\n    timeout: 1ms\n"},
		{"zero queue capacity", "export:\n  queue:\n    capacity: -5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "agent:\n  service_name: before\n")

	changed := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		Watch(ctx, path, zap.NewNop(), func(c *Config) { changed <- c })
	}()

	// Give the watcher a moment to register before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  service_name: after\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Agent.ServiceName != "after" {
			t.Errorf("reload delivered stale config: %q", cfg.Agent.ServiceName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not deliver the change")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatchSkipsInvalidIntermediateState(t *testing.T) {
	path := writeConfig(t, "agent:\n  service_name: ok\n")

	changed := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, path, zap.NewNop(), func(c *Config) { changed <- c })

	time.Sleep(100 * time.Millisecond)
	// Broken YAML must be skipped, not delivered.
	os.WriteFile(path, []byte(":::"), 0o644)
	time.Sleep(200 * time.Millisecond)
	os.WriteFile(path, []byte("agent:\n  service_name: recovered\n"), 0o644)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Agent.ServiceName == "recovered" {
				return
			}
			t.Fatalf("invalid state leaked through: %+v", cfg.Agent)
		case <-deadline:
			t.Fatal("watcher never recovered")
		}
	}
}
