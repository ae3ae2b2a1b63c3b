package daemon

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

func TestNewWithConfig_Wiring(t *testing.T) {
	var logs bytes.Buffer
	d, err := NewWithConfig(testConfig(t), &logs)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Catalog.Source() != "builtin" {
		t.Errorf("catalog source = %q, want builtin", d.Catalog.Source())
	}
	if d.Limiter == nil {
		t.Error("rate limiter should be enabled by default")
	}
	if d.Consumer != nil || d.Redis != nil {
		t.Error("event intake should be off without redis_url")
	}

	statuses := d.Health.CheckNow(context.Background())
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %s unhealthy: %s", s.Name, s.Error)
		}
	}
	if !bytes.Contains(logs.Bytes(), []byte("daemon initialized")) {
		t.Errorf("logs = %q", logs.String())
	}
}

func TestNewWithConfig_CatalogFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "awards.toml")
	data := `
[[award]]
id = "first"
name = "First Chore"
class = "achievement"
kind = "one_time"
targets = [{ type = "chores_total", threshold = 1 }]
`
	os.WriteFile(cfg.Catalog.Path, []byte(data), 0600)

	d, err := NewWithConfig(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()
	if d.Catalog.Len() != 1 {
		t.Errorf("catalog len = %d, want 1", d.Catalog.Len())
	}
}

func TestNewWithConfig_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := NewWithConfig(cfg, &bytes.Buffer{}); err == nil {
		t.Error("missing catalog file should fail")
	}

	cfg = testConfig(t)
	cfg.Logging.Level = "chatty"
	if _, err := NewWithConfig(cfg, &bytes.Buffer{}); err == nil {
		t.Error("bad log level should fail")
	}

	cfg = testConfig(t)
	cfg.Events.RedisURL = "mysql://nope"
	if _, err := NewWithConfig(cfg, &bytes.Buffer{}); err == nil {
		t.Error("bad redis url should fail")
	}
}

func TestNewWithConfig_RedisAddsHealthCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.RedisURL = "redis://127.0.0.1:1/0"
	d, err := NewWithConfig(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Consumer == nil {
		t.Fatal("consumer should be wired when redis_url is set")
	}
	found := false
	for _, s := range d.Health.CheckNow(context.Background()) {
		if s.Name == "redis" {
			found = true
			if s.Healthy {
				t.Error("redis on port 1 should be unhealthy")
			}
		}
	}
	if !found {
		t.Error("redis health check not registered")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	d, err := NewWithConfig(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if err := d.Manager.MarkDirty("kid-1"); err == nil {
		t.Error("manager should be stopped after Serve returns")
	}
}
