package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Window.Days != 30 || cfg.Window.GraceDays != 5 {
		t.Fatalf("window defaults = %+v", cfg.Window)
	}
	if cfg.Window.BatchWindow() != 5*time.Minute {
		t.Fatalf("batch window = %v, want 5m", cfg.Window.BatchWindow())
	}
	if cfg.Window.Retention() != 35*24*time.Hour {
		t.Fatalf("retention = %v, want 840h", cfg.Window.Retention())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurestream.yaml")
	content := `
log_level: debug
window:
  days: 10
  grace_days: 2
  batch: 1m
ingest:
  rest:
    enabled: false
storage:
  enabled: true
  driver: sqlite
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Window.Days != 10 || cfg.Window.GraceDays != 2 || cfg.Window.BatchWindow() != time.Minute {
		t.Fatalf("window = %+v", cfg.Window)
	}
	if cfg.Ingest.REST.Enabled {
		t.Fatalf("rest should be disabled")
	}
	// untouched sections keep defaults
	if cfg.API.Addr != ":8081" {
		t.Fatalf("api.addr = %q", cfg.API.Addr)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurestream.json")
	content := `{"log_format": "text", "generator": {"seed": 7}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != "text" || cfg.Generator.Seed != 7 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generator.DuplicateRate = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("duplicate_rate > 1 accepted")
	}

	cfg = DefaultConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Driver = "dynamodb"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unsupported driver accepted")
	}

	cfg = DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("kafka without brokers accepted")
	}

	cfg = DefaultConfig()
	cfg.Window.Batch = "five minutes"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unparsable batch duration accepted")
	}
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurestream.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if m.Get().LogLevel != "info" {
		t.Fatalf("log_level = %q", m.Get().LogLevel)
	}
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Get().LogLevel != "warn" {
		t.Fatalf("log_level after reload = %q", m.Get().LogLevel)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurestream.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	cfg := m.Get()
	next := *cfg
	next.Window.Days = 7
	if err := m.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().Window.Days != 7 {
		t.Fatalf("days = %d, want 7", m.Get().Window.Days)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("load back: %v", err)
	}
	if reloaded.Window.Days != 7 {
		t.Fatalf("persisted days = %d, want 7", reloaded.Window.Days)
	}

	bad := *cfg
	bad.Window.Days = -1
	if err := m.Update(&bad); err == nil {
		t.Fatalf("invalid config accepted by Update")
	}
}
