package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Provider != "anthropic" || cfg.Agent.MaxIterations != 10 {
		t.Errorf("defaults not applied: %+v", cfg.Agent)
	}
	if cfg.Session.DefaultAgentID != "main" {
		t.Errorf("default agent id = %q", cfg.Session.DefaultAgentID)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
agent:
  provider: anthropic
  model: claude-3-5-sonnet
session:
  store_path: /tmp/sessions.db
  memory:
    enabled: true
    path: /tmp/memory.db
cron:
  enabled: true
  jobs:
    - name: daily
      type: message
      enabled: true
      schedule:
        cron: "0 9 * * *"
      message:
        channel: telegram
        channel_id: "123"
        content: good morning
tools:
  execution:
    timeout: 45s
channels:
  telegram:
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Model != "claude-3-5-sonnet" {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
	if !cfg.Session.Memory.Enabled || cfg.Session.Memory.Path != "/tmp/memory.db" {
		t.Errorf("memory config = %+v", cfg.Session.Memory)
	}
	if len(cfg.Cron.Jobs) != 1 || cfg.Cron.Jobs[0].Schedule.Cron != "0 9 * * *" {
		t.Errorf("cron jobs = %+v", cfg.Cron.Jobs)
	}
	if cfg.Tools.Execution.Timeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.Tools.Execution.Timeout)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be enabled")
	}
	// Unset values still get defaults.
	if cfg.Tools.Cache.Size != 128 {
		t.Errorf("cache size = %d", cfg.Tools.Cache.Size)
	}
}
