package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 30m
ai:
  api_key: from-file
  requests_per_minute: 30
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("API_KEY", "from-env")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AI.APIKey != "from-env" {
		t.Fatalf("expected env api key override, got %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != DefaultAIModel || cfg.AI.BaseURL != DefaultAIBaseURL {
		t.Fatalf("expected ai defaults, got %+v", cfg.AI)
	}
	if cfg.AI.RequestsPerMinute != 30 {
		t.Fatalf("expected 30 rpm, got %d", cfg.AI.RequestsPerMinute)
	}
	if got := TTLDuration(cfg.Redis.TTL, time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", got)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got %v", err)
	}
	if cfg.AI.APIKey != "" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("garbage", time.Second); got != time.Second {
		t.Fatalf("expected fallback for invalid input, got %s", got)
	}
}
