package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("discord_token: from-file\nenforcement:\n  link_timeout_minutes: 7\nverification:\n  purge_batch_size: 0\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SPAM_TIMEOUT_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-file" {
		t.Fatalf("unexpected token %q", cfg.DiscordToken)
	}
	if cfg.LinkTimeout() != 7*time.Minute {
		t.Fatalf("expected link timeout 7m, got %s", cfg.LinkTimeout())
	}
	if cfg.SpamTimeout() != 15*time.Minute {
		t.Fatalf("expected spam timeout 15m, got %s", cfg.SpamTimeout())
	}
	if cfg.Verification.PurgeBatchSize != 5 {
		t.Fatalf("expected batch size floor 5, got %d", cfg.Verification.PurgeBatchSize)
	}
}

func TestIdleTTLFloor(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("ACTIVITY_IDLE_TTL_MINUTES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Activity.IdleTTLMinutes != 5 {
		t.Fatalf("expected idle ttl floor 5, got %d", cfg.Activity.IdleTTLMinutes)
	}
}

func TestDefaultTimeoutsDiffer(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LinkTimeout() != 5*time.Minute || cfg.SpamTimeout() != 10*time.Minute {
		t.Fatalf("unexpected defaults link=%s spam=%s", cfg.LinkTimeout(), cfg.SpamTimeout())
	}
}
