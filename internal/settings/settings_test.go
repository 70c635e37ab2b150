package settings

import (
	"context"
	"encoding/json"
	"testing"
)

func TestSpamNormalizeClamps(t *testing.T) {
	cfg := SpamConfig{MaxMessages: 500, TimeWindow: 1, DuplicateThreshold: 0, MentionsPerMessage: -3, SameUserTagThreshold: 99, Punishment: "timeout_10m"}.Normalize()
	if cfg.MaxMessages != 50 || cfg.TimeWindow != 5 || cfg.DuplicateThreshold != 1 || cfg.MentionsPerMessage != 0 || cfg.SameUserTagThreshold != 50 {
		t.Fatalf("unexpected clamp result: %+v", cfg)
	}
	if cfg.Punishment != PunishTimeout {
		t.Fatalf("expected timeout alias, got %s", cfg.Punishment)
	}
}

func TestLinkNormalizeLowercasesDomains(t *testing.T) {
	cfg := LinkConfig{WhitelistDomains: []string{" Discord.COM ", "discord.com", ""}, Punishment: "nonsense"}.Normalize()
	if len(cfg.WhitelistDomains) != 1 || cfg.WhitelistDomains[0] != "discord.com" {
		t.Fatalf("unexpected domains: %v", cfg.WhitelistDomains)
	}
	if cfg.Punishment != PunishDelete {
		t.Fatalf("expected delete fallback, got %s", cfg.Punishment)
	}
	if cfg.WarnMessage != DefaultWarnMessage {
		t.Fatalf("expected default warn message")
	}
	if len(cfg.BypassPermissions) != 2 {
		t.Fatalf("expected default bypass permissions, got %v", cfg.BypassPermissions)
	}
}

func TestLoadSpamMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	if _, err := mem.Set(ctx, "g1", KeyAntiSpam, true, json.RawMessage(`{"max_messages":3}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	enabled, cfg, err := LoadSpam(ctx, mem, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !enabled || cfg.MaxMessages != 3 || cfg.DuplicateThreshold != 3 || cfg.TimeWindow != 5 {
		t.Fatalf("unexpected config: enabled=%v %+v", enabled, cfg)
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	saved, err := SaveVerification(ctx, mem, "g1", true, VerificationConfig{MemberRoleID: "r1", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ChannelID != "c1" {
		t.Fatalf("unexpected saved config: %+v", saved)
	}
	enabled, cfg, err := LoadVerification(ctx, mem, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !enabled || cfg.MemberRoleID != "r1" || cfg.VerificationType != VerificationSimple {
		t.Fatalf("unexpected loaded config: %+v", cfg)
	}
}

func TestLeftovers(t *testing.T) {
	if (VerificationConfig{}).HasLeftovers() {
		t.Fatalf("empty config has no leftovers")
	}
	if !(VerificationConfig{MemberRoleID: "r1"}).HasLeftovers() {
		t.Fatalf("a stale member role reference counts as leftover")
	}
	if !(VerificationConfig{PendingDisable: true}).HasLeftovers() {
		t.Fatalf("pending disable counts as leftover")
	}
	if !(VerificationConfig{PendingDisable: true}).IsManualDisable() {
		t.Fatalf("pending disable is manual")
	}
}

func TestPunishmentNotifies(t *testing.T) {
	if PunishDelete.NotifiesMember() {
		t.Fatalf("delete must not notify")
	}
	for _, p := range []Punishment{PunishDeleteWarn, PunishTimeout, PunishKick, PunishBan} {
		if !p.NotifiesMember() {
			t.Fatalf("%s should notify", p)
		}
	}
}

func TestMemoryIgnoresContext(t *testing.T) {
	var store Provider = NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.EnsureDefaults(ctx, "g1"); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if _, err := store.Set(ctx, "g1", KeyAntiSpam, true, DefaultSpamConfig()); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, err := store.Get(ctx, "g1", KeyAntiSpam)
	if err != nil || !rec.Enabled {
		t.Fatalf("get: %+v %v", rec, err)
	}
}
