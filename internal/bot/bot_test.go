package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/clock"
	"securitybot/internal/config"
	"securitybot/internal/modules/verification"
	"securitybot/internal/platform/platformtest"
	"securitybot/internal/settings"
)

type recordingSettings struct {
	*settings.Memory
	registered []string
}

func (r *recordingSettings) EnsureDefaults(ctx context.Context, guildID string) error {
	r.registered = append(r.registered, guildID)
	return r.Memory.EnsureDefaults(ctx, guildID)
}

type fakeRetention struct {
	days int
}

func (f *fakeRetention) CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	f.days = retentionDays
	return 3, nil
}

type harness struct {
	bot   *Bot
	fake  *platformtest.Fake
	store *recordingSettings
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := platformtest.New()
	fake.AddGuild("g1")
	fake.AddChannel("g1", "c1")
	store := &recordingSettings{Memory: settings.NewMemory()}
	b, err := build(config.DefaultConfig(), zap.NewNop(), fake, Deps{
		Settings: store,
		Clock:    clock.NewFake(time.Unix(1_700_000_000, 0)),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { b.Close(context.Background()) })
	return &harness{bot: b, fake: fake, store: store}
}

func (h *harness) message(id, content string) *discordgo.MessageCreate {
	h.fake.AddMessage("c1", id)
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        id,
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1"},
		Member:    &discordgo.Member{},
	}}
}

func TestBlockedLinkSkipsSpamTracking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.store.Set(ctx, "g1", settings.KeyLinkProtection, true, settings.DefaultLinkConfig()); err != nil {
		t.Fatalf("set link: %v", err)
	}
	spam := settings.DefaultSpamConfig()
	spam.MaxMessages = 1
	if _, err := h.store.Set(ctx, "g1", settings.KeyAntiSpam, true, spam); err != nil {
		t.Fatalf("set spam: %v", err)
	}

	if h.bot.handleMessage(ctx, h.message("m1", "check out http://evil-shortener.biz/x").Message) {
		t.Fatalf("link should be blocked")
	}
	if !h.bot.handleMessage(ctx, h.message("m2", "hello").Message) {
		t.Fatalf("a message blocked by link protection must not count towards spam")
	}
	if h.bot.handleMessage(ctx, h.message("m3", "hello again").Message) {
		t.Fatalf("second tracked message should exceed the limit of one")
	}
}

func TestBotMessagesIgnored(t *testing.T) {
	h := newHarness(t)
	if _, err := h.store.Set(context.Background(), "g1", settings.KeyLinkProtection, true, settings.DefaultLinkConfig()); err != nil {
		t.Fatalf("set link: %v", err)
	}
	event := h.message("m1", "http://evil-shortener.biz/x")
	event.Author.Bot = true

	h.bot.onMessageCreate(nil, event)
	if len(h.fake.Mutations()) != 0 {
		t.Fatalf("bot authors must be ignored")
	}
}

func TestGuildCreateRegistersDefaults(t *testing.T) {
	h := newHarness(t)
	h.bot.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1"}})
	h.bot.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2", Unavailable: true}})

	if len(h.store.registered) != 1 || h.store.registered[0] != "g1" {
		t.Fatalf("expected only g1 to be registered, got %v", h.store.registered)
	}
}

func TestVerificationEventsRouted(t *testing.T) {
	h := newHarness(t)
	h.fake.AddRole("g1", "member", "Member")
	h.fake.AddRole("g1", "unv", "Unverified")
	h.fake.AddChannel("g1", "vc")
	h.fake.AddMember("g1", "u1", "unv")
	cfg := settings.VerificationConfig{MemberRoleID: "member", ChannelID: "vc", UnverifiedRoleID: "unv"}
	if _, err := settings.SaveVerification(context.Background(), h.store, "g1", true, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	h.bot.onInteractionCreate(nil, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "i1",
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}, Roles: []string{"unv"}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: verification.ButtonCustomID},
	}})
	if roles := h.fake.MemberRoles("g1", "u1"); len(roles) != 1 || roles[0] != "member" {
		t.Fatalf("button press should verify the member, got %v", roles)
	}

	h.fake.RemoveChannel("vc")
	h.bot.onChannelDelete(nil, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "vc", GuildID: "g1"}})
	enabled, after, err := settings.LoadVerification(context.Background(), h.store, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if enabled || after.ChannelID != "" {
		t.Fatalf("channel deletion should purge verification, got %+v", after)
	}
}

func TestMalformedEventsIgnored(t *testing.T) {
	h := newHarness(t)
	h.bot.onMessageCreate(nil, &discordgo.MessageCreate{})
	h.bot.onMessageDelete(nil, &discordgo.MessageDelete{})
	h.bot.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{})
	h.bot.onChannelDelete(nil, &discordgo.ChannelDelete{})
	h.bot.onRoleDelete(nil, &discordgo.GuildRoleDelete{})
	h.bot.onInteractionCreate(nil, &discordgo.InteractionCreate{})
	h.bot.onInteractionCreate(nil, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
	}})
	h.bot.onGuildCreate(nil, &discordgo.GuildCreate{})
	if len(h.fake.Calls()) != 0 {
		t.Fatalf("malformed events must be no-ops")
	}
}

func TestAuditRetentionUsesConfiguredDays(t *testing.T) {
	h := newHarness(t)
	retention := &fakeRetention{}
	h.bot.retention = retention
	h.bot.cleanupAuditLogs(context.Background())
	if retention.days != config.DefaultConfig().RetentionDays {
		t.Fatalf("expected %d retention days, got %d", config.DefaultConfig().RetentionDays, retention.days)
	}
}
