package antispam

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/activity"
	"securitybot/internal/clock"
	"securitybot/internal/modules/enforcement"
	"securitybot/internal/platform/platformtest"
	"securitybot/internal/settings"
)

const (
	victim  = "111111111111111111"
	victim2 = "222222222222222222"
	roleID  = "333333333333333333"
)

type harness struct {
	module *Module
	fake   *platformtest.Fake
	clock  *clock.Fake
	next   int
}

func newHarness(t *testing.T, cfg settings.SpamConfig) *harness {
	t.Helper()
	fake := platformtest.New()
	fake.AddChannel("g1", "c1")
	fake.AddMember("g1", "u1")
	store := settings.NewMemory()
	if _, err := store.Set(context.Background(), "g1", settings.KeyAntiSpam, true, cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	exec := enforcement.NewExecutor(fake, clk, zap.NewNop(), nil)
	module := New(store, activity.NewTracker(10*time.Minute), exec, nil, clk, zap.NewNop(), 10*time.Minute)
	return &harness{module: module, fake: fake, clock: clk}
}

func (h *harness) send(content string) bool {
	h.next++
	id := fmt.Sprintf("m%d", h.next)
	h.fake.AddMessage("c1", id)
	return h.module.HandleMessage(context.Background(), &discordgo.Message{
		ID:        id,
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1"},
		Member:    &discordgo.Member{},
	})
}

func spamConfig() settings.SpamConfig {
	cfg := settings.DefaultSpamConfig()
	cfg.MaxMessages = 50
	cfg.DuplicateThreshold = 10
	cfg.MentionsPerMessage = 20
	cfg.SameUserTagThreshold = 50
	return cfg
}

func TestFloodOnMessageAfterLimit(t *testing.T) {
	cfg := spamConfig()
	cfg.MaxMessages = 3
	cfg.TimeWindow = 5
	cfg.Punishment = settings.PunishDeleteWarn
	h := newHarness(t, cfg)

	for i := 0; i < 3; i++ {
		if !h.send(fmt.Sprintf("message %d", i)) {
			t.Fatalf("message %d should pass", i)
		}
		h.clock.Advance(500 * time.Millisecond)
	}
	if h.send("message 3") {
		t.Fatalf("4th message should be blocked")
	}
	dms := h.fake.DMs()
	if len(dms) != 1 {
		t.Fatalf("expected 1 DM, got %d", len(dms))
	}
	if !strings.Contains(dms[0].Embed.Fields[1].Value, "Message flood (rate limit exceeded)") {
		t.Fatalf("unexpected reason: %+v", dms[0].Embed.Fields)
	}
	if len(h.fake.CallsOf(platformtest.OpDeleteMessage)) != 1 {
		t.Fatalf("expected exactly one deletion")
	}
}

func TestSpacedMessagesNeverFlood(t *testing.T) {
	cfg := spamConfig()
	cfg.MaxMessages = 3
	cfg.TimeWindow = 5
	h := newHarness(t, cfg)

	for i := 0; i < 10; i++ {
		if !h.send(fmt.Sprintf("message %d", i)) {
			t.Fatalf("message %d should pass", i)
		}
		h.clock.Advance(6 * time.Second)
	}
}

func TestDuplicatesNormalized(t *testing.T) {
	cfg := spamConfig()
	cfg.DuplicateThreshold = 3
	h := newHarness(t, cfg)

	if !h.send("Buy   now") || !h.send("  buy now ") {
		t.Fatalf("first two duplicates should pass")
	}
	if h.send("BUY NOW") {
		t.Fatalf("third duplicate should be blocked")
	}
}

func TestDuplicatesExpireAfterThirtySeconds(t *testing.T) {
	cfg := spamConfig()
	cfg.DuplicateThreshold = 2
	h := newHarness(t, cfg)

	h.send("hello")
	h.clock.Advance(31 * time.Second)
	if !h.send("hello") {
		t.Fatalf("duplicate outside the window should pass")
	}
}

func TestMentionsPerMessage(t *testing.T) {
	cfg := spamConfig()
	cfg.MentionsPerMessage = 3
	h := newHarness(t, cfg)

	if !h.send(fmt.Sprintf("<@%s> <@!%s> <@&%s>", victim, victim, roleID)) {
		t.Fatalf("exactly the limit should pass")
	}
	if h.send(fmt.Sprintf("<@%s> <@%s> <@&%s> @here", victim, victim, roleID)) {
		t.Fatalf("one mention over the limit should be blocked")
	}
}

func TestSameUserTaggingForcesWarn(t *testing.T) {
	cfg := spamConfig()
	cfg.SameUserTagThreshold = 2
	cfg.Punishment = settings.PunishDelete
	h := newHarness(t, cfg)

	for i := 0; i < 2; i++ {
		if !h.send(fmt.Sprintf("hey <@%s> %d", victim, i)) {
			t.Fatalf("tag %d should pass", i)
		}
		h.clock.Advance(time.Minute)
	}
	if h.send(fmt.Sprintf("hey <@%s> again", victim)) {
		t.Fatalf("third tag should be blocked")
	}
	dms := h.fake.DMs()
	if len(dms) != 1 {
		t.Fatalf("tag rule must warn even with delete punishment, got %d DMs", len(dms))
	}
	if !strings.Contains(dms[0].Embed.Fields[1].Value, victim) {
		t.Fatalf("reason should name the target: %s", dms[0].Embed.Fields[1].Value)
	}
}

func TestOldTagsDoNotCount(t *testing.T) {
	cfg := spamConfig()
	cfg.SameUserTagThreshold = 2
	h := newHarness(t, cfg)

	h.send(fmt.Sprintf("<@%s> one", victim))
	h.clock.Advance(time.Minute)
	h.send(fmt.Sprintf("<@%s> two", victim))
	h.clock.Advance(6 * time.Minute)
	if !h.send(fmt.Sprintf("<@%s> three", victim)) || !h.send(fmt.Sprintf("<@%s> four", victim)) {
		t.Fatalf("tags older than five minutes must not count")
	}
	if !h.send(fmt.Sprintf("<@%s> other target", victim2)) {
		t.Fatalf("targets are counted independently")
	}
}

func TestWhitelistedUserExempt(t *testing.T) {
	cfg := spamConfig()
	cfg.MaxMessages = 1
	cfg.WhitelistUsers = []string{"u1"}
	h := newHarness(t, cfg)

	for i := 0; i < 5; i++ {
		if !h.send("same") {
			t.Fatalf("whitelisted user should never be blocked")
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Hello \n  World "); got != "hello world" {
		t.Fatalf("unexpected normalization: %q", got)
	}
	long := strings.Repeat("é", 2500)
	if got := Normalize(long); len([]rune(got)) != 2000 {
		t.Fatalf("expected content capped at 2000 characters, got %d", len([]rune(got)))
	}
}

func TestSweepEvictsIdleUsers(t *testing.T) {
	h := newHarness(t, spamConfig())
	h.send("hello")
	h.clock.Advance(11 * time.Minute)
	if removed := h.module.Sweep(); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
}

func TestSweepWithShortTTLKeepsTagHistory(t *testing.T) {
	cfg := spamConfig()
	cfg.SameUserTagThreshold = 3
	h := newHarness(t, cfg)
	h.module.tracker = activity.NewTracker(time.Minute)

	for i := 0; i < 3; i++ {
		if !h.send(fmt.Sprintf("<@%s> %d", victim, i)) {
			t.Fatalf("tag %d should pass", i)
		}
		h.clock.Advance(90 * time.Second)
		h.module.Sweep()
	}
	if h.send(fmt.Sprintf("<@%s> again", victim)) {
		t.Fatalf("fourth tag inside five minutes must be blocked despite sweeps")
	}
}
