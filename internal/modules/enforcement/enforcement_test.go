package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/clock"
	"securitybot/internal/platform/platformtest"
	"securitybot/internal/settings"
)

func newExecutor(t *testing.T) (*Executor, *platformtest.Fake) {
	t.Helper()
	fake := platformtest.New()
	fake.AddChannel("g1", "c1")
	fake.AddMessage("c1", "m1")
	fake.AddMember("g1", "u1")
	return NewExecutor(fake, clock.NewFake(time.Unix(1000, 0)), zap.NewNop(), nil), fake
}

var offense = Offense{GuildID: "g1", ChannelID: "c1", MessageID: "m1", UserID: "u1"}

func TestDeleteOnlyDoesNotNotify(t *testing.T) {
	exec, fake := newExecutor(t)
	result := exec.Apply(context.Background(), offense, Plan{Punishment: settings.PunishDelete, Notice: &discordgo.MessageEmbed{}})
	if !result.Deleted || result.Notified {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fake.Mutations()) != 1 {
		t.Fatalf("expected only the delete, got %+v", fake.Mutations())
	}
}

func TestTimeoutUsesPlanDuration(t *testing.T) {
	exec, fake := newExecutor(t)
	exec.Apply(context.Background(), offense, Plan{Punishment: settings.PunishTimeout, Timeout: 5 * time.Minute, Notice: &discordgo.MessageEmbed{}})

	until, ok := fake.TimeoutUntil("g1", "u1")
	if !ok || !until.Equal(time.Unix(1000, 0).Add(5*time.Minute)) {
		t.Fatalf("unexpected timeout: %v %v", until, ok)
	}
	if len(fake.DMs()) != 1 {
		t.Fatalf("expected a direct message")
	}
}

func TestFailuresDoNotStopLaterSteps(t *testing.T) {
	exec, fake := newExecutor(t)
	fake.Fail[platformtest.OpDeleteMessage] = errors.New("missing access")
	fake.Fail[platformtest.OpSendDM] = errors.New("cannot send messages to this user")

	result := exec.Apply(context.Background(), offense, Plan{Punishment: settings.PunishBan, AuditReason: "spam", Notice: &discordgo.MessageEmbed{}})
	if result.Deleted || result.Notified || result.ActionErr != nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fake.CallsOf(platformtest.OpBan)) != 1 {
		t.Fatalf("ban should still be attempted")
	}
}

func TestResolve(t *testing.T) {
	if Resolve(nil, nil) != Allow {
		t.Fatalf("expected allow")
	}
	if Resolve(&Violation{}, nil) != Block {
		t.Fatalf("expected block")
	}
	decision := Resolve(&Violation{}, errors.New("boom"))
	if decision != FailOpen || !decision.Allowed() {
		t.Fatalf("errors must fail open")
	}
}

func TestEvaluateRecoversPanics(t *testing.T) {
	violation, err := Evaluate(settings.KeyAntiSpam, func() (*Violation, error) {
		var cfg *settings.SpamConfig
		_ = cfg.MaxMessages
		return &Violation{}, nil
	})
	var evalErr *EvaluationError
	if violation != nil || !errors.As(err, &evalErr) {
		t.Fatalf("expected evaluation error, got %v %v", violation, err)
	}
	if Resolve(violation, err) != FailOpen {
		t.Fatalf("expected fail open")
	}
}

func TestActionText(t *testing.T) {
	if got := ActionText(settings.PunishTimeout, 10*time.Minute); got != "Time Out (10 minutes)" {
		t.Fatalf("unexpected text: %s", got)
	}
	if got := ActionText(settings.PunishDelete, 0); got != "Delete Message" {
		t.Fatalf("unexpected text: %s", got)
	}
}
