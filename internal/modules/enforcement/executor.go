package enforcement

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/clock"
	"securitybot/internal/metrics"
	"securitybot/internal/platform"
	"securitybot/internal/settings"
)

// Offense identifies the message and member a punishment applies to.
type Offense struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
}

// Plan describes what to do about an offense.
type Plan struct {
	Punishment settings.Punishment
	// Timeout is the communication restriction used by PunishTimeout.
	Timeout time.Duration
	// AuditReason is attached to the timeout, kick and ban calls.
	AuditReason string
	// Notice is sent to the member for delete_warn and stronger levels.
	Notice *discordgo.MessageEmbed
}

type Result struct {
	Deleted  bool
	Notified bool
	// ActionErr is the error of the escalation step, if any.
	ActionErr error
}

type Executor struct {
	client  platform.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

func NewExecutor(client platform.Client, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Executor {
	return &Executor{client: client, logger: logger, metrics: m, clock: clk}
}

// Apply deletes the message, notifies the member when the level calls for
// it and escalates. Every step is attempted on its own: failures are logged
// and never undo or skip a later step.
func (e *Executor) Apply(ctx context.Context, offense Offense, plan Plan) Result {
	var result Result
	log := e.logger.With(
		zap.String("guild_id", offense.GuildID),
		zap.String("user_id", offense.UserID),
		zap.String("punishment", string(plan.Punishment)),
	)

	if offense.ChannelID != "" && offense.MessageID != "" {
		err := e.client.DeleteMessage(ctx, offense.ChannelID, offense.MessageID)
		e.metrics.Action("delete", err)
		if err != nil {
			log.Warn("delete message failed", zap.String("message_id", offense.MessageID), zap.Error(err))
		} else {
			result.Deleted = true
		}
	}

	if offense.UserID == "" {
		return result
	}

	if plan.Punishment.NotifiesMember() && plan.Notice != nil {
		err := e.client.SendDirectMessage(ctx, offense.UserID, plan.Notice)
		e.metrics.Action("notify", err)
		if err != nil {
			log.Info("direct message failed", zap.Error(err))
		} else {
			result.Notified = true
		}
	}

	switch plan.Punishment {
	case settings.PunishTimeout:
		until := e.clock.Now().Add(plan.Timeout)
		result.ActionErr = e.client.TimeoutMember(ctx, offense.GuildID, offense.UserID, until)
		e.metrics.Action("timeout", result.ActionErr)
	case settings.PunishKick:
		result.ActionErr = e.client.KickMember(ctx, offense.GuildID, offense.UserID, plan.AuditReason)
		e.metrics.Action("kick", result.ActionErr)
	case settings.PunishBan:
		result.ActionErr = e.client.BanMember(ctx, offense.GuildID, offense.UserID, plan.AuditReason)
		e.metrics.Action("ban", result.ActionErr)
	}
	if result.ActionErr != nil {
		log.Warn("punishment failed", zap.Error(result.ActionErr))
	}
	return result
}

// ActionText is the member-facing label of a punishment level.
func ActionText(p settings.Punishment, timeout time.Duration) string {
	switch p {
	case settings.PunishDeleteWarn:
		return "Delete Message + Warn User"
	case settings.PunishTimeout:
		return fmt.Sprintf("Time Out (%s)", humanMinutes(timeout))
	case settings.PunishKick:
		return "Kick User"
	case settings.PunishBan:
		return "Ban User"
	default:
		return "Delete Message"
	}
}

func humanMinutes(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
