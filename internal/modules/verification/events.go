package verification

import (
	"context"

	"go.uber.org/zap"

	"securitybot/internal/settings"
)

// HandleChannelDelete purges verification when its channel is deleted from
// outside the bot.
func (r *Reconciler) HandleChannelDelete(ctx context.Context, guildID, channelID string) {
	cfg, ok := r.tracked(ctx, guildID)
	if !ok || cfg.ChannelID == "" || cfg.ChannelID != channelID {
		return
	}
	r.logger.Info("verification channel deleted externally", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
	r.DisableAndPurge(ctx, guildID, "Verification channel was deleted", OriginAutomatic)
}

// HandleRoleDelete purges verification when the unverified or member role
// is deleted.
func (r *Reconciler) HandleRoleDelete(ctx context.Context, guildID, roleID string) {
	cfg, ok := r.tracked(ctx, guildID)
	if !ok || roleID == "" {
		return
	}
	var reason string
	switch roleID {
	case cfg.UnverifiedRoleID:
		reason = "Unverified role was deleted"
	case cfg.MemberRoleID:
		reason = "Member role was deleted"
	default:
		return
	}
	r.logger.Info("verification role deleted externally", zap.String("guild_id", guildID), zap.String("role_id", roleID))
	r.DisableAndPurge(ctx, guildID, reason, OriginAutomatic)
}

// HandleMessageDelete reposts the verification message when it is deleted.
func (r *Reconciler) HandleMessageDelete(ctx context.Context, guildID, channelID, messageID string) {
	cfg, ok := r.tracked(ctx, guildID)
	if !ok || cfg.MessageID == "" || cfg.MessageID != messageID || cfg.ChannelID != channelID {
		return
	}
	if _, err := r.EnsureForGuild(ctx, guildID); err != nil {
		r.logger.Warn("verification message repair failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (r *Reconciler) tracked(ctx context.Context, guildID string) (settings.VerificationConfig, bool) {
	if guildID == "" {
		return settings.VerificationConfig{}, false
	}
	_, cfg, err := settings.LoadVerification(ctx, r.settings, guildID)
	if err != nil {
		r.logger.Warn("verification settings unavailable", zap.String("guild_id", guildID), zap.Error(err))
		return settings.VerificationConfig{}, false
	}
	return cfg, true
}
