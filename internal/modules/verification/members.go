package verification

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/platform"
	"securitybot/internal/settings"
)

const ButtonCustomID = "verify_simple"

const recheckTimeout = 30 * time.Second

// HandleMemberJoin replaces the roles of a new member with the unverified
// role and checks again after a short delay, in case other automation
// granted roles in the meantime.
func (r *Reconciler) HandleMemberJoin(ctx context.Context, member *discordgo.Member) {
	if member == nil || member.User == nil || member.GuildID == "" {
		return
	}
	guildID, userID := member.GuildID, member.User.ID
	enabled, cfg, err := settings.LoadVerification(ctx, r.settings, guildID)
	if err != nil {
		r.logger.Warn("verification settings unavailable", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if !enabled || cfg.UnverifiedRoleID == "" {
		return
	}
	if _, err := r.client.Role(ctx, guildID, cfg.UnverifiedRoleID); err != nil {
		r.logger.Warn("unverified role unavailable on join", zap.String("guild_id", guildID), zap.Error(err))
		return
	}

	roleID := cfg.UnverifiedRoleID
	if err := r.client.SetMemberRoles(ctx, guildID, userID, []string{roleID}); err != nil {
		r.logger.Warn("assign unverified role failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
	r.clock.AfterFunc(r.opts.JoinRecheck, func() {
		ctx, cancel := context.WithTimeout(context.Background(), recheckTimeout)
		defer cancel()
		r.recheckJoin(ctx, guildID, userID, roleID, cfg.MemberRoleID)
	})
}

func (r *Reconciler) recheckJoin(ctx context.Context, guildID, userID, roleID, memberRoleID string) {
	member, err := r.client.Member(ctx, guildID, userID)
	if err != nil {
		if !platform.IsNotFound(err) {
			r.logger.Warn("join recheck fetch failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if hasRole(member, memberRoleID) {
		return
	}
	if len(member.Roles) == 1 && member.Roles[0] == roleID {
		return
	}
	if err := r.client.SetMemberRoles(ctx, guildID, userID, []string{roleID}); err != nil {
		r.logger.Warn("join recheck role set failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}

// HandleVerifyButton grants the member role to the member that pressed the
// verification button and always answers with an ephemeral reply.
func (r *Reconciler) HandleVerifyButton(ctx context.Context, interaction *discordgo.Interaction) {
	if interaction == nil || interaction.GuildID == "" || interaction.Type != discordgo.InteractionMessageComponent {
		return
	}
	data, ok := interaction.Data.(discordgo.MessageComponentInteractionData)
	if !ok || data.CustomID != ButtonCustomID {
		return
	}
	member := interaction.Member
	if member == nil || member.User == nil {
		return
	}
	guildID := interaction.GuildID
	log := r.logger.With(zap.String("guild_id", guildID), zap.String("user_id", member.User.ID))

	enabled, cfg, err := settings.LoadVerification(ctx, r.settings, guildID)
	if err != nil {
		log.Warn("verification settings unavailable", zap.Error(err))
		r.reply(ctx, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{failureEmbed(r.clock.Now())}})
		return
	}
	if !enabled {
		r.replyText(ctx, interaction, "Verification is not enabled.")
		return
	}
	if cfg.MemberRoleID == "" {
		r.replyText(ctx, interaction, "Member role not configured.")
		return
	}
	if _, err := r.client.Role(ctx, guildID, cfg.MemberRoleID); err != nil {
		log.Warn("member role unavailable", zap.Error(err))
		r.replyText(ctx, interaction, "Member role not configured.")
		return
	}
	if hasRole(member, cfg.MemberRoleID) {
		r.replyText(ctx, interaction, "✅ You are already verified.")
		return
	}

	if cfg.UnverifiedRoleID != "" && hasRole(member, cfg.UnverifiedRoleID) {
		if err := r.client.RemoveMemberRole(ctx, guildID, member.User.ID, cfg.UnverifiedRoleID); err != nil {
			log.Warn("remove unverified role failed", zap.Error(err))
			r.reply(ctx, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{failureEmbed(r.clock.Now())}})
			return
		}
	}
	if err := r.client.AddMemberRole(ctx, guildID, member.User.ID, cfg.MemberRoleID); err != nil {
		log.Warn("add member role failed", zap.Error(err))
		r.reply(ctx, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{failureEmbed(r.clock.Now())}})
		return
	}
	log.Info("member verified")
	r.reply(ctx, interaction, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{successEmbed(cfg.MemberRoleID, r.clock.Now())}})
}

func (r *Reconciler) replyText(ctx context.Context, interaction *discordgo.Interaction, content string) {
	r.reply(ctx, interaction, &discordgo.InteractionResponseData{Content: content})
}

func (r *Reconciler) reply(ctx context.Context, interaction *discordgo.Interaction, data *discordgo.InteractionResponseData) {
	data.Flags = discordgo.MessageFlagsEphemeral
	err := r.client.RespondInteraction(ctx, interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		r.logger.Warn("interaction reply failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func hasRole(member *discordgo.Member, roleID string) bool {
	if member == nil || roleID == "" {
		return false
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}
