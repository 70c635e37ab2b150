package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	name := ""
	if event.User != nil {
		name = event.User.Username
	}
	b.logger.Info("discord ready", zap.String("user", name), zap.Int("guilds", len(event.Guilds)))
}

// onGuildCreate fires for every guild at startup and whenever the bot joins
// one.
func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.Guild.Unavailable {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.registerGuild(ctx, event.Guild.ID)
}

func (b *Bot) registerGuild(ctx context.Context, guildID string) {
	if guildID == "" {
		return
	}
	if err := b.settings.EnsureDefaults(ctx, guildID); err != nil {
		b.logger.Warn("guild registration failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if _, err := b.verify.EnsureForGuild(ctx, guildID); err != nil {
		b.logger.Warn("verification reconcile failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Message == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.handleMessage(ctx, msg.Message)
}

// handleMessage runs the message pipeline and reports whether the message
// survived every policy.
func (b *Bot) handleMessage(ctx context.Context, msg *discordgo.Message) bool {
	if !b.links.HandleMessage(ctx, msg) {
		return false
	}
	return b.spam.HandleMessage(ctx, msg)
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.Message == nil || event.GuildID == "" {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.verify.HandleMessageDelete(ctx, event.GuildID, event.ChannelID, event.ID)
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.Member.User == nil || event.Member.User.Bot {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.verify.HandleMemberJoin(ctx, event.Member)
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.Channel.GuildID == "" {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.verify.HandleChannelDelete(ctx, event.Channel.GuildID, event.Channel.ID)
}

func (b *Bot) onRoleDelete(session *discordgo.Session, event *discordgo.GuildRoleDelete) {
	if event.GuildID == "" || event.RoleID == "" {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.verify.HandleRoleDelete(ctx, event.GuildID, event.RoleID)
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Interaction == nil || interaction.Type != discordgo.InteractionMessageComponent {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()
	b.verify.HandleVerifyButton(ctx, interaction.Interaction)
}
