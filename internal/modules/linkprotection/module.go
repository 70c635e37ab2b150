package linkprotection

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/clock"
	"securitybot/internal/metrics"
	"securitybot/internal/modules/audit"
	"securitybot/internal/modules/enforcement"
	"securitybot/internal/platform"
	"securitybot/internal/settings"
	"securitybot/internal/utils"
)

var permissionBits = map[string]int64{
	settings.PermAdministrator:   discordgo.PermissionAdministrator,
	settings.PermManageMessages:  discordgo.PermissionManageMessages,
	settings.PermManageGuild:     discordgo.PermissionManageServer,
	settings.PermModerateMembers: discordgo.PermissionModerateMembers,
	settings.PermKickMembers:     discordgo.PermissionKickMembers,
	settings.PermBanMembers:      discordgo.PermissionBanMembers,
}

type Module struct {
	settings settings.Provider
	client   platform.Client
	executor *enforcement.Executor
	audit    *audit.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *zap.Logger
	timeout  time.Duration
}

func New(provider settings.Provider, client platform.Client, executor *enforcement.Executor, auditLogger *audit.Logger, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger, timeout time.Duration) *Module {
	return &Module{
		settings: provider,
		client:   client,
		executor: executor,
		audit:    auditLogger,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		timeout:  timeout,
	}
}

// HandleMessage reports whether msg may continue down the pipeline. Blocked
// messages have already been punished when it returns false.
func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.Message) bool {
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return true
	}
	enabled, cfg, err := settings.LoadLink(ctx, m.settings, msg.GuildID)
	if err != nil {
		m.logger.Warn("link settings unavailable", zap.String("guild_id", msg.GuildID), zap.Error(err))
		m.metrics.Evaluated(string(settings.KeyLinkProtection), enforcement.FailOpen.String())
		return true
	}
	if !enabled {
		return true
	}

	violation, err := enforcement.Evaluate(settings.KeyLinkProtection, func() (*enforcement.Violation, error) {
		return m.check(ctx, msg, cfg)
	})
	decision := enforcement.Resolve(violation, err)
	m.metrics.Evaluated(string(settings.KeyLinkProtection), decision.String())

	switch decision {
	case enforcement.FailOpen:
		m.logger.Error("link check failed, allowing message", zap.String("guild_id", msg.GuildID), zap.String("message_id", msg.ID), zap.Error(err))
	case enforcement.Block:
		m.punish(ctx, msg, cfg, violation)
	}
	return decision.Allowed()
}

func (m *Module) check(ctx context.Context, msg *discordgo.Message, cfg settings.LinkConfig) (*enforcement.Violation, error) {
	member := enforcement.MessageMember(msg)
	bypass, err := m.hasBypassPermission(ctx, msg.GuildID, member, cfg.BypassPermissions)
	if err != nil {
		return nil, err
	}
	if bypass {
		return nil, nil
	}
	if enforcement.Whitelisted(msg.Author.ID, member, cfg.WhitelistUsers, cfg.WhitelistRoles) {
		return nil, nil
	}

	urls := utils.ExtractURLs(msg.Content)
	if cfg.ScanEmbeds {
		urls = append(urls, embedURLs(msg.Embeds)...)
	}
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		verdict := Classify(raw, cfg)
		if !verdict.Blocked {
			continue
		}
		m.metrics.Violation(string(settings.KeyLinkProtection), verdict.Rule)
		return &enforcement.Violation{
			Policy:     settings.KeyLinkProtection,
			Rule:       verdict.Rule,
			Reason:     "Sent blocked link",
			Punishment: cfg.Punishment,
			URL:        raw,
		}, nil
	}
	return nil, nil
}

func (m *Module) hasBypassPermission(ctx context.Context, guildID string, member *discordgo.Member, names []string) (bool, error) {
	if member == nil || len(names) == 0 {
		return false, nil
	}
	wanted := make([]int64, 0, len(names))
	for _, name := range names {
		if bit, ok := permissionBits[name]; ok {
			wanted = append(wanted, bit)
		}
	}
	if len(wanted) == 0 {
		return false, nil
	}
	perms, err := m.client.MemberPermissions(ctx, guildID, member)
	if err != nil {
		return false, fmt.Errorf("member permissions: %w", err)
	}
	return platform.HasAny(perms, wanted...), nil
}

func (m *Module) punish(ctx context.Context, msg *discordgo.Message, cfg settings.LinkConfig, violation *enforcement.Violation) {
	offense := enforcement.Offense{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.Author.ID,
	}
	result := m.executor.Apply(ctx, offense, enforcement.Plan{
		Punishment:  violation.Punishment,
		Timeout:     m.timeout,
		AuditReason: violation.Reason,
		Notice:      m.notice(violation),
	})

	if !result.Deleted {
		_, err := m.client.SendMessage(ctx, msg.ChannelID, &discordgo.MessageSend{
			Content:         "⚠️ Link blocked. " + cfg.WarnMessage,
			Reference:       msg.Reference(),
			AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: false},
		})
		if err != nil {
			m.logger.Warn("link warning reply failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
		}
	}

	if cfg.LogViolations {
		details := fmt.Sprintf("url=%s rule=%s action=%s deleted=%t", violation.URL, violation.Rule, violation.Punishment, result.Deleted)
		m.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.Author.ID, "link_violation", details)
	}
	m.logger.Info("link blocked",
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.Author.ID),
		zap.String("url", violation.URL),
		zap.String("rule", violation.Rule),
		zap.String("punishment", string(violation.Punishment)),
	)
}

func (m *Module) notice(violation *enforcement.Violation) *discordgo.MessageEmbed {
	link := violation.URL
	if len(link) > 1024 {
		link = link[:1024]
	}
	return &discordgo.MessageEmbed{
		Title:       "Link Blocked",
		Description: "Your message contained a link that is not allowed in this server and has been removed.",
		Color:       0xff4747,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Action", Value: enforcement.ActionText(violation.Punishment, m.timeout), Inline: true},
			{Name: "Link", Value: link},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "If you believe this was a mistake, contact the server moderation team."},
		Timestamp: m.clock.Now().Format(time.RFC3339),
	}
}

func embedURLs(embeds []*discordgo.MessageEmbed) []string {
	var urls []string
	for _, embed := range embeds {
		if embed == nil {
			continue
		}
		urls = append(urls, utils.ExtractURLs(embed.URL)...)
		if embed.Author != nil {
			urls = append(urls, utils.ExtractURLs(embed.Author.URL)...)
		}
		urls = append(urls, utils.ExtractURLs(embed.Description)...)
	}
	return urls
}
