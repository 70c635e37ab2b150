package antispam

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/activity"
	"securitybot/internal/clock"
	"securitybot/internal/metrics"
	"securitybot/internal/modules/enforcement"
	"securitybot/internal/settings"
)

const (
	RuleRateLimit   = "rate_limit"
	RuleDuplicate   = "duplicate"
	RuleMentions    = "mentions"
	RuleSameUserTag = "same_user_tag"
)

const (
	minRateWindow   = 5 * time.Second
	duplicateWindow = 30 * time.Second
	tagWindow       = 5 * time.Minute
	maxContentRunes = 2000
)

var (
	userMentionRegex = regexp.MustCompile(`<@!?(\d{17,20})>`)
	roleMentionRegex = regexp.MustCompile(`<@&(\d{17,20})>`)
	everyoneRegex    = regexp.MustCompile(`@everyone|@here`)
)

type Module struct {
	settings settings.Provider
	tracker  *activity.Tracker
	executor *enforcement.Executor
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *zap.Logger
	timeout  time.Duration
}

func New(provider settings.Provider, tracker *activity.Tracker, executor *enforcement.Executor, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger, timeout time.Duration) *Module {
	return &Module{
		settings: provider,
		tracker:  tracker,
		executor: executor,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		timeout:  timeout,
	}
}

func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.Message) bool {
	if msg == nil || msg.GuildID == "" || msg.Author == nil || msg.Author.Bot {
		return true
	}
	enabled, cfg, err := settings.LoadSpam(ctx, m.settings, msg.GuildID)
	if err != nil {
		m.logger.Warn("spam settings unavailable", zap.String("guild_id", msg.GuildID), zap.Error(err))
		m.metrics.Evaluated(string(settings.KeyAntiSpam), enforcement.FailOpen.String())
		return true
	}
	if !enabled {
		return true
	}

	violation, err := enforcement.Evaluate(settings.KeyAntiSpam, func() (*enforcement.Violation, error) {
		return m.evaluate(msg, cfg), nil
	})
	decision := enforcement.Resolve(violation, err)
	m.metrics.Evaluated(string(settings.KeyAntiSpam), decision.String())

	switch decision {
	case enforcement.FailOpen:
		m.logger.Error("spam check failed, allowing message", zap.String("guild_id", msg.GuildID), zap.String("message_id", msg.ID), zap.Error(err))
	case enforcement.Block:
		m.punish(ctx, msg, violation)
	}
	return decision.Allowed()
}

func (m *Module) evaluate(msg *discordgo.Message, cfg settings.SpamConfig) *enforcement.Violation {
	if enforcement.Whitelisted(msg.Author.ID, enforcement.MessageMember(msg), cfg.WhitelistUsers, cfg.WhitelistRoles) {
		return nil
	}

	guildID, userID := msg.GuildID, msg.Author.ID
	now := m.clock.Now()
	raw := capRunes(strings.TrimSpace(msg.Content), maxContentRunes)
	content := Normalize(msg.Content)

	rateWindow := time.Duration(cfg.TimeWindow) * time.Second
	if rateWindow < minRateWindow {
		rateWindow = minRateWindow
	}
	keep := rateWindow
	if keep < duplicateWindow {
		keep = duplicateWindow
	}
	m.tracker.Record(guildID, userID, now, content)
	m.tracker.Prune(guildID, userID, keep, now)

	if count := m.tracker.CountWithin(guildID, userID, rateWindow, now); count > cfg.MaxMessages {
		return m.violation(RuleRateLimit, "Message flood (rate limit exceeded)", cfg.Punishment)
	}

	if content != "" {
		if count := m.tracker.CountDuplicates(guildID, userID, content, duplicateWindow, now); count >= cfg.DuplicateThreshold {
			return m.violation(RuleDuplicate, "Repeated identical messages", cfg.Punishment)
		}
	}

	userMentions := userMentionRegex.FindAllStringSubmatch(raw, -1)
	mentionCount := len(userMentions) + len(roleMentionRegex.FindAllString(raw, -1)) + len(everyoneRegex.FindAllString(raw, -1))
	if mentionCount > cfg.MentionsPerMessage {
		return m.violation(RuleMentions, fmt.Sprintf("Too many mentions (%d) in one message", mentionCount), cfg.Punishment)
	}

	if len(userMentions) > 0 {
		seen := make(map[string]struct{}, len(userMentions))
		for _, match := range userMentions {
			target := match[1]
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			if count := m.tracker.RecordMentionTag(guildID, userID, target, now, tagWindow); count > cfg.SameUserTagThreshold {
				reason := fmt.Sprintf("Excessive tagging the same user (<@%s>) within 5 minutes", target)
				return m.violation(RuleSameUserTag, reason, settings.PunishDeleteWarn)
			}
		}
		m.tracker.PruneTags(guildID, userID, tagWindow, now)
	}
	return nil
}

func (m *Module) violation(rule, reason string, punishment settings.Punishment) *enforcement.Violation {
	m.metrics.Violation(string(settings.KeyAntiSpam), rule)
	return &enforcement.Violation{
		Policy:     settings.KeyAntiSpam,
		Rule:       rule,
		Reason:     reason,
		Punishment: punishment,
	}
}

func (m *Module) punish(ctx context.Context, msg *discordgo.Message, violation *enforcement.Violation) {
	m.executor.Apply(ctx, enforcement.Offense{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.Author.ID,
	}, enforcement.Plan{
		Punishment:  violation.Punishment,
		Timeout:     m.timeout,
		AuditReason: "Anti-Spam: " + violation.Reason,
		Notice:      m.notice(violation),
	})
	m.logger.Info("spam blocked",
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.Author.ID),
		zap.String("rule", violation.Rule),
		zap.String("punishment", string(violation.Punishment)),
	)
}

func (m *Module) notice(violation *enforcement.Violation) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Anti-Spam Action",
		Description: "We detected spam-like activity in your recent message.",
		Color:       0xf39c12,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Action", Value: enforcement.ActionText(violation.Punishment, m.timeout), Inline: true},
			{Name: "Reason", Value: violation.Reason},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "If this was a mistake, please contact the moderation team."},
		Timestamp: m.clock.Now().Format(time.RFC3339),
	}
}

// Sweep drops idle users from the tracker.
func (m *Module) Sweep() int {
	removed := m.tracker.Sweep(m.clock.Now())
	m.metrics.TrackedUsers(m.tracker.Len())
	return removed
}

// Normalize prepares content for duplicate detection: trimmed, internal
// whitespace collapsed, lower-cased and capped at 2000 characters.
func Normalize(content string) string {
	content = strings.ToLower(strings.Join(strings.Fields(content), " "))
	return capRunes(content, maxContentRunes)
}

func capRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
