package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"securitybot/internal/clock"
	"securitybot/internal/metrics"
	"securitybot/internal/modules/audit"
	"securitybot/internal/platform"
	"securitybot/internal/settings"
)

// Outcomes of a reconciliation pass.
const (
	OutcomeDisabled   = "disabled"
	OutcomeConsistent = "consistent"
	OutcomeRepaired   = "repaired"
	OutcomePurged     = "purged"
	OutcomeError      = "error"
)

type Options struct {
	ChannelName    string
	RoleName       string
	PurgeCooldown  time.Duration
	PurgeBatchSize int
	JoinRecheck    time.Duration
}

func DefaultOptions() Options {
	return Options{
		ChannelName:    "✅verification",
		RoleName:       "Unverified",
		PurgeCooldown:  5 * time.Minute,
		PurgeBatchSize: 5,
		JoinRecheck:    2 * time.Second,
	}
}

// Reconciler keeps each guild's verification channel, role and message in
// line with its stored configuration and gates joining members.
//
// Work for one guild is serialised by a per-guild lock; different guilds
// proceed independently.
type Reconciler struct {
	settings settings.Provider
	client   platform.Client
	clock    clock.Clock
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	cooldowns map[string]time.Time
}

func New(provider settings.Provider, client platform.Client, clk clock.Clock, auditLogger *audit.Logger, m *metrics.Metrics, logger *zap.Logger, opts Options) *Reconciler {
	defaults := DefaultOptions()
	if opts.ChannelName == "" {
		opts.ChannelName = defaults.ChannelName
	}
	if opts.RoleName == "" {
		opts.RoleName = defaults.RoleName
	}
	if opts.PurgeBatchSize <= 0 {
		opts.PurgeBatchSize = defaults.PurgeBatchSize
	}
	return &Reconciler{
		settings:  provider,
		client:    client,
		clock:     clk,
		audit:     auditLogger,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		locks:     make(map[string]*sync.Mutex),
		cooldowns: make(map[string]time.Time),
	}
}

func (r *Reconciler) lock(guildID string) func() {
	r.mu.Lock()
	l := r.locks[guildID]
	if l == nil {
		l = &sync.Mutex{}
		r.locks[guildID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// EnsureAll reconciles every guild the client knows about, one at a time.
func (r *Reconciler) EnsureAll(ctx context.Context) {
	for _, guildID := range r.client.GuildIDs() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.EnsureForGuild(ctx, guildID); err != nil {
			r.logger.Warn("verification reconcile failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
}

// EnsureForGuild is idempotent: on a consistent guild it only reads.
func (r *Reconciler) EnsureForGuild(ctx context.Context, guildID string) (string, error) {
	if guildID == "" {
		return OutcomeDisabled, nil
	}
	unlock := r.lock(guildID)
	defer unlock()

	outcome, err := r.ensureLocked(ctx, guildID)
	r.metrics.Reconciled(outcome)
	return outcome, err
}

func (r *Reconciler) ensureLocked(ctx context.Context, guildID string) (string, error) {
	enabled, cfg, err := settings.LoadVerification(ctx, r.settings, guildID)
	if err != nil {
		return OutcomeError, err
	}
	log := r.logger.With(zap.String("guild_id", guildID))

	if !enabled {
		if !cfg.HasLeftovers() {
			return OutcomeDisabled, nil
		}
		if cfg.IsManualDisable() {
			r.purgeLocked(ctx, guildID, cfg, "Manual disable from dashboard", OriginManual)
		} else {
			r.purgeLocked(ctx, guildID, cfg, "Cleanup after disable or resource removal", OriginAutomatic)
		}
		return OutcomePurged, nil
	}

	if cfg.MemberRoleID == "" {
		r.purgeLocked(ctx, guildID, cfg, "Missing required member role", OriginAutomatic)
		return OutcomePurged, nil
	}

	repaired := false
	if cfg.ChannelID == "" && cfg.AutoCreateChannel {
		next, err := r.createChannel(ctx, guildID, cfg)
		if err != nil {
			log.Error("verification channel creation failed", zap.Error(err))
			r.purgeLocked(ctx, guildID, next, "Failed to create verification channel", OriginAutomatic)
			return OutcomePurged, nil
		}
		cfg = next
		repaired = true
	}
	if cfg.ChannelID == "" {
		r.purgeLocked(ctx, guildID, cfg, "Missing required channel after setup", OriginAutomatic)
		return OutcomePurged, nil
	}

	if _, err := r.client.Role(ctx, guildID, cfg.MemberRoleID); err != nil {
		if platform.IsNotFound(err) {
			r.purgeLocked(ctx, guildID, cfg, "Member role was deleted", OriginAutomatic)
			return OutcomePurged, nil
		}
		return OutcomeError, fmt.Errorf("fetch member role: %w", err)
	}

	channel, err := r.client.Channel(ctx, cfg.ChannelID)
	if err != nil {
		if platform.IsNotFound(err) {
			r.purgeLocked(ctx, guildID, cfg, "Verification channel was deleted", OriginAutomatic)
			return OutcomePurged, nil
		}
		return OutcomeError, fmt.Errorf("fetch verification channel: %w", err)
	}
	if channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews {
		r.purgeLocked(ctx, guildID, cfg, "Verification channel is not a text channel", OriginAutomatic)
		return OutcomePurged, nil
	}

	if cfg.UnverifiedRoleID != "" {
		if _, err := r.client.Role(ctx, guildID, cfg.UnverifiedRoleID); err != nil {
			if platform.IsNotFound(err) {
				r.purgeLocked(ctx, guildID, cfg, "Unverified role was deleted", OriginAutomatic)
				return OutcomePurged, nil
			}
			return OutcomeError, fmt.Errorf("fetch unverified role: %w", err)
		}
	} else {
		role, err := r.createRole(ctx, guildID)
		if err == nil {
			cfg.UnverifiedRoleID = role.ID
			cfg, err = settings.SaveVerification(ctx, r.settings, guildID, true, cfg)
		}
		if err != nil {
			log.Error("unverified role creation failed", zap.Error(err))
			r.purgeLocked(ctx, guildID, cfg, "Failed to ensure Unverified role", OriginAutomatic)
			return OutcomePurged, nil
		}
		repaired = true
	}

	posted, err := r.ensureMessage(ctx, guildID, cfg)
	if err != nil {
		if errors.Is(err, errPostFailed) {
			log.Error("verification message post failed", zap.Error(err))
			r.purgeLocked(ctx, guildID, cfg, "Failed to post verification message", OriginAutomatic)
			return OutcomePurged, nil
		}
		return OutcomeError, err
	}
	if posted || repaired {
		return OutcomeRepaired, nil
	}
	return OutcomeConsistent, nil
}

var errPostFailed = errors.New("verification message could not be posted")

// ensureMessage recreates the verification message when it is missing and
// reports whether a new one was posted.
func (r *Reconciler) ensureMessage(ctx context.Context, guildID string, cfg settings.VerificationConfig) (bool, error) {
	if cfg.MessageID != "" {
		_, err := r.client.Message(ctx, cfg.ChannelID, cfg.MessageID)
		if err == nil {
			return false, nil
		}
		if !platform.IsNotFound(err) {
			return false, fmt.Errorf("fetch verification message: %w", err)
		}
		r.logger.Info("verification message missing, recreating", zap.String("guild_id", guildID), zap.String("message_id", cfg.MessageID))
	}

	msg, err := r.client.SendMessage(ctx, cfg.ChannelID, verificationMessage(r.clock.Now()))
	if err != nil {
		return false, fmt.Errorf("%w: %v", errPostFailed, err)
	}
	cfg.MessageID = msg.ID
	if _, err := settings.SaveVerification(ctx, r.settings, guildID, true, cfg); err != nil {
		if derr := r.client.DeleteMessage(ctx, cfg.ChannelID, msg.ID); derr != nil && !platform.IsNotFound(derr) {
			r.logger.Warn("delete unsaved verification message failed", zap.String("guild_id", guildID), zap.String("message_id", msg.ID), zap.Error(derr))
		}
		return false, fmt.Errorf("save verification message id: %w", err)
	}
	return true, nil
}

// createChannel reuses the configured unverified role when it still exists,
// otherwise creates one, then creates the restricted channel and persists
// both ids. The returned config carries whatever was created even on error.
func (r *Reconciler) createChannel(ctx context.Context, guildID string, cfg settings.VerificationConfig) (settings.VerificationConfig, error) {
	roleID := ""
	if cfg.UnverifiedRoleID != "" {
		role, err := r.client.Role(ctx, guildID, cfg.UnverifiedRoleID)
		switch {
		case err == nil:
			roleID = role.ID
		case !platform.IsNotFound(err):
			return cfg, fmt.Errorf("fetch unverified role: %w", err)
		}
	}
	if roleID == "" {
		role, err := r.createRole(ctx, guildID)
		if err != nil {
			return cfg, err
		}
		roleID = role.ID
		cfg.UnverifiedRoleID = roleID
	}

	channel, err := r.client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
		Name:  r.opts.ChannelName,
		Type:  discordgo.ChannelTypeGuildText,
		Topic: "Complete verification to gain access to the server",
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				ID:   guildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    roleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory,
				Deny:  discordgo.PermissionSendMessages | discordgo.PermissionAddReactions,
			},
		},
	})
	if err != nil {
		return cfg, fmt.Errorf("create channel: %w", err)
	}
	cfg.ChannelID = channel.ID

	saved, err := settings.SaveVerification(ctx, r.settings, guildID, true, cfg)
	if err != nil {
		return cfg, fmt.Errorf("save verification channel: %w", err)
	}
	r.logger.Info("verification channel created", zap.String("guild_id", guildID), zap.String("channel_id", channel.ID), zap.String("role_id", roleID))
	return saved, nil
}

func (r *Reconciler) createRole(ctx context.Context, guildID string) (*discordgo.Role, error) {
	no := false
	role, err := r.client.CreateRole(ctx, guildID, &discordgo.RoleParams{
		Name:        r.opts.RoleName,
		Hoist:       &no,
		Mentionable: &no,
	})
	if err != nil {
		return nil, fmt.Errorf("create unverified role: %w", err)
	}
	return role, nil
}
