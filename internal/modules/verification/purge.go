package verification

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"securitybot/internal/modules/audit"
	"securitybot/internal/platform"
	"securitybot/internal/settings"
)

type Origin string

const (
	// OriginManual is a disable requested from the dashboard.
	OriginManual Origin = "manual"
	// OriginAutomatic is a disable caused by drift or misconfiguration.
	OriginAutomatic Origin = "automatic"
)

type PurgeReport struct {
	ID                string
	Skipped           bool
	MessageDeleted    bool
	ChannelDeleted    bool
	RoleDeleted       bool
	MemberRoleUpdates int
	ConfigCleared     bool
}

// DisableAndPurge removes the verification channel and unverified role of
// a guild and clears its stored configuration.
func (r *Reconciler) DisableAndPurge(ctx context.Context, guildID, reason string, origin Origin) PurgeReport {
	if guildID == "" {
		return PurgeReport{Skipped: true}
	}
	unlock := r.lock(guildID)
	defer unlock()

	_, cfg, err := settings.LoadVerification(ctx, r.settings, guildID)
	if err != nil {
		r.logger.Warn("verification settings unavailable for purge", zap.String("guild_id", guildID), zap.Error(err))
	}
	return r.purgeLocked(ctx, guildID, cfg, reason, origin)
}

// purgeLocked cleans up the resources named by cfg. Automatic purges are
// rate limited per guild by the cooldown; manual ones never are. Every step
// is best effort and the stored config is always cleared.
func (r *Reconciler) purgeLocked(ctx context.Context, guildID string, cfg settings.VerificationConfig, reason string, origin Origin) PurgeReport {
	log := r.logger.With(zap.String("guild_id", guildID), zap.String("origin", string(origin)), zap.String("reason", reason))

	if origin != OriginManual {
		now := r.clock.Now()
		r.mu.Lock()
		last, ok := r.cooldowns[guildID]
		if ok && now.Sub(last) < r.opts.PurgeCooldown {
			r.mu.Unlock()
			log.Info("verification purge skipped, cooldown active", zap.Duration("remaining", r.opts.PurgeCooldown-now.Sub(last)))
			return PurgeReport{Skipped: true}
		}
		r.cooldowns[guildID] = now
		r.mu.Unlock()
	}

	report := PurgeReport{ID: uuid.NewString()}
	log = log.With(zap.String("purge_id", report.ID))
	log.Info("verification purge started")

	var g errgroup.Group
	if cfg.ChannelID != "" {
		g.Go(func() error {
			report.MessageDeleted, report.ChannelDeleted = r.purgeChannel(ctx, log, cfg)
			return nil
		})
	}
	if cfg.UnverifiedRoleID != "" {
		g.Go(func() error {
			report.RoleDeleted, report.MemberRoleUpdates = r.purgeRole(ctx, log, guildID, cfg.UnverifiedRoleID, reason, origin)
			return nil
		})
	}

	if _, err := r.settings.Set(ctx, guildID, settings.KeyVerification, false, settings.VerificationConfig{}); err != nil {
		log.Error("clear verification config failed", zap.Error(err))
	} else {
		report.ConfigCleared = true
	}
	_ = g.Wait()

	r.metrics.Purged(string(origin))
	r.audit.Log(ctx, audit.LevelWarn, guildID, "", "verification_purge", fmt.Sprintf(
		"purge_id=%s origin=%s reason=%q channel=%t message=%t role=%t member_updates=%d config=%t",
		report.ID, origin, reason, report.ChannelDeleted, report.MessageDeleted, report.RoleDeleted, report.MemberRoleUpdates, report.ConfigCleared,
	))
	log.Info("verification purge finished",
		zap.Bool("channel_deleted", report.ChannelDeleted),
		zap.Bool("message_deleted", report.MessageDeleted),
		zap.Bool("role_deleted", report.RoleDeleted),
		zap.Int("member_role_updates", report.MemberRoleUpdates),
		zap.Bool("config_cleared", report.ConfigCleared),
	)
	return report
}

// purgeChannel deletes the verification message and channel. A resource
// that is already gone counts as cleaned up.
func (r *Reconciler) purgeChannel(ctx context.Context, log *zap.Logger, cfg settings.VerificationConfig) (messageDeleted, channelDeleted bool) {
	if cfg.MessageID != "" {
		err := r.client.DeleteMessage(ctx, cfg.ChannelID, cfg.MessageID)
		switch {
		case err == nil:
			messageDeleted = true
		case platform.IsNotFound(err):
		default:
			log.Warn("delete verification message failed", zap.Error(err))
		}
	}
	err := r.client.DeleteChannel(ctx, cfg.ChannelID)
	switch {
	case err == nil, platform.IsNotFound(err):
		channelDeleted = true
	default:
		log.Warn("delete verification channel failed", zap.String("channel_id", cfg.ChannelID), zap.Error(err))
	}
	return messageDeleted, channelDeleted
}

// purgeRole deletes the unverified role. Automatic purges first take the
// role off every holder in parallel batches; manual purges skip straight to
// the deletion, which strips the role from its holders anyway.
func (r *Reconciler) purgeRole(ctx context.Context, log *zap.Logger, guildID, roleID, reason string, origin Origin) (bool, int) {
	var updates atomic.Int32
	if origin == OriginAutomatic {
		holders, err := r.client.MembersWithRole(ctx, guildID, roleID)
		if err != nil {
			log.Warn("list unverified role holders failed", zap.Error(err))
		}
		for start := 0; start < len(holders); start += r.opts.PurgeBatchSize {
			end := start + r.opts.PurgeBatchSize
			if end > len(holders) {
				end = len(holders)
			}
			var batch errgroup.Group
			for _, userID := range holders[start:end] {
				userID := userID
				batch.Go(func() error {
					if err := r.client.RemoveMemberRole(ctx, guildID, userID, roleID); err != nil {
						log.Warn("remove unverified role failed", zap.String("user_id", userID), zap.Error(err))
						return nil
					}
					updates.Add(1)
					return nil
				})
			}
			_ = batch.Wait()
		}
	}

	err := r.client.DeleteRole(ctx, guildID, roleID)
	switch {
	case err == nil, platform.IsNotFound(err):
		return true, int(updates.Load())
	default:
		log.Warn("delete unverified role failed", zap.String("role_id", roleID), zap.String("reason", reason), zap.Error(err))
		return false, int(updates.Load())
	}
}
