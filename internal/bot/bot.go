package bot

import (
	"context"
	"fmt"
	"time"

	"securitybot/internal/activity"
	"securitybot/internal/clock"
	"securitybot/internal/config"
	"securitybot/internal/metrics"
	"securitybot/internal/modules/antispam"
	"securitybot/internal/modules/audit"
	"securitybot/internal/modules/enforcement"
	"securitybot/internal/modules/linkprotection"
	"securitybot/internal/modules/verification"
	"securitybot/internal/platform"
	"securitybot/internal/scheduler"
	"securitybot/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const eventTimeout = 30 * time.Second

// AuditRetention prunes old audit entries.
type AuditRetention interface {
	CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error)
}

type Deps struct {
	Settings  settings.Provider
	Audit     *audit.Logger
	Retention AuditRetention
	Metrics   *metrics.Metrics
	Clock     clock.Clock
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	client    platform.Client
	settings  settings.Provider
	retention AuditRetention
	metrics   *metrics.Metrics
	links     *linkprotection.Module
	spam      *antispam.Module
	verify    *verification.Reconciler
	scheduler *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	b, err := build(cfg, logger, platform.NewDiscord(session, cfg.HTTPTimeout()), deps)
	if err != nil {
		return nil, err
	}
	b.session = session
	return b, nil
}

// build wires every module around client. It does not touch the gateway.
func build(cfg config.Config, logger *zap.Logger, client platform.Client, deps Deps) (*Bot, error) {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		settings:  deps.Settings,
		retention: deps.Retention,
		metrics:   deps.Metrics,
		scheduler: scheduler.New(clk, logger.Named("scheduler")),
		ctx:       ctx,
		cancel:    cancel,
	}

	executor := enforcement.NewExecutor(client, clk, logger.Named("enforcement"), deps.Metrics)
	tracker := activity.NewTracker(time.Duration(cfg.Activity.IdleTTLMinutes) * time.Minute)
	b.links = linkprotection.New(deps.Settings, client, executor, deps.Audit, deps.Metrics, clk, logger.Named("link_protection"), cfg.LinkTimeout())
	b.spam = antispam.New(deps.Settings, tracker, executor, deps.Metrics, clk, logger.Named("anti_spam"), cfg.SpamTimeout())
	b.verify = verification.New(deps.Settings, client, clk, deps.Audit, deps.Metrics, logger.Named("verification"), verification.Options{
		ChannelName:    cfg.Verification.ChannelName,
		RoleName:       cfg.Verification.RoleName,
		PurgeCooldown:  time.Duration(cfg.Verification.PurgeCooldownMinutes) * time.Minute,
		PurgeBatchSize: cfg.Verification.PurgeBatchSize,
		JoinRecheck:    time.Duration(cfg.Verification.JoinRecheckSeconds) * time.Second,
	})

	if err := b.schedule(); err != nil {
		cancel()
		return nil, err
	}
	return b, nil
}

func (b *Bot) schedule() error {
	v := b.cfg.Verification
	b.scheduler.Adaptive("verification_reconcile", scheduler.AdaptiveOptions{
		Delay:   time.Duration(v.StartupDelaySeconds) * time.Second,
		Initial: time.Duration(v.InitialIntervalSeconds) * time.Second,
		Steady:  time.Duration(v.SteadyIntervalSeconds) * time.Second,
		Warmup:  time.Duration(v.WarmupMinutes) * time.Minute,
	}, b.verify.EnsureAll)

	sweep := time.Duration(b.cfg.Activity.SweepIntervalSeconds) * time.Second
	if err := b.scheduler.Every("activity_sweep", sweep, func(context.Context) {
		if removed := b.spam.Sweep(); removed > 0 {
			b.logger.Debug("activity sweep", zap.Int("evicted", removed))
		}
	}); err != nil {
		return err
	}

	if b.retention != nil && b.cfg.RetentionDays > 0 {
		if err := b.scheduler.Cron("audit_retention", "@daily", b.cleanupAuditLogs); err != nil {
			return fmt.Errorf("schedule audit retention: %w", err)
		}
	}
	return nil
}

func (b *Bot) cleanupAuditLogs(ctx context.Context) {
	removed, err := b.retention.CleanupAuditLogs(ctx, b.cfg.RetentionDays)
	if err != nil {
		b.logger.Warn("audit retention failed", zap.Error(err))
		return
	}
	b.logger.Info("audit retention", zap.Int64("removed", removed), zap.Int("retention_days", b.cfg.RetentionDays))
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onRoleDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	b.scheduler.Start(b.ctx)
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("scheduler did not stop before shutdown deadline")
	}
	b.cancel()
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, eventTimeout)
}
