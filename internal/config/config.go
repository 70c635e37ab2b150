package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// minIdleTTLMinutes keeps activity state alive for the whole mention tag window.
const minIdleTTLMinutes = 5

type Config struct {
	DiscordToken  string             `yaml:"discord_token"`
	DatabaseURL   string             `yaml:"database_url"`
	LogLevel      string             `yaml:"log_level"`
	RetentionDays int                `yaml:"retention_days"`
	Health        HealthConfig       `yaml:"health"`
	Discord       DiscordConfig      `yaml:"discord"`
	Enforcement   EnforcementConfig  `yaml:"enforcement"`
	Activity      ActivityConfig     `yaml:"activity"`
	Verification  VerificationConfig `yaml:"verification"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type DiscordConfig struct {
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
}

// EnforcementConfig keeps the link and spam timeout lengths apart on purpose;
// the two policies have always used different durations.
type EnforcementConfig struct {
	LinkTimeoutMinutes int `yaml:"link_timeout_minutes"`
	SpamTimeoutMinutes int `yaml:"spam_timeout_minutes"`
}

type ActivityConfig struct {
	IdleTTLMinutes       int `yaml:"idle_ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type VerificationConfig struct {
	StartupDelaySeconds    int    `yaml:"startup_delay_seconds"`
	InitialIntervalSeconds int    `yaml:"initial_interval_seconds"`
	SteadyIntervalSeconds  int    `yaml:"steady_interval_seconds"`
	WarmupMinutes          int    `yaml:"warmup_minutes"`
	JoinRecheckSeconds     int    `yaml:"join_recheck_seconds"`
	PurgeCooldownMinutes   int    `yaml:"purge_cooldown_minutes"`
	PurgeBatchSize         int    `yaml:"purge_batch_size"`
	ChannelName            string `yaml:"channel_name"`
	RoleName               string `yaml:"role_name"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL:   "/data/securitybot.db",
		LogLevel:      "info",
		RetentionDays: 30,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Discord:       DiscordConfig{HTTPTimeoutSeconds: 20},
		Enforcement:   EnforcementConfig{LinkTimeoutMinutes: 5, SpamTimeoutMinutes: 10},
		Activity:      ActivityConfig{IdleTTLMinutes: 10, SweepIntervalSeconds: 60},
		Verification: VerificationConfig{
			StartupDelaySeconds:    2,
			InitialIntervalSeconds: 30,
			SteadyIntervalSeconds:  10,
			WarmupMinutes:          5,
			JoinRecheckSeconds:     2,
			PurgeCooldownMinutes:   5,
			PurgeBatchSize:         5,
			ChannelName:            "✅verification",
			RoleName:               "Unverified",
		},
	}
}

func Load() (Config, error) {
	// a missing .env is normal outside of local development
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	applyFloors(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Discord.HTTPTimeoutSeconds = envInt("DISCORD_HTTP_TIMEOUT_SECONDS", cfg.Discord.HTTPTimeoutSeconds)
	cfg.Enforcement.LinkTimeoutMinutes = envInt("LINK_TIMEOUT_MINUTES", cfg.Enforcement.LinkTimeoutMinutes)
	cfg.Enforcement.SpamTimeoutMinutes = envInt("SPAM_TIMEOUT_MINUTES", cfg.Enforcement.SpamTimeoutMinutes)
	cfg.Activity.IdleTTLMinutes = envInt("ACTIVITY_IDLE_TTL_MINUTES", cfg.Activity.IdleTTLMinutes)
	cfg.Activity.SweepIntervalSeconds = envInt("ACTIVITY_SWEEP_INTERVAL_SECONDS", cfg.Activity.SweepIntervalSeconds)
	cfg.Verification.StartupDelaySeconds = envInt("VERIFICATION_STARTUP_DELAY_SECONDS", cfg.Verification.StartupDelaySeconds)
	cfg.Verification.InitialIntervalSeconds = envInt("VERIFICATION_INITIAL_INTERVAL_SECONDS", cfg.Verification.InitialIntervalSeconds)
	cfg.Verification.SteadyIntervalSeconds = envInt("VERIFICATION_STEADY_INTERVAL_SECONDS", cfg.Verification.SteadyIntervalSeconds)
	cfg.Verification.WarmupMinutes = envInt("VERIFICATION_WARMUP_MINUTES", cfg.Verification.WarmupMinutes)
	cfg.Verification.JoinRecheckSeconds = envInt("VERIFICATION_JOIN_RECHECK_SECONDS", cfg.Verification.JoinRecheckSeconds)
	cfg.Verification.PurgeCooldownMinutes = envInt("VERIFICATION_PURGE_COOLDOWN_MINUTES", cfg.Verification.PurgeCooldownMinutes)
	cfg.Verification.PurgeBatchSize = envInt("VERIFICATION_PURGE_BATCH_SIZE", cfg.Verification.PurgeBatchSize)
	cfg.Verification.ChannelName = envString("VERIFICATION_CHANNEL_NAME", cfg.Verification.ChannelName)
	cfg.Verification.RoleName = envString("VERIFICATION_ROLE_NAME", cfg.Verification.RoleName)
}

func applyFloors(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Discord.HTTPTimeoutSeconds <= 0 {
		cfg.Discord.HTTPTimeoutSeconds = defaults.Discord.HTTPTimeoutSeconds
	}
	if cfg.Enforcement.LinkTimeoutMinutes <= 0 {
		cfg.Enforcement.LinkTimeoutMinutes = defaults.Enforcement.LinkTimeoutMinutes
	}
	if cfg.Enforcement.SpamTimeoutMinutes <= 0 {
		cfg.Enforcement.SpamTimeoutMinutes = defaults.Enforcement.SpamTimeoutMinutes
	}
	if cfg.Activity.IdleTTLMinutes <= 0 {
		cfg.Activity.IdleTTLMinutes = defaults.Activity.IdleTTLMinutes
	}
	if cfg.Activity.IdleTTLMinutes < minIdleTTLMinutes {
		cfg.Activity.IdleTTLMinutes = minIdleTTLMinutes
	}
	if cfg.Activity.SweepIntervalSeconds <= 0 {
		cfg.Activity.SweepIntervalSeconds = defaults.Activity.SweepIntervalSeconds
	}
	if cfg.Verification.InitialIntervalSeconds <= 0 {
		cfg.Verification.InitialIntervalSeconds = defaults.Verification.InitialIntervalSeconds
	}
	if cfg.Verification.SteadyIntervalSeconds <= 0 {
		cfg.Verification.SteadyIntervalSeconds = defaults.Verification.SteadyIntervalSeconds
	}
	if cfg.Verification.PurgeBatchSize <= 0 {
		cfg.Verification.PurgeBatchSize = defaults.Verification.PurgeBatchSize
	}
	if cfg.Verification.ChannelName == "" {
		cfg.Verification.ChannelName = defaults.Verification.ChannelName
	}
	if cfg.Verification.RoleName == "" {
		cfg.Verification.RoleName = defaults.Verification.RoleName
	}
}

func (c Config) LinkTimeout() time.Duration {
	return time.Duration(c.Enforcement.LinkTimeoutMinutes) * time.Minute
}

func (c Config) SpamTimeout() time.Duration {
	return time.Duration(c.Enforcement.SpamTimeoutMinutes) * time.Minute
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Discord.HTTPTimeoutSeconds) * time.Second
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
