package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Key string

const (
	KeyLinkProtection Key = "link_protection"
	KeyAntiSpam       Key = "anti_spam"
	KeyVerification   Key = "member_verification"
)

var Keys = []Key{KeyLinkProtection, KeyAntiSpam, KeyVerification}

var ErrUnknownKey = errors.New("unknown settings key")

// Record is one policy's persisted state for one guild. Config holds the raw
// JSON document so the provider stays agnostic of the policy shapes.
type Record struct {
	Enabled bool
	Config  json.RawMessage
}

type Provider interface {
	Get(ctx context.Context, guildID string, key Key) (Record, error)
	Set(ctx context.Context, guildID string, key Key, enabled bool, config any) (Record, error)
	EnsureDefaults(ctx context.Context, guildID string) error
}

func ValidKey(key Key) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultRecord returns the record a freshly registered guild starts with.
func DefaultRecord(key Key) (Record, error) {
	var cfg any
	switch key {
	case KeyLinkProtection:
		cfg = DefaultLinkConfig()
	case KeyAntiSpam:
		cfg = DefaultSpamConfig()
	case KeyVerification:
		cfg = DefaultVerificationConfig()
	default:
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Record{}, err
	}
	return Record{Enabled: false, Config: raw}, nil
}

func EncodeConfig(config any) (json.RawMessage, error) {
	switch v := config.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

func LoadLink(ctx context.Context, p Provider, guildID string) (bool, LinkConfig, error) {
	rec, err := p.Get(ctx, guildID, KeyLinkProtection)
	if err != nil {
		return false, LinkConfig{}, err
	}
	cfg := DefaultLinkConfig()
	if err := decode(rec.Config, &cfg); err != nil {
		return false, LinkConfig{}, fmt.Errorf("decode link_protection: %w", err)
	}
	return rec.Enabled, cfg.Normalize(), nil
}

func LoadSpam(ctx context.Context, p Provider, guildID string) (bool, SpamConfig, error) {
	rec, err := p.Get(ctx, guildID, KeyAntiSpam)
	if err != nil {
		return false, SpamConfig{}, err
	}
	cfg := DefaultSpamConfig()
	if err := decode(rec.Config, &cfg); err != nil {
		return false, SpamConfig{}, fmt.Errorf("decode anti_spam: %w", err)
	}
	return rec.Enabled, cfg.Normalize(), nil
}

func LoadVerification(ctx context.Context, p Provider, guildID string) (bool, VerificationConfig, error) {
	rec, err := p.Get(ctx, guildID, KeyVerification)
	if err != nil {
		return false, VerificationConfig{}, err
	}
	var cfg VerificationConfig
	if err := decode(rec.Config, &cfg); err != nil {
		return false, VerificationConfig{}, fmt.Errorf("decode member_verification: %w", err)
	}
	if cfg.VerificationType == "" {
		cfg.VerificationType = VerificationSimple
	}
	return rec.Enabled, cfg, nil
}

func SaveVerification(ctx context.Context, p Provider, guildID string, enabled bool, cfg VerificationConfig) (VerificationConfig, error) {
	rec, err := p.Set(ctx, guildID, KeyVerification, enabled, cfg)
	if err != nil {
		return cfg, err
	}
	var saved VerificationConfig
	if err := decode(rec.Config, &saved); err != nil {
		return cfg, fmt.Errorf("decode member_verification: %w", err)
	}
	return saved, nil
}

func decode(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}
