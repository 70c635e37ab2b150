package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"securitybot/internal/settings"
)

var _ settings.Provider = (*Store)(nil)

func (s *Store) Get(ctx context.Context, guildID string, key settings.Key) (settings.Record, error) {
	if !settings.ValidKey(key) {
		return settings.Record{}, fmt.Errorf("%w: %s", settings.ErrUnknownKey, key)
	}
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT enabled, config FROM policy_settings WHERE guild_id = ? AND policy = ?
	`), guildID, string(key))

	var enabled int
	var raw string
	if err := row.Scan(&enabled, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settings.DefaultRecord(key)
		}
		return settings.Record{}, err
	}
	return settings.Record{Enabled: enabled == 1, Config: json.RawMessage(raw)}, nil
}

func (s *Store) Set(ctx context.Context, guildID string, key settings.Key, enabled bool, config any) (settings.Record, error) {
	if !settings.ValidKey(key) {
		return settings.Record{}, fmt.Errorf("%w: %s", settings.ErrUnknownKey, key)
	}
	raw, err := settings.EncodeConfig(config)
	if err != nil {
		return settings.Record{}, err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO policy_settings (guild_id, policy, enabled, config, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, policy) DO UPDATE SET
			enabled = excluded.enabled,
			config = excluded.config,
			updated_at = excluded.updated_at
	`), guildID, string(key), boolToInt(enabled), string(raw), time.Now().Unix())
	if err != nil {
		return settings.Record{}, err
	}
	// read back so callers see exactly what was persisted
	return s.Get(ctx, guildID, key)
}

func (s *Store) EnsureDefaults(ctx context.Context, guildID string) error {
	now := time.Now().Unix()
	for _, key := range settings.Keys {
		rec, err := settings.DefaultRecord(key)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO policy_settings (guild_id, policy, enabled, config, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(guild_id, policy) DO NOTHING
		`), guildID, string(key), boolToInt(rec.Enabled), string(rec.Config), now)
		if err != nil {
			return err
		}
	}
	return nil
}
