package settings

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Provider. It is read-after-write consistent and is
// what the module tests run against.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	// Err, when set, is returned by every call.
	Err error
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(_ context.Context, guildID string, key Key) (Record, error) {
	if m.Err != nil {
		return Record{}, m.Err
	}
	if !ValidKey(key) {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	m.mu.RLock()
	rec, ok := m.records[memoryKey(guildID, key)]
	m.mu.RUnlock()
	if ok {
		return rec, nil
	}
	return DefaultRecord(key)
}

func (m *Memory) Set(_ context.Context, guildID string, key Key, enabled bool, config any) (Record, error) {
	if m.Err != nil {
		return Record{}, m.Err
	}
	if !ValidKey(key) {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	raw, err := EncodeConfig(config)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Enabled: enabled, Config: raw}
	m.mu.Lock()
	m.records[memoryKey(guildID, key)] = rec
	m.mu.Unlock()
	return rec, nil
}

func (m *Memory) EnsureDefaults(_ context.Context, guildID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range Keys {
		k := memoryKey(guildID, key)
		if _, ok := m.records[k]; ok {
			continue
		}
		rec, err := DefaultRecord(key)
		if err != nil {
			return err
		}
		m.records[k] = rec
	}
	return nil
}

func memoryKey(guildID string, key Key) string {
	return guildID + ":" + string(key)
}
