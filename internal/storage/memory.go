package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[Scope]map[string][]byte
	hub  changeHub
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: map[Scope]map[string][]byte{
			Local:  {},
			Synced: {},
		},
	}
}

func (m *Memory) Get(ctx context.Context, scope Scope, key string, v any) error {
	m.mu.RLock()
	raw, ok := m.data[scope][key]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, scope Scope, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	m.mu.Lock()
	area, ok := m.data[scope]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown scope %d", scope)
	}

	others := 0
	for k, val := range area {
		if k != key {
			others += len(k) + len(val)
		}
	}
	if err := checkQuota(scope, key, data, others); err != nil {
		m.mu.Unlock()
		return err
	}

	old, existed := area[key]
	area[key] = data
	m.mu.Unlock()

	if existed && bytes.Equal(old, data) {
		return nil
	}

	m.hub.publish(Change{
		Scope:    scope,
		Key:      key,
		OldValue: old,
		NewValue: data,
		Writer:   WriterFrom(ctx),
	})
	return nil
}

func (m *Memory) Remove(ctx context.Context, scope Scope, keys ...string) error {
	var changes []Change

	m.mu.Lock()
	for _, key := range keys {
		old, ok := m.data[scope][key]
		if !ok {
			continue
		}
		delete(m.data[scope], key)
		changes = append(changes, Change{
			Scope:    scope,
			Key:      key,
			OldValue: old,
			Writer:   WriterFrom(ctx),
		})
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.hub.publish(c)
	}
	return nil
}

func (m *Memory) OnChange(key string, fn ChangeFunc) func() {
	return m.hub.subscribe(key, fn)
}
