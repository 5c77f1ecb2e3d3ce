// Package cache provides the local durable key/value mirror that stores write
// snapshots into. It is a last-known-good copy, never the source of truth.
package cache

import (
	"errors"
	"sync"
)

const (
	// SpacesKey holds the snapshot of all visible spaces.
	SpacesKey = "spaces"

	boxesKeyPrefix = "boxes_"
	itemsKeyPrefix = "items_"
)

// ErrEmptyKey is returned when a cache operation is attempted without a key.
var ErrEmptyKey = errors.New("cache: key required")

// Store is a flat key to string store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// BoxesKey returns the snapshot key for the boxes of one space.
func BoxesKey(spaceID string) string {
	return boxesKeyPrefix + spaceID
}

// ItemsKey returns the snapshot key for the items of one box.
func ItemsKey(boxID string) string {
	return itemsKeyPrefix + boxID
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory constructs an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *Memory) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
