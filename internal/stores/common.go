// Package stores mirrors remote tables into local state. Every store performs
// its remote read or write first and only then patches memory and the durable
// snapshot, so a failed call never leaves partial state behind.
package stores

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"go.uber.org/zap"
)

var (
	errMissingRemote = errors.New("remote data source is required")
	errMissingCache  = errors.New("cache store is required")
	errMissingViewer = errors.New("viewer identity is required")
	// ErrNoRowReturned reports a write that the backend acknowledged without returning a row.
	ErrNoRowReturned = errors.New("stores: remote returned no row")
	// ErrNotLoaded reports an update for an entity that is not in local state.
	ErrNotLoaded = errors.New("stores: entity not loaded")
	// ErrParentChanged reports an update that tries to move an entity to another parent.
	ErrParentChanged = errors.New("stores: parent id is immutable")
	noOpLogger       = zap.NewNop()
)

// ServiceError carries a stable operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Topic names the part of local state an Event refers to.
type Topic string

const (
	TopicSpaces  Topic = "spaces"
	TopicMembers Topic = "members"
	TopicBoxes   Topic = "boxes"
	TopicItems   Topic = "items"
)

// Event notifies subscribers that a store's state changed.
type Event struct {
	Topic   Topic
	SpaceID string
	BoxID   string
}

// Listener receives store change events. It runs synchronously after the
// state update and must not call back into the store that emitted it.
type Listener func(Event)

type broadcaster struct {
	mu        sync.Mutex
	nextID    int64
	listeners map[int64]Listener
}

// Subscribe registers listener and returns a function that removes it.
func (b *broadcaster) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[int64]Listener)
	}
	b.nextID++
	id := b.nextID
	b.listeners[id] = listener
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *broadcaster) emit(event Event) {
	b.mu.Lock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, listener := range b.listeners {
		listeners = append(listeners, listener)
	}
	b.mu.Unlock()
	for _, listener := range listeners {
		listener(event)
	}
}

type storeBase struct {
	events *broadcaster
	cache  cache.Store
	clock  func() time.Time
	logger *zap.Logger
}

func newStoreBase(store cache.Store, clock func() time.Time, logger *zap.Logger) storeBase {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = noOpLogger
	}
	return storeBase{events: &broadcaster{}, cache: store, clock: clock, logger: logger}
}

// Subscribe registers listener for change events and returns its cancel function.
func (b *storeBase) Subscribe(listener Listener) func() {
	return b.events.Subscribe(listener)
}

func (b *storeBase) emit(event Event) {
	b.events.emit(event)
}

func (b *storeBase) now() string {
	return inventory.FormatTimestamp(b.clock())
}

func (b *storeBase) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	b.logger.Error("store error", attrs...)
}

// readSnapshot decodes the list stored under key. A missing or unreadable
// snapshot degrades to an empty list.
func readSnapshot[T any](b *storeBase, key string) []T {
	raw, ok, err := b.cache.Get(key)
	if err != nil {
		b.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if !ok || raw == "" {
		return []T{}
	}
	var values []T
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		b.logger.Warn("cache snapshot unreadable", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if values == nil {
		return []T{}
	}
	return values
}

func writeSnapshot[T any](b *storeBase, key string, values []T) {
	if values == nil {
		values = []T{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		b.logger.Warn("cache snapshot encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := b.cache.Set(key, string(encoded)); err != nil {
		b.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// dropSnapshot removes the list stored under key.
func (b *storeBase) dropSnapshot(key string) {
	if err := b.cache.Delete(key); err != nil {
		b.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func replaceByID[T any](values []T, id string, idOf func(T) string, replacement T) ([]T, bool) {
	updated := make([]T, len(values))
	found := false
	for index, value := range values {
		if idOf(value) == id {
			updated[index] = replacement
			found = true
			continue
		}
		updated[index] = value
	}
	return updated, found
}

func removeByID[T any](values []T, id string, idOf func(T) string) []T {
	updated := make([]T, 0, len(values))
	for _, value := range values {
		if idOf(value) != id {
			updated = append(updated, value)
		}
	}
	return updated
}

func findByID[T any](values []T, id string, idOf func(T) string) (T, bool) {
	for _, value := range values {
		if idOf(value) == id {
			return value, true
		}
	}
	var zero T
	return zero, false
}

func failureMessage(err error, fallback string) string {
	if err == nil || errors.Is(err, ErrNoRowReturned) {
		return fallback
	}
	if message := remote.Message(err); message != "" {
		return message
	}
	return fallback
}
