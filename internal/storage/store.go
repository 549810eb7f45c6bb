package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Quotas of the synced scope, mirroring what browser sync storage allows.
const (
	SyncedQuotaBytesPerItem = 8192
	SyncedQuotaBytes        = 102400
)

// Scope selects which area a key lives in.
type Scope int

const (
	// Local is large and device-local.
	Local Scope = iota
	// Synced is small and replicated across a user's devices.
	Synced
)

func (s Scope) String() string {
	switch s {
	case Local:
		return "local"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// Change describes a single key mutation. NewValue is nil when the key was removed.
type Change struct {
	Scope    Scope
	Key      string
	OldValue json.RawMessage
	NewValue json.RawMessage
	Writer   string
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// ChangeFunc receives store changes. It runs on the writer's goroutine.
type ChangeFunc func(Change)

// Store is a JSON key-value store with change subscriptions.
type Store interface {
	// Get decodes the value at key into v. Returns ErrNotFound if absent.
	Get(ctx context.Context, scope Scope, key string, v any) error
	// Set encodes v and stores it at key.
	Set(ctx context.Context, scope Scope, key string, v any) error
	// Remove deletes keys; missing keys are ignored.
	Remove(ctx context.Context, scope Scope, keys ...string) error
	// OnChange subscribes fn to changes of key in any scope. An empty key
	// subscribes to every key. The returned func unsubscribes.
	OnChange(key string, fn ChangeFunc) (unsubscribe func())
}

type writerKey struct{}

// WithWriter tags writes made with ctx so subscribers can tell who wrote.
func WithWriter(ctx context.Context, writer string) context.Context {
	return context.WithValue(ctx, writerKey{}, writer)
}

// WriterFrom returns the writer set by WithWriter, or "".
func WriterFrom(ctx context.Context) string {
	w, _ := ctx.Value(writerKey{}).(string)
	return w
}

type subscription struct {
	id  uint64
	key string
	fn  ChangeFunc
}

// changeHub delivers changes to subscribers in subscription order.
type changeHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

func (h *changeHub) subscribe(key string, fn ChangeFunc) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, key: key, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *changeHub) publish(c Change) {
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		if s.key == "" || s.key == c.Key {
			s.fn(c)
		}
	}
}

func checkQuota(scope Scope, key string, data []byte, othersTotal int) error {
	if scope != Synced {
		return nil
	}
	item := len(key) + len(data)
	if item > SyncedQuotaBytesPerItem {
		return ErrQuotaExceeded
	}
	if othersTotal+item > SyncedQuotaBytes {
		return ErrQuotaExceeded
	}
	return nil
}
