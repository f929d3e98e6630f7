// Package mock provides in-memory RemoteStore and DurableStore fakes for
// tests. Each method can be overridden with a function hook, and call counts
// are tracked atomically.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tiercache/pkg/cache"
)

// RemoteStore is a mock tier-2 store. Without hooks it behaves as a simple
// map with expiry honored on read.
type RemoteStore struct {
	// Function hooks - set these to customize behavior
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error

	mu   sync.Mutex
	data map[string]remoteEntry

	getCalls    int64
	setCalls    int64
	deleteCalls int64
}

type remoteEntry struct {
	value     string
	expiresAt time.Time
}

// NewRemoteStore creates an empty mock tier-2 store.
func NewRemoteStore() *RemoteStore {
	return &RemoteStore{data: make(map[string]remoteEntry)}
}

// Get implements cache.RemoteStore.
func (m *RemoteStore) Get(ctx context.Context, key string) (string, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.data[key]
	if !ok {
		return "", cache.ErrKeyNotFound
	}
	if !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt) {
		delete(m.data, key)
		return "", cache.ErrKeyNotFound
	}
	return ent.value, nil
}

// SetWithExpiry implements cache.RemoteStore.
func (m *RemoteStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = remoteEntry{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

// Delete implements cache.RemoteStore.
func (m *RemoteStore) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Name implements cache.RemoteStore.
func (m *RemoteStore) Name() string { return "mock-remote" }

// Seed stores a value directly, bypassing hooks and counters.
func (m *RemoteStore) Seed(key, value string, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = remoteEntry{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
}

// Contains reports whether key is present, bypassing hooks and counters.
func (m *RemoteStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// GetCalls returns the number of Get calls.
func (m *RemoteStore) GetCalls() int { return int(atomic.LoadInt64(&m.getCalls)) }

// SetCalls returns the number of SetWithExpiry calls.
func (m *RemoteStore) SetCalls() int { return int(atomic.LoadInt64(&m.setCalls)) }

// DeleteCalls returns the number of Delete calls.
func (m *RemoteStore) DeleteCalls() int { return int(atomic.LoadInt64(&m.deleteCalls)) }

// DurableStore is a mock tier-3 store. Without hooks it behaves as a simple
// map with expiry honored on read.
type DurableStore struct {
	// Function hooks - set these to customize behavior
	GetFunc       func(ctx context.Context, key string) (string, error)
	UpsertFunc    func(ctx context.Context, key, value string, expiresAt time.Time) error
	DeleteFunc    func(ctx context.Context, key string) error
	DeleteAllFunc func(ctx context.Context) error

	mu   sync.Mutex
	data map[string]durableRow

	getCalls       int64
	upsertCalls    int64
	deleteCalls    int64
	deleteAllCalls int64
}

type durableRow struct {
	value     string
	expiresAt time.Time
}

// NewDurableStore creates an empty mock tier-3 store.
func NewDurableStore() *DurableStore {
	return &DurableStore{data: make(map[string]durableRow)}
}

// Get implements cache.DurableStore.
func (m *DurableStore) Get(ctx context.Context, key string) (string, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.data[key]
	if !ok {
		return "", cache.ErrKeyNotFound
	}
	if !row.expiresAt.IsZero() && time.Now().After(row.expiresAt) {
		delete(m.data, key)
		return "", cache.ErrKeyNotFound
	}
	return row.value, nil
}

// Upsert implements cache.DurableStore.
func (m *DurableStore) Upsert(ctx context.Context, key, value string, expiresAt time.Time) error {
	atomic.AddInt64(&m.upsertCalls, 1)
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, key, value, expiresAt)
	}

	m.mu.Lock()
	m.data[key] = durableRow{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

// Delete implements cache.DurableStore.
func (m *DurableStore) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// DeleteAll implements cache.DurableStore.
func (m *DurableStore) DeleteAll(ctx context.Context) error {
	atomic.AddInt64(&m.deleteAllCalls, 1)
	if m.DeleteAllFunc != nil {
		return m.DeleteAllFunc(ctx)
	}

	m.mu.Lock()
	m.data = make(map[string]durableRow)
	m.mu.Unlock()
	return nil
}

// Name implements cache.DurableStore.
func (m *DurableStore) Name() string { return "mock-durable" }

// Seed stores a value directly, bypassing hooks and counters.
func (m *DurableStore) Seed(key, value string, expiresAt time.Time) {
	m.mu.Lock()
	m.data[key] = durableRow{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
}

// Contains reports whether key is present, bypassing hooks and counters.
func (m *DurableStore) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// Len returns the number of stored rows.
func (m *DurableStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// GetCalls returns the number of Get calls.
func (m *DurableStore) GetCalls() int { return int(atomic.LoadInt64(&m.getCalls)) }

// UpsertCalls returns the number of Upsert calls.
func (m *DurableStore) UpsertCalls() int { return int(atomic.LoadInt64(&m.upsertCalls)) }

// DeleteCalls returns the number of Delete calls.
func (m *DurableStore) DeleteCalls() int { return int(atomic.LoadInt64(&m.deleteCalls)) }

// DeleteAllCalls returns the number of DeleteAll calls.
func (m *DurableStore) DeleteAllCalls() int { return int(atomic.LoadInt64(&m.deleteAllCalls)) }
