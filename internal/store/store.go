// Package store keeps short-lived state with a TTL: the launch session
// values a miniapp caches between restarts, and the responses a host already
// sent for a request id.
package store

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	SetSession(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// GetSession returns nil and no error when key is absent or expired.
	GetSession(ctx context.Context, key string) ([]byte, error)
	DeleteSession(ctx context.Context, key string) error
	// GetProcessed returns the response recorded for reqID, if any.
	GetProcessed(ctx context.Context, reqID string) ([]byte, bool, error)
	MarkProcessed(ctx context.Context, reqID string, response []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

type item struct {
	value    []byte
	expireAt time.Time
}

func (i item) live(now time.Time) bool {
	return i.expireAt.IsZero() || now.Before(i.expireAt)
}

type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	sessions  map[string]item
	processed map[string]item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		sessions:  make(map[string]item),
		processed: make(map[string]item),
	}
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) SetSession(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = item{value: append([]byte(nil), value...), expireAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.sessions[key]
	if !ok || !it.live(m.now()) {
		return nil, nil
	}
	return append([]byte(nil), it.value...), nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) GetProcessed(_ context.Context, reqID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.processed[reqID]
	if !ok || !it.live(m.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, reqID string, response []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[reqID] = item{value: append([]byte(nil), response...), expireAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
