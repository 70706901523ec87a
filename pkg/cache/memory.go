package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	rxredis "github.com/rxledger/pharmacy-backend/pkg/redis"
)

// MemoryStore is a process-local Store for development runs without Redis
// and for tests. Expiry is evaluated lazily against the injected clock.
type MemoryStore struct {
	keys rxredis.Client
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	failing error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, entries: map[string]memoryEntry{}}
}

// FailWith makes every operation return err until called with nil.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err
}

func (m *MemoryStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, rxredis.Nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, rxredis.Nil
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = append([]byte(nil), v...)
	case string:
		raw = []byte(v)
	default:
		raw = []byte(fmt.Sprint(v))
	}
	entry := memoryEntry{value: raw}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryStore) DeletePattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return 0, m.failing
	}
	var deleted int64
	for key := range m.entries {
		if matched, _ := path.Match(pattern, key); matched {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports how many unexpired entries are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.entries {
		if entry.expiresAt.IsZero() || m.now().Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CacheKey(tenantID, tag, hash string) string {
	return m.keys.CacheKey(tenantID, tag, hash)
}

func (m *MemoryStore) CachePattern(tenantID, tag string) string {
	return m.keys.CachePattern(tenantID, tag)
}
