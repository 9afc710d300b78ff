package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache. Expired entries are dropped lazily on read
// and swept when the map grows past sweepThreshold.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

const sweepThreshold = 4096

// NewMemory returns a Memory cache on the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns a Memory cache whose notion of time comes from
// now, letting tests advance expiry deterministically.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= sweepThreshold {
		m.sweepLocked()
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
}

func (m *Memory) sweepLocked() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

var _ Cache = (*Memory)(nil)
