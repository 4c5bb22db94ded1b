package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Backend with periodic cleanup of expired items.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

var _ Backend = (*Memory)(nil)

// NewMemory starts a Memory backend. cleanupEvery <= 0 disables the
// background cleanup loop.
func NewMemory(cleanupEvery time.Duration) *Memory {
	m := &Memory{
		items: make(map[string]item),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go m.cleanupLoop(cleanupEvery)
	}
	return m
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = item{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	it, exists := m.items[key]
	m.mu.RUnlock()
	if !exists {
		return "", false, nil
	}
	now := m.now()
	if !now.After(it.expiresAt) {
		return it.value, true, nil
	}
	// A Set may have replaced the entry since the read lock was released.
	m.mu.Lock()
	if cur, ok := m.items[key]; ok && now.After(cur.expiresAt) {
		delete(m.items, key)
	}
	m.mu.Unlock()
	return "", false, nil
}

// Len returns the number of stored (possibly expired) items.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Close stops the cleanup loop.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, it := range m.items {
		if now.After(it.expiresAt) {
			delete(m.items, key)
		}
	}
}
