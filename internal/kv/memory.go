package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process KV for tests and single-instance deployments
// without Redis. TTL expiry is checked lazily on access, mirroring the
// corpus's InMemoryQueue style of favoring a plain mutex-guarded map over
// a background sweeper.
type Memory struct {
	mu      sync.Mutex
	values  map[string]int64
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]int64),
		expires: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) evictIfExpired(key string) {
	if exp, ok := m.expires[key]; ok && m.now().After(exp) {
		delete(m.values, key)
		delete(m.expires, key)
	}
}

func (m *Memory) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictIfExpired(key)
	m.values[key]++
	if m.values[key] == 1 {
		m.expires[key] = m.now().Add(ttl)
	}
	return m.values[key], nil
}

func (m *Memory) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictIfExpired(key)
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	return nil
}

func (m *Memory) Scan(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.values {
		m.evictIfExpired(k)
		if _, ok := m.values[k]; ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
