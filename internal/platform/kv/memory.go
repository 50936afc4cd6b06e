package kv

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	value   string
	expires time.Time
}

// Memory keeps values in an expirable LRU bounded by size. Entries expire
// after the smaller of the per-call TTL and maxTTL. Counters live outside the
// LRU so eviction can never roll them back.
type Memory struct {
	cache *lru.LRU[string, entry]

	mu       sync.Mutex
	counters map[string]int64
	now      func() time.Time
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	return &Memory{
		cache:    lru.NewLRU[string, entry](size, nil, maxTTL),
		counters: make(map[string]int64),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	e, ok := m.cache.Get(key)
	if !ok {
		return "", ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.cache.Remove(key)
		return "", ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.cache.Add(key, e)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.cache.Remove(k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *Memory) Counter(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key], nil
}

func (m *Memory) Ping(context.Context) error { return nil }
