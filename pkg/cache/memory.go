package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the default number of entries held in memory
const DefaultMemorySize = 100_000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process LRU cache with per-entry expiry. It is meant to
// live for one matching run.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an LRU cache holding at most size entries
func NewMemory(size int, opts ...MemoryOption) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	m := &Memory{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the value for key unless it is missing or expired
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key for ttl
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

// Clear drops every entry
func (m *Memory) Clear(context.Context) error {
	m.entries.Purge()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (m *Memory) Len() int {
	return m.entries.Len()
}
