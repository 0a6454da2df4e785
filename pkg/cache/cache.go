// Package cache provides the result cache injected into a matching run
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key with a per-entry time to live.
// A ttl <= 0 means the entry does not expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Noop is a cache that stores nothing
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Clear(context.Context) error                              { return nil }
