// Package cache provides TTL key/value stores for memoized catalog lookups.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores encoded values under string keys. Every entry expires
// independently after the TTL given to Set.
type Cache interface {
	// Get returns the value for key. ok is false for missing or expired entries.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear drops every entry
	Clear(ctx context.Context) error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options configures New
type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// New creates the cache named by opts.Backend
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.KeyPrefix,
		})
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
