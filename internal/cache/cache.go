// Package cache defines the key-value store shared by the resource caches,
// the range aggregator and the snapshot reader.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTTL = errors.New("cache: ttl must be positive or Forever")

// TTL is the lifetime of a cache entry. The zero value is invalid; use For
// or Forever.
type TTL struct {
	d       time.Duration
	forever bool
}

// Forever retains an entry until it is deleted explicitly.
var Forever = TTL{forever: true}

func For(d time.Duration) TTL { return TTL{d: d} }

func (t TTL) IsForever() bool { return t.forever }

// Duration is zero for Forever.
func (t TTL) Duration() time.Duration {
	if t.forever {
		return 0
	}
	return t.d
}

func (t TTL) Valid() bool { return t.forever || t.d > 0 }

func (t TTL) String() string {
	if t.forever {
		return "forever"
	}
	return t.d.String()
}

// Store holds JSON-like values (objects, arrays, scalars) under string keys.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, val any, ttl TTL) error
	Contains(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Backend is a byte-level store with per-key expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl TTL) error
	MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl TTL) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkTTL(key string, ttl TTL) error {
	if !ttl.Valid() {
		return fmt.Errorf("set %q: %w", key, ErrInvalidTTL)
	}
	return nil
}
