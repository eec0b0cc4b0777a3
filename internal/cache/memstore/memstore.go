// Package memstore is the in-process cache backend used in development and
// tests. Entries expire lazily: an expired entry is dropped when read.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
)

type entry struct {
	val []byte
	exp time.Time // zero means no expiry
}

type Store struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	now func() time.Time
}

var _ cache.Backend = (*Store)(nil)

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New bounds the store to size entries; the least recently used entry is
// evicted when full.
func New(size int, opts ...Option) (*Store, error) {
	if size <= 0 {
		size = 10_000
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	s := &Store{lru: c, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// caller holds s.mu
func (s *Store) lookup(key string) ([]byte, bool) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && !s.now().Before(e.exp) {
		s.lru.Remove(key)
		return nil, false
	}
	return e.val, true
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookup(key)
	return b, ok, nil
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if b, ok := s.lookup(k); ok {
			out[k] = b
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl cache.TTL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ttl.Valid() {
		return cache.ErrInvalidTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, val, ttl)
	return nil
}

func (s *Store) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl cache.TTL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ttl.Valid() {
		return cache.ErrInvalidTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range kv {
		s.put(k, v, ttl)
	}
	return nil
}

func (s *Store) put(key string, val []byte, ttl cache.TTL) {
	e := entry{val: append([]byte(nil), val...)}
	if !ttl.IsForever() {
		e.exp = s.now().Add(ttl.Duration())
	}
	s.lru.Add(key, e)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
