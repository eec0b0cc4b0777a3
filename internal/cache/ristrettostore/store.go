// Package ristrettostore is an in-process cache backend bounded by the byte
// size of the stored payloads.
package ristrettostore

import (
	"context"
	"errors"
	"fmt"

	rc "github.com/dgraph-io/ristretto"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
}

func DefaultConfig() Config {
	return Config{NumCounters: 1e5, MaxCost: 256 << 20, BufferItems: 64}
}

type Store struct {
	c *rc.Cache
}

var _ cache.Backend = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}

// Set waits for the write buffer to drain so a following Get observes the
// value. A write rejected by the admission policy is not an error.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl cache.TTL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ttl.Valid() {
		return cache.ErrInvalidTTL
	}
	s.c.SetWithTTL(key, append([]byte(nil), val...), int64(len(val))+1, ttl.Duration())
	s.c.Wait()
	return nil
}

func (s *Store) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl cache.TTL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ttl.Valid() {
		return cache.ErrInvalidTTL
	}
	for k, v := range kv {
		s.c.SetWithTTL(k, append([]byte(nil), v...), int64(len(v))+1, ttl.Duration())
	}
	s.c.Wait()
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		s.c.Del(k)
	}
	return nil
}

func (s *Store) Close() error {
	s.c.Wait()
	s.c.Close()
	return nil
}
