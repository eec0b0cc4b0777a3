package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
)

// Coded adapts a Backend to Store by encoding values with a Codec.
type Coded struct {
	b     Backend
	codec Codec
	log   *slog.Logger
}

var _ Store = (*Coded)(nil)

func New(b Backend, c Codec, log *slog.Logger) *Coded {
	if c == nil {
		c = JSON{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coded{b: b, codec: c, log: log}
}

func (s *Coded) Codec() Codec { return s.codec }

// Get reports a miss for entries that no longer decode and drops them.
func (s *Coded) Get(ctx context.Context, key string) (any, bool, error) {
	start := time.Now()
	raw, ok, err := s.b.Get(ctx, key)
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	v, err := s.codec.Unmarshal(raw)
	if err != nil {
		s.evictUndecodable(ctx, key, err)
		return nil, false, nil
	}
	return v, true, nil
}

// GetMany returns only the keys that were present and decodable.
func (s *Coded) GetMany(ctx context.Context, keys []string) (map[string]any, error) {
	start := time.Now()
	raw, err := s.b.MGet(ctx, keys)
	observability.ObserveCacheOp("mget", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("cache mget %d keys: %w", len(keys), err)
	}
	out := make(map[string]any, len(raw))
	for k, b := range raw {
		v, err := s.codec.Unmarshal(b)
		if err != nil {
			s.evictUndecodable(ctx, k, err)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (s *Coded) Set(ctx context.Context, key string, val any, ttl TTL) error {
	if err := checkTTL(key, ttl); err != nil {
		return err
	}
	b, err := s.codec.Marshal(val)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	start := time.Now()
	err = s.b.Set(ctx, key, b, ttl)
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (s *Coded) SetMany(ctx context.Context, kv map[string]any, ttl TTL) error {
	if !ttl.Valid() {
		return ErrInvalidTTL
	}
	if len(kv) == 0 {
		return nil
	}
	enc := make(map[string][]byte, len(kv))
	for k, v := range kv {
		b, err := s.codec.Marshal(v)
		if err != nil {
			return fmt.Errorf("cache encode %q: %w", k, err)
		}
		enc[k] = b
	}
	start := time.Now()
	err := s.b.MSetWithTTL(ctx, enc, ttl)
	observability.ObserveCacheOp("mset", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache mset %d keys: %w", len(kv), err)
	}
	return nil
}

func (s *Coded) Contains(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.b.Exists(ctx, key)
	observability.ObserveCacheOp("exists", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("cache exists %q: %w", key, err)
	}
	return ok, nil
}

func (s *Coded) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := s.b.Del(ctx, keys...)
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache del %d keys: %w", len(keys), err)
	}
	return nil
}

func (s *Coded) Ping(ctx context.Context) error {
	p, ok := s.b.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (s *Coded) Close() error { return s.b.Close() }

func (s *Coded) evictUndecodable(ctx context.Context, key string, cause error) {
	s.log.Warn("dropping undecodable cache entry", "key", key, "codec", s.codec.Name(), "err", cause)
	if err := s.b.Del(ctx, key); err != nil {
		s.log.Warn("cache delete failed", "key", key, "err", err)
	}
}
