// Package resource implements cache-aside reads for single-entity upstream
// resources: POP lists, open incidents and activity catalogs.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/keys"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
	"github.com/prefeitura-rio/api-dados-rio/internal/upstream"
)

const BackupWarning = "Failed to fetch new data, using backup cached data."

type Fetcher interface {
	Fetch(ctx context.Context, ep upstream.Endpoint, params url.Values) (any, error)
}

type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
	SourceBackup   Source = "backup"
)

type Result struct {
	Value   any
	Source  Source
	Warning string
}

// Spec configures one resource. Param names the required query parameter of
// parameterized resources; it is forwarded upstream under the same name.
type Spec struct {
	Name     string
	Key      string
	Endpoint upstream.Endpoint
	Param    string
	TTL      cache.TTL
	Backup   bool
}

func (s Spec) validate() error {
	if s.Key == "" || s.Endpoint.URL == "" {
		return fmt.Errorf("resource %q: key and endpoint are required", s.Name)
	}
	if !s.TTL.Valid() || s.TTL.IsForever() {
		return fmt.Errorf("resource %q: ttl must be a positive duration", s.Name)
	}
	return nil
}

type Option func(*Static)

func WithLogger(l *slog.Logger) Option {
	return func(s *Static) { s.log = l }
}

// WithCoalescing shares one upstream call among concurrent misses of the
// same key.
func WithCoalescing(on bool) Option {
	return func(s *Static) {
		if on {
			s.group = &singleflight.Group{}
		} else {
			s.group = nil
		}
	}
}

type Static struct {
	spec  Spec
	store cache.Store
	up    Fetcher
	log   *slog.Logger
	group *singleflight.Group
}

func NewStatic(spec Spec, store cache.Store, up Fetcher, opts ...Option) (*Static, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = spec.Key
	}
	s := &Static{spec: spec, store: store, up: up, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Static) Spec() Spec { return s.spec }

// Get serves the resource for id (ignored for singleton resources).
func (s *Static) Get(ctx context.Context, id string) (Result, error) {
	key := s.spec.Key
	var params url.Values
	if s.spec.Param != "" {
		id = strings.TrimSpace(id)
		if id == "" {
			return Result{}, apperr.Required(s.spec.Param)
		}
		key = keys.Param(s.spec.Key, id)
		params = url.Values{s.spec.Param: {id}}
	}

	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return Result{}, apperr.Unavailable(s.spec.Name, err)
	}
	if ok {
		observability.IncCacheHit(s.spec.Name)
		return Result{Value: v, Source: SourceCache}, nil
	}
	observability.IncCacheMiss(s.spec.Name)

	if s.group == nil {
		return s.fill(ctx, key, params)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := upstream.Shared(ctx)
		defer cancel()
		return s.fill(fctx, key, params)
	})
	select {
	case <-ctx.Done():
		return Result{}, apperr.Unavailable(s.spec.Name, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (s *Static) fill(ctx context.Context, key string, params url.Values) (Result, error) {
	v, err := s.up.Fetch(ctx, s.spec.Endpoint, params)
	if err != nil {
		if s.spec.Backup {
			if r, ok := s.fromBackup(ctx, key, err); ok {
				return r, nil
			}
		}
		return Result{}, apperr.Unavailable(s.spec.Name, err)
	}

	if err := s.store.Set(ctx, key, v, s.spec.TTL); err != nil {
		s.log.WarnContext(ctx, "cache set failed", "resource", s.spec.Name, "key", key, "err", err)
	}
	if s.spec.Backup {
		if err := s.store.Set(ctx, keys.Backup(key), v, cache.Forever); err != nil {
			s.log.WarnContext(ctx, "backup set failed", "resource", s.spec.Name, "key", key, "err", err)
		}
	}
	return Result{Value: v, Source: SourceUpstream}, nil
}

func (s *Static) fromBackup(ctx context.Context, key string, cause error) (Result, bool) {
	b, ok, err := s.store.Get(ctx, keys.Backup(key))
	if err != nil {
		s.log.WarnContext(ctx, "backup read failed", "resource", s.spec.Name, "err", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	observability.IncCacheBackup(s.spec.Name)
	s.log.WarnContext(ctx, "upstream failed, serving backup", "resource", s.spec.Name, "err", cause)
	return Result{Value: b, Source: SourceBackup, Warning: BackupWarning}, true
}
