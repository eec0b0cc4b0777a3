// Package daterange answers date-range queries from per-day cache buckets,
// fetching only the uncached span from upstream.
package daterange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/keys"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
	"github.com/prefeitura-rio/api-dados-rio/internal/upstream"
)

// field is the container of events both in upstream responses and in
// cached buckets.
const field = "eventos"

type Store interface {
	GetMany(ctx context.Context, keys []string) (map[string]any, error)
	SetMany(ctx context.Context, kv map[string]any, ttl cache.TTL) error
}

type Fetcher interface {
	Fetch(ctx context.Context, ep upstream.Endpoint, params url.Values) (any, error)
}

type Config struct {
	Name     string // bucket key base and metrics label
	Endpoint upstream.Endpoint
	TTL      cache.TTL
}

type Option func(*Aggregator)

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithCoalescing shares one upstream call among concurrent queries missing
// the same span.
func WithCoalescing(on bool) Option {
	return func(a *Aggregator) {
		if on {
			a.group = &singleflight.Group{}
		} else {
			a.group = nil
		}
	}
}

type Aggregator struct {
	cfg   Config
	store Store
	up    Fetcher
	log   *slog.Logger
	group *singleflight.Group
}

func New(cfg Config, store Store, up Fetcher, opts ...Option) (*Aggregator, error) {
	if cfg.Name == "" || cfg.Endpoint.URL == "" {
		return nil, errors.New("daterange: name and endpoint are required")
	}
	if !cfg.TTL.Valid() || cfg.TTL.IsForever() {
		return nil, errors.New("daterange: ttl must be a positive duration")
	}
	a := &Aggregator{cfg: cfg, store: store, up: up, log: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

type Result struct {
	Eventos    []any
	CachedDays int
	Fetched    bool
}

// Query serves q. Buckets found in cache are used as is; the smallest span
// covering every missing day is fetched once and re-bucketed by each event's
// own start day. Any upstream failure fails the whole query.
func (a *Aggregator) Query(ctx context.Context, q Query) (Result, error) {
	days := q.Days()
	bucketKeys := make([]string, len(days))
	for i, d := range days {
		bucketKeys[i] = keys.DateBucket(a.cfg.Name, d)
	}

	cached := map[string]any{}
	if len(bucketKeys) > 0 {
		var err error
		cached, err = a.store.GetMany(ctx, bucketKeys)
		if err != nil {
			return Result{}, apperr.Unavailable(a.cfg.Name, err)
		}
	}

	res := Result{Eventos: make([]any, 0)}
	fromCache := make(map[time.Time]bool, len(days))
	var lo, hi time.Time
	missing := false
	for i, d := range days {
		if evs, ok := bucketEvents(cached[bucketKeys[i]]); ok {
			res.Eventos = append(res.Eventos, evs...)
			fromCache[d] = true
			res.CachedDays++
			continue
		}
		if !missing {
			lo, missing = d, true
		}
		hi = d
	}
	if !missing {
		observability.IncCacheHit(a.cfg.Name)
		return res, nil
	}
	observability.IncCacheMiss(a.cfg.Name)

	if lo.Equal(hi) {
		hi = hi.AddDate(0, 0, 1)
	}
	fetched, err := a.fetchSpan(ctx, lo, hi)
	if err != nil {
		return Result{}, apperr.Unavailable(a.cfg.Name, err)
	}
	res.Fetched = true

	groups := map[time.Time][]any{}
	for _, ev := range fetched {
		day, ok := eventDay(ev)
		if !ok {
			a.log.WarnContext(ctx, "event without parseable start, not cached", "resource", a.cfg.Name)
			res.Eventos = append(res.Eventos, ev)
			continue
		}
		if !fromCache[day] {
			res.Eventos = append(res.Eventos, ev)
		}
		groups[day] = append(groups[day], ev)
	}

	// Days strictly before the span end were covered by the fetch whatever
	// the upstream end-bound semantics, so an empty result is cacheable.
	for d := lo; d.Before(hi); d = d.AddDate(0, 0, 1) {
		if _, ok := groups[d]; !ok && !fromCache[d] {
			groups[d] = []any{}
		}
	}

	kv := make(map[string]any, len(groups))
	for d, evs := range groups {
		kv[keys.DateBucket(a.cfg.Name, d)] = map[string]any{field: evs}
	}
	if err := a.store.SetMany(ctx, kv, a.cfg.TTL); err != nil {
		a.log.WarnContext(ctx, "bucket cache write failed", "resource", a.cfg.Name, "buckets", len(kv), "err", err)
	}

	a.log.DebugContext(ctx, "range query",
		"resource", a.cfg.Name,
		"days", len(days),
		"cached_days", res.CachedDays,
		"span_from", lo.Format(time.DateOnly),
		"span_to", hi.Format(time.DateOnly),
		"fetched", len(fetched),
		"buckets_written", len(kv))
	return res, nil
}

func (a *Aggregator) fetchSpan(ctx context.Context, lo, hi time.Time) ([]any, error) {
	params := url.Values{
		"inicio": {lo.Format(DateFormat)},
		"fim":    {hi.Format(DateFormat)},
	}
	var v any
	var err error
	if a.group != nil {
		ch := a.group.DoChan(params.Encode(), func() (any, error) {
			fctx, cancel := upstream.Shared(ctx)
			defer cancel()
			return a.up.Fetch(fctx, a.cfg.Endpoint, params)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			v, err = r.Val, r.Err
		}
	} else {
		v, err = a.up.Fetch(ctx, a.cfg.Endpoint, params)
	}
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("upstream %s: response is not an object", a.cfg.Endpoint.Name)
	}
	evs, ok := m[field].([]any)
	if !ok {
		return nil, fmt.Errorf("upstream %s: response has no %q list", a.cfg.Endpoint.Name, field)
	}
	return evs, nil
}

// bucketEvents treats anything but {"eventos": [...]} as a miss.
func bucketEvents(v any) ([]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	evs, ok := m[field].([]any)
	return evs, ok
}
