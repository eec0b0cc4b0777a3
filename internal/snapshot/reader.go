// Package snapshot reads weather and flooding snapshots written to the
// shared store by an out-of-process pipeline.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/keys"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
)

// LastUpdateFormat is how last_update is rendered to clients.
const LastUpdateFormat = "02/01/2006 15:04:05"

// BackupWarning annotates a response served from the backup copy.
const BackupWarning = "Failed to fetch new data, using backup cached data."

var (
	ErrMissing   = errors.New("snapshot key missing")
	ErrMalformed = errors.New("snapshot malformed")
)

type Spec struct {
	Group     string
	Name      string
	DataKey   string
	UpdateKey string
	// LocalKey, when set, caches the validated snapshot locally until the
	// next publication.
	LocalKey string
	// Backup keeps a never-expiring copy served when the source read fails.
	Backup bool
}

func (s Spec) ID() string { return s.Group + "/" + s.Name }

func (s Spec) backupKey() string {
	if s.LocalKey != "" {
		return keys.Backup(s.LocalKey)
	}
	return keys.Backup(s.DataKey)
}

type Source string

const (
	SourceStore  Source = "store"
	SourceCache  Source = "cache"
	SourceBackup Source = "backup"
)

type Result struct {
	Data       []any
	LastUpdate string
	Warning    string
	Source     Source
}

// Getter is the read side of the store the pipeline writes to.
type Getter interface {
	Get(ctx context.Context, key string) (any, bool, error)
}

type Option func(*Reader)

func WithLogger(l *slog.Logger) Option { return func(r *Reader) { r.log = l } }

func WithClock(now func() time.Time) Option { return func(r *Reader) { r.now = now } }

// WithLocation sets the zone for last_update values that carry none.
func WithLocation(loc *time.Location) Option { return func(r *Reader) { r.loc = loc } }

type Reader struct {
	src   Getter
	local cache.Store
	log   *slog.Logger
	now   func() time.Time
	loc   *time.Location
}

// NewReader reads snapshots from src. local holds the schedule-aligned copies
// and backups; it may be nil when no Spec uses either.
func NewReader(src Getter, local cache.Store, opts ...Option) *Reader {
	r := &Reader{src: src, local: local, log: slog.Default(), now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(r)
	}
	return r
}

// record is the shape stored under LocalKey and the backup key.
type record struct {
	Data       []any
	LastUpdate string
}

func (rec record) value() map[string]any {
	return map[string]any{"data": rec.Data, "last_update": rec.LastUpdate}
}

func recordFrom(v any) (record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return record{}, false
	}
	data, ok := m["data"].([]any)
	if !ok || len(data) == 0 {
		return record{}, false
	}
	lu, ok := m["last_update"].(string)
	if !ok {
		return record{}, false
	}
	return record{Data: data, LastUpdate: lu}, true
}

// Read returns the current snapshot for s.
func (r *Reader) Read(ctx context.Context, s Spec) (Result, error) {
	if s.LocalKey != "" && r.local != nil {
		if v, ok, err := r.local.Get(ctx, s.LocalKey); err != nil {
			r.log.WarnContext(ctx, "snapshot local cache read failed", "snapshot", s.ID(), "err", err)
		} else if ok {
			if rec, ok := recordFrom(v); ok {
				observability.IncCacheHit(s.ID())
				return Result{Data: rec.Data, LastUpdate: rec.LastUpdate, Source: SourceCache}, nil
			}
		}
	}
	observability.IncCacheMiss(s.ID())

	rec, lastUpdate, err := r.fetch(ctx, s)
	if err != nil {
		r.log.WarnContext(ctx, "snapshot read failed", "snapshot", s.ID(), "err", err)
		if s.Backup {
			if res, ok := r.fromBackup(ctx, s); ok {
				return res, nil
			}
		}
		return Result{}, apperr.Unavailable(s.ID(), err)
	}
	observability.SetSnapshotLastUpdate(s.ID(), lastUpdate)
	r.store(ctx, s, rec)
	return Result{Data: rec.Data, LastUpdate: rec.LastUpdate, Source: SourceStore}, nil
}

func (r *Reader) fetch(ctx context.Context, s Spec) (record, time.Time, error) {
	data, err := r.list(ctx, s.DataKey)
	if err != nil {
		return record{}, time.Time{}, err
	}
	upd, err := r.list(ctx, s.UpdateKey)
	if err != nil {
		return record{}, time.Time{}, err
	}
	first, ok := upd[0].(map[string]any)
	if !ok {
		return record{}, time.Time{}, fmt.Errorf("%s: %w: first element is not an object", s.UpdateKey, ErrMalformed)
	}
	raw, ok := first["last_update"]
	if !ok {
		return record{}, time.Time{}, fmt.Errorf("%s: %w: no last_update", s.UpdateKey, ErrMalformed)
	}
	t, err := ParseLastUpdate(raw, r.loc)
	if err != nil {
		return record{}, time.Time{}, fmt.Errorf("%s: %w: %w", s.UpdateKey, ErrMalformed, err)
	}
	return record{Data: data, LastUpdate: t.Format(LastUpdateFormat)}, t, nil
}

func (r *Reader) list(ctx context.Context, key string) ([]any, error) {
	v, ok, err := r.src.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrMissing)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T is not a list", key, ErrMalformed, v)
	}
	if len(l) == 0 {
		return nil, fmt.Errorf("%s: %w: empty list", key, ErrMalformed)
	}
	return l, nil
}

func (r *Reader) store(ctx context.Context, s Spec, rec record) {
	if r.local == nil {
		return
	}
	if s.LocalKey != "" {
		ttl := cache.For(TTLUntilNextPublication(r.now().In(r.loc)))
		if err := r.local.Set(ctx, s.LocalKey, rec.value(), ttl); err != nil {
			r.log.WarnContext(ctx, "snapshot local cache write failed", "snapshot", s.ID(), "err", err)
		}
	}
	if s.Backup {
		if err := r.local.Set(ctx, s.backupKey(), rec.value(), cache.Forever); err != nil {
			r.log.WarnContext(ctx, "snapshot backup write failed", "snapshot", s.ID(), "err", err)
		}
	}
}

func (r *Reader) fromBackup(ctx context.Context, s Spec) (Result, bool) {
	if r.local == nil {
		return Result{}, false
	}
	v, ok, err := r.local.Get(ctx, s.backupKey())
	if err != nil || !ok {
		return Result{}, false
	}
	rec, ok := recordFrom(v)
	if !ok {
		return Result{}, false
	}
	observability.IncCacheBackup(s.ID())
	r.log.InfoContext(ctx, "serving snapshot backup", "snapshot", s.ID(), "last_update", rec.LastUpdate)
	return Result{Data: rec.Data, LastUpdate: rec.LastUpdate, Warning: BackupWarning, Source: SourceBackup}, true
}
