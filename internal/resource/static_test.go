package resource

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/memstore"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/apperr"
	"github.com/prefeitura-rio/api-dados-rio/internal/upstream"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	params  []url.Values
	val     any
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ upstream.Endpoint, p url.Values) (any, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.val, f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct{ t atomic.Int64 }

func (c *clock) now() time.Time { return time.Unix(0, c.t.Load()) }
func (c *clock) add(d time.Duration) { c.t.Add(int64(d)) }

func newStore(t *testing.T) (*cache.Coded, *clock) {
	t.Helper()
	clk := &clock{}
	clk.t.Store(time.Date(2022, 6, 9, 12, 0, 0, 0, time.UTC).UnixNano())
	ms, err := memstore.New(128, memstore.WithClock(clk.now))
	if err != nil {
		t.Fatalf("memstore: %v", err)
	}
	return cache.New(ms, cache.JSON{}, nil), clk
}

var (
	shortTTL = cache.For(300 * time.Second)
	longTTL  = cache.For(86400 * time.Second)
)

func popsSpec() Spec {
	return Spec{Name: "pops", Key: "pops", Endpoint: upstream.Endpoint{Name: "pops", URL: "http://up/pops"}, TTL: longTTL}
}

func TestStatic_SecondReadWithinTTLIsServedFromCache(t *testing.T) {
	store, clk := newStore(t)
	up := &fakeFetcher{val: map[string]any{"retorno": "OK", "objeto": []any{map[string]any{"titulo": "Abalroamento", "id": 24.0}}}}
	s, err := NewStatic(popsSpec(), store, up)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	ctx := context.Background()

	r1, err := s.Get(ctx, "")
	if err != nil || r1.Source != SourceUpstream {
		t.Fatalf("first Get = %+v, %v", r1, err)
	}
	clk.add(23 * time.Hour)
	r2, err := s.Get(ctx, "")
	if err != nil || r2.Source != SourceCache {
		t.Fatalf("second Get = %+v, %v", r2, err)
	}
	if up.Calls() != 1 {
		t.Fatalf("upstream calls=%d want 1", up.Calls())
	}

	clk.add(2 * time.Hour)
	if _, err := s.Get(ctx, ""); err != nil {
		t.Fatalf("third Get: %v", err)
	}
	if up.Calls() != 2 {
		t.Fatalf("long ttl should have expired, calls=%d", up.Calls())
	}
}

func TestStatic_UpstreamFailureWithoutBackupIsUnavailable(t *testing.T) {
	store, _ := newStore(t)
	up := &fakeFetcher{err: &upstream.Error{Endpoint: "pops", Stage: upstream.StageTransport}}
	s, _ := NewStatic(popsSpec(), store, up)

	_, err := s.Get(context.Background(), "")
	if !errors.Is(err, apperr.ErrUnavailable) || !errors.Is(err, upstream.ErrUpstream) {
		t.Fatalf("err=%v want unavailable", err)
	}
	if ok, _ := store.Contains(context.Background(), "pops"); ok {
		t.Fatalf("failure must not populate cache")
	}
}

func eventosAbertosSpec() Spec {
	return Spec{
		Name: "eventos_abertos", Key: "eventos_abertos",
		Endpoint: upstream.Endpoint{Name: "eventos_abertos", URL: "http://up/abertos"},
		TTL:      shortTTL, Backup: true,
	}
}

func TestStatic_BackupFallback(t *testing.T) {
	store, clk := newStore(t)
	payload := map[string]any{"eventos": []any{map[string]any{"id": 75865.0, "status": "ABERTO"}}}
	up := &fakeFetcher{val: payload}
	s, _ := NewStatic(eventosAbertosSpec(), store, up)
	ctx := context.Background()

	if _, err := s.Get(ctx, ""); err != nil {
		t.Fatalf("priming Get: %v", err)
	}
	if ok, _ := store.Contains(ctx, "eventos_abertos_backup"); !ok {
		t.Fatalf("backup not written on success")
	}

	clk.add(30 * 24 * time.Hour)
	up.mu.Lock()
	up.err = errors.New("connection refused")
	up.mu.Unlock()

	r, err := s.Get(ctx, "")
	if err != nil {
		t.Fatalf("Get with backup: %v", err)
	}
	if r.Source != SourceBackup || r.Warning != BackupWarning {
		t.Fatalf("result=%+v want backup with warning", r)
	}
	m, _ := r.Value.(map[string]any)
	if evs, _ := m["eventos"].([]any); len(evs) != 1 {
		t.Fatalf("backup payload = %#v", r.Value)
	}
	if _, has := m["error"]; has {
		t.Fatalf("backup value must not be mutated; annotation belongs to the response")
	}
}

func TestStatic_BackupAbsentIsUnavailable(t *testing.T) {
	store, _ := newStore(t)
	up := &fakeFetcher{err: errors.New("boom")}
	s, _ := NewStatic(eventosAbertosSpec(), store, up)

	if _, err := s.Get(context.Background(), ""); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("err=%v want unavailable", err)
	}
}

func atividadesEventoSpec() Spec {
	return Spec{
		Name: "atividades_evento", Key: "atividades_evento", Param: "eventoId",
		Endpoint: upstream.Endpoint{Name: "atividades_evento", URL: "http://up/atividades"},
		TTL:      shortTTL,
	}
}

func TestStatic_MissingParamIsValidationWithoutAnyAccess(t *testing.T) {
	up := &fakeFetcher{val: map[string]any{}}
	s, _ := NewStatic(atividadesEventoSpec(), panicStore{}, up)

	_, err := s.Get(context.Background(), "  ")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Msg != "eventoId is required." {
		t.Fatalf("err=%v want eventoId validation", err)
	}
	if up.Calls() != 0 {
		t.Fatalf("upstream called on validation failure")
	}
}

func TestStatic_ParamKeysAndForwardsID(t *testing.T) {
	store, _ := newStore(t)
	up := &fakeFetcher{val: map[string]any{"atividades": []any{}}}
	s, _ := NewStatic(atividadesEventoSpec(), store, up)
	ctx := context.Background()

	if _, err := s.Get(ctx, "123"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok, _ := store.Contains(ctx, "atividades_evento_123"); !ok {
		t.Fatalf("expected key atividades_evento_123")
	}
	if got := up.params[0].Get("eventoId"); got != "123" {
		t.Fatalf("forwarded eventoId=%q", got)
	}
	if _, err := s.Get(ctx, "124"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if up.Calls() != 2 {
		t.Fatalf("distinct ids share a key, calls=%d", up.Calls())
	}
}

func TestStatic_CoalescesConcurrentMisses(t *testing.T) {
	store, _ := newStore(t)
	up := &fakeFetcher{val: map[string]any{"retorno": "OK"}, gate: make(chan struct{})}
	s, _ := NewStatic(popsSpec(), store, up, WithCoalescing(true))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Get(context.Background(), "")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(up.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if up.Calls() != 1 {
		t.Fatalf("upstream calls=%d want 1 with coalescing", up.Calls())
	}
}

func TestStatic_CoalescedFetchOutlivesFirstCaller(t *testing.T) {
	store, _ := newStore(t)
	up := &fakeFetcher{val: map[string]any{"retorno": "OK"}, gate: make(chan struct{}), started: make(chan struct{})}
	s, _ := NewStatic(popsSpec(), store, up, WithCoalescing(true))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.Get(firstCtx, "")
		first <- err
	}()
	<-up.started

	second := make(chan error, 1)
	go func() {
		_, err := s.Get(context.Background(), "")
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-first; !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("cancelled caller err=%v want unavailable", err)
	}
	close(up.gate)
	if err := <-second; err != nil {
		t.Fatalf("waiting caller failed with the first caller: %v", err)
	}
	if up.Calls() != 1 {
		t.Fatalf("upstream calls=%d want 1", up.Calls())
	}
}

func TestNewStatic_RejectsBadSpec(t *testing.T) {
	store, _ := newStore(t)
	bad := popsSpec()
	bad.TTL = cache.Forever
	if _, err := NewStatic(bad, store, &fakeFetcher{}); err == nil {
		t.Fatalf("Forever is reserved for backups")
	}
	bad = popsSpec()
	bad.Endpoint.URL = ""
	if _, err := NewStatic(bad, store, &fakeFetcher{}); err == nil {
		t.Fatalf("expected endpoint error")
	}
}

type panicStore struct{}

func (panicStore) Get(context.Context, string) (any, bool, error) { panic("store touched") }
func (panicStore) Set(context.Context, string, any, cache.TTL) error {
	panic("store touched")
}
func (panicStore) Contains(context.Context, string) (bool, error) { panic("store touched") }
func (panicStore) Delete(context.Context, ...string) error { panic("store touched") }
