package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p.Path(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rr.Code)
	}
	return rr.Body.String()
}

func TestInit_BuildInfoAndRuntimeCollectors(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "1.4.0", Revision: "abc123", Branch: "main", BuildDate: "2024-02-01"}})

	want := `
# HELP app_build_info Build info for this binary (value is always 1).
# TYPE app_build_info gauge
app_build_info{branch="main",build_date="2024-02-01",revision="abc123",version="1.4.0"} 1
`
	if err := testutil.GatherAndCompare(p.reg, strings.NewReader(want), "app_build_info"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"go_goroutines", "process_start_time_seconds"} {
		if n, err := testutil.GatherAndCount(p.reg, name); err != nil || n == 0 {
			t.Errorf("%s: count=%d err=%v", name, n, err)
		}
	}
}

func TestInit_DefaultsBuildVersion(t *testing.T) {
	p := Init(Config{})
	if !strings.Contains(scrape(t, p), `version="dev"`) {
		t.Fatal("empty version should be reported as dev")
	}
}

func TestProvider_ServiceFamilies(t *testing.T) {
	p := Init(Config{})

	observability.ObserveHTTP(http.MethodGet, "/v2/adm_cor_comando/ocorrencias", http.StatusOK, 0.010)
	observability.ObserveUpstream("eventos", "error", 1.5)
	observability.IncUpstreamRetry("eventos")
	observability.ObserveCacheOp("mget", nil, 0.002)
	observability.IncCacheBackup("eventos_abertos")
	observability.IncRateLimited()

	body := scrape(t, p)
	for _, want := range []string{
		`http_request_duration_seconds_bucket{method="GET",route="/v2/adm_cor_comando/ocorrencias"`,
		`upstream_requests_total{endpoint="eventos",outcome="error"}`,
		`upstream_retries_total{endpoint="eventos"}`,
		`cache_ops_total{op="mget",result="ok"}`,
		`cache_results_total{outcome="backup",resource="eventos_abertos"}`,
		`http_rate_limited_total`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %s", want)
		}
	}
}

func TestProvider_Register(t *testing.T) {
	p := Init(Config{})
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "snapshot_catalog_size", Help: "test"})
	p.Register(g)
	g.Set(7)
	if got := testutil.ToFloat64(g); got != 7 {
		t.Fatalf("gauge = %v", got)
	}
	if !strings.Contains(scrape(t, p), "snapshot_catalog_size 7") {
		t.Fatal("registered collector not exposed")
	}
}

func TestProvider_PathAndServe(t *testing.T) {
	p := Init(Config{})
	if p.Path() != "/metrics" || p.Dedicated() {
		t.Fatalf("path=%q dedicated=%v", p.Path(), p.Dedicated())
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := p.Serve(context.Background(), log); err != nil {
		t.Fatalf("Serve without addr: %v", err)
	}

	d := Init(Config{Addr: "127.0.0.1:0", Path: "/internal/metrics"})
	if !d.Dedicated() || d.Path() != "/internal/metrics" {
		t.Fatalf("dedicated=%v path=%q", d.Dedicated(), d.Path())
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, log) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
