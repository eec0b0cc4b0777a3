package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/config"
	"github.com/prefeitura-rio/api-dados-rio/internal/testutil"
)

func newApp(t *testing.T, extra map[string]string) (*httptest.Server, *testutil.Upstream) {
	t.Helper()
	up := testutil.NewUpstream(t)
	environ := map[string]string{
		"API_USERNAME":                    "user",
		"API_PASSWORD":                    "pass",
		"API_URL_LOGIN":                   up.URL(testutil.LoginPath),
		"API_URL_LIST_POPS":               up.URL("/pops"),
		"API_URL_LIST_EVENTOS_ABERTOS":    up.URL("/eventos_abertos"),
		"API_URL_LIST_EVENTOS":            up.URL("/eventos"),
		"API_URL_LIST_ATIVIDADES_EVENTOS": up.URL("/atividades_evento"),
		"API_URL_LIST_ATIVIDADES_POP":     up.URL("/atividades_pop"),
		"UPSTREAM_MAX_RETRIES":            "0",
		"RATE_LIMIT_PER_MINUTE":           "1000",
		"RATE_LIMIT_BURST":                "1000",
	}
	for k, v := range extra {
		environ[k] = v
	}
	cfg, err := config.Parse(env.Options{Environment: environ})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	a, err := New(context.Background(), cfg, nil, up.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv, up
}

func get(t *testing.T, target string) (int, string) {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestApp_PopsAreCached(t *testing.T) {
	srv, up := newApp(t, nil)
	up.JSON("/pops", []any{map[string]any{"id": 1, "nome": "Alagamento"}})

	for i := 0; i < 3; i++ {
		code, body := get(t, srv.URL+"/v2/adm_cor_comando/pops")
		if code != http.StatusOK {
			t.Fatalf("status = %d body=%s", code, body)
		}
		if !strings.Contains(body, "Alagamento") {
			t.Fatalf("body = %s", body)
		}
	}
	if got := up.Calls("/pops"); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestApp_EventosValidation(t *testing.T) {
	srv, _ := newApp(t, nil)
	code, body := get(t, srv.URL+"/v2/adm_cor_comando/eventos")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	var e map[string]string
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e["error"] != `Parameter "inicio" is required.` {
		t.Fatalf("error = %q", e["error"])
	}
}

func TestApp_UpstreamFailureIs500(t *testing.T) {
	srv, up := newApp(t, nil)
	up.Status("/atividades_pop", http.StatusBadGateway)

	code, body := get(t, srv.URL+"/v2/adm_cor_comando/atividades_pop?popId=3")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if !strings.Contains(body, "Something went wrong. Try again later.") {
		t.Fatalf("body = %s", body)
	}
}

func TestApp_HangingUpstreamIs500WithinDeadline(t *testing.T) {
	srv, up := newApp(t, map[string]string{
		"REQUEST_TIMEOUT":      "300ms",
		"HTTP_WRITE_TIMEOUT":   "2s",
		"UPSTREAM_TIMEOUT":     "30s",
		"UPSTREAM_MAX_RETRIES": "5",
	})
	up.Handle("/pops", func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	start := time.Now()
	code, body := get(t, srv.URL+"/v2/adm_cor_comando/pops")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (body %s)", code, body)
	}
	if !strings.Contains(body, "Something went wrong. Try again later.") {
		t.Fatalf("body = %s", body)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("answered after %s", d)
	}
}

func TestApp_V1IsGone(t *testing.T) {
	srv, _ := newApp(t, nil)
	code, _ := get(t, srv.URL+"/v1/meteorologia/precipitacao")
	if code != http.StatusGone {
		t.Fatalf("status = %d, want 410", code)
	}
}

func TestApp_HealthAndMetrics(t *testing.T) {
	srv, _ := newApp(t, nil)
	if code, body := get(t, srv.URL+"/readyz"); code != http.StatusOK {
		t.Fatalf("readyz = %d %s", code, body)
	}
	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "app_build_info") {
		t.Fatalf("metrics = %d", code)
	}
}

func TestApp_SnapshotFromRedisURL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	_ = mr.Set("data_chuva_recente_radar_inea", `[{"id_h3":"88a8a06a1bfffff","chuva":1.2}]`)
	_ = mr.Set("data_update_chuva_recente_radar_inea", `[{"last_update":"2024-02-01 10:08:00"}]`)

	srv, _ := newApp(t, map[string]string{"REDIS_URL": "redis://" + mr.Addr()})

	code, body := get(t, srv.URL+"/v2/clima_radar/precipitacao_15min")
	if code != http.StatusOK || !strings.Contains(body, "88a8a06a1bfffff") {
		t.Fatalf("data = %d %s", code, body)
	}
	code, body = get(t, srv.URL+"/v2/clima_radar/ultima_atualizacao_precipitacao_15min")
	if code != http.StatusOK || body != "\"01/02/2024 10:08:00\"\n" {
		t.Fatalf("last update = %d %q", code, body)
	}

	code, _ = get(t, srv.URL+"/v2/clima_alagamento/alagamento_15min")
	if code != http.StatusInternalServerError {
		t.Fatalf("missing snapshot = %d, want 500", code)
	}
}
