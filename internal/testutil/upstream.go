// Package testutil provides an in-process fake of the authenticated
// upstream API.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

const (
	Token     = "test-token"
	LoginPath = "/login"
)

// Upstream serves POST /login and JSON handlers per path. Requests without
// the issued token get 401.
type Upstream struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	drops    map[string]int
	queries  map[string][]url.Values
	logins   int
}

func NewUpstream(t *testing.T) *Upstream {
	t.Helper()
	u := &Upstream{
		handlers: map[string]http.HandlerFunc{},
		calls:    map[string]int{},
		drops:    map[string]int{},
		queries:  map[string][]url.Values{},
	}
	u.srv = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *Upstream) URL(path string) string { return u.srv.URL + path }

// Client disables keep-alives so a dropped connection is never retried
// transparently by the transport.
func (u *Upstream) Client() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func (u *Upstream) Handle(path string, h http.HandlerFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handlers[path] = h
}

// JSON answers path with v.
func (u *Upstream) JSON(path string, v any) {
	u.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, v)
	})
}

func (u *Upstream) Status(path string, code int) {
	u.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, code, map[string]any{"detail": http.StatusText(code)})
	})
}

// Drop closes the connection without a response for the next n requests to
// path.
func (u *Upstream) Drop(path string, n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.drops[path] = n
}

func (u *Upstream) Calls(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

func (u *Upstream) Logins() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.logins
}

func (u *Upstream) Queries(path string) []url.Values {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]url.Values(nil), u.queries[path]...)
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == LoginPath {
		u.login(w, r)
		return
	}

	u.mu.Lock()
	u.calls[r.URL.Path]++
	u.queries[r.URL.Path] = append(u.queries[r.URL.Path], r.URL.Query())
	drop := u.drops[r.URL.Path] > 0
	if drop {
		u.drops[r.URL.Path]--
	}
	h := u.handlers[r.URL.Path]
	u.mu.Unlock()

	if drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijack unsupported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if r.Header.Get("Authorization") != Token {
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"detail": "bad token"})
		return
	}
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (u *Upstream) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&body) != nil || body.Username == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	u.mu.Lock()
	u.logins++
	u.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(Token + "\n"))
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
