package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/observability"
)

type RateLimitConfig struct {
	PerMinute int
	Burst     int
	// TrustForwarded keys clients by the first X-Forwarded-For hop, for
	// deployments behind a proxy that sets it.
	TrustForwarded bool
	// MaxClients bounds the number of tracked limiters.
	MaxClients int
}

// RateLimit applies a token bucket per client IP and answers 429 when it is
// empty.
func RateLimit(cfg RateLimitConfig) (func(http.Handler) http.Handler, error) {
	if cfg.PerMinute <= 0 {
		return nil, errors.New("rate limit: PerMinute must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	limiters, err := lru.New[string, *rate.Limiter](cfg.MaxClients)
	if err != nil {
		return nil, err
	}
	every := rate.Every(time.Minute / time.Duration(cfg.PerMinute))
	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters.Get(ip); ok {
			return l
		}
		l := rate.NewLimiter(every, cfg.Burst)
		limiters.Add(ip, l)
		return l
	}

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !limiterFor(clientIP(r, cfg.TrustForwarded)).Allow() {
				observability.IncRateLimited()
				w.Header().Set("Retry-After", "60")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests."}`))
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}, nil
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
