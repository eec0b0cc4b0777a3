package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/health"
	middleware "github.com/prefeitura-rio/api-dados-rio/internal/core/middleware"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/router"
)

// V1Deprecation is the cut-off advertised on every /v1 response.
const V1Deprecation = "2022-12-31 23:59:59"

// DefaultWriteTimeout applies when Run is given none.
const DefaultWriteTimeout = 60 * time.Second

type Options struct {
	Handlers *router.Handlers
	// RateLimit wraps the API routes; nil disables limiting.
	RateLimit func(http.Handler) http.Handler
	// RequestTimeout bounds each API request; zero leaves it unbounded.
	RequestTimeout time.Duration
	Ready          []health.Check
	// Metrics is mounted at MetricsPath when metrics share the API listener.
	Metrics     http.Handler
	MetricsPath string
}

// NewHandler builds the full route tree.
func NewHandler(opts Options, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, opts.Ready...))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Deadline(opts.RequestTimeout))
		}
		r.HandleFunc("/v1", middleware.Deprecated(V1Deprecation))
		r.HandleFunc("/v1/*", middleware.Deprecated(V1Deprecation))
		if opts.Handlers != nil {
			r.Route("/v2", opts.Handlers.Mount)
		}
	})
	return r
}

// Run serves handler on addr until ctx is done. writeTimeout must exceed the
// handler's RequestTimeout; zero means DefaultWriteTimeout.
func Run(ctx context.Context, addr string, writeTimeout time.Duration, handler http.Handler, logger *slog.Logger) error {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
