// Package app assembles the API from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/prefeitura-rio/api-dados-rio/internal/aggregate/daterange"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/keys"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/memstore"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/redisstore"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/ristrettostore"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/config"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/health"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/httpclient"
	middleware "github.com/prefeitura-rio/api-dados-rio/internal/core/middleware"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/router"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/server"
	h3mapper "github.com/prefeitura-rio/api-dados-rio/internal/mapper/h3"
	"github.com/prefeitura-rio/api-dados-rio/internal/metrics"
	"github.com/prefeitura-rio/api-dados-rio/internal/resource"
	"github.com/prefeitura-rio/api-dados-rio/internal/snapshot"
	"github.com/prefeitura-rio/api-dados-rio/internal/upstream"
	"github.com/prefeitura-rio/api-dados-rio/pkg/invalidation/kafka"
)

const userAgent = "api-dados-rio"

// App is the assembled service. Close releases the stores.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	handler http.Handler
	metrics *metrics.Provider
	runner  *kafka.Runner
	closers []func() error
}

// Handler is the full HTTP route tree.
func (a *App) Handler() http.Handler { return a.handler }

// New builds every component. hc overrides the outbound client; nil builds
// one from cfg.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, hc *http.Client) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var mp *metrics.Provider
	if cfg.Metrics.Enabled {
		mp = metrics.Init(metrics.Config{
			Addr: cfg.Metrics.Addr,
			Path: cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   cfg.Build.Version,
				Revision:  cfg.Build.Revision,
				Branch:    cfg.Build.Branch,
				BuildDate: cfg.Build.BuildDate,
			},
		})
		a.metrics = mp
	}

	codec, err := cache.CodecByName(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}
	backend, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}
	store := cache.New(backend, codec, log.With("component", "cache"))

	// The weather pipeline writes JSON; its store is read with the JSON
	// codec whatever CACHE_CODEC says.
	ready := []health.Check{health.PingCheck("cache", store)}
	src := store
	if cfg.Snapshot.RedisURL != "" {
		rc, err := redisstore.NewFromURL(ctx, cfg.Snapshot.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		src = cache.New(rc, cache.JSON{}, log.With("component", "snapshot_source"))
		ready = append(ready, health.PingCheck("snapshot_source", src))
	}

	if hc == nil {
		hc = httpclient.NewOutbound(httpclient.Options{Timeout: cfg.Upstream.Timeout, UserAgent: userAgent})
	}
	up := upstream.New(upstream.Config{
		LoginURL: cfg.Upstream.LoginURL,
		Username: cfg.Upstream.Username,
		Password: cfg.Upstream.Password,
		Retry: upstream.RetryConfig{
			MaxRetries:    cfg.Upstream.MaxRetries,
			BackoffFactor: cfg.Upstream.BackoffFactor,
			MaxBackoff:    cfg.Upstream.MaxBackoff,
		},
	}, hc, log.With("component", "upstream"))

	deps, err := a.resources(store, up)
	if err != nil {
		return nil, err
	}
	deps.Snapshots = snapshot.NewReader(src, store,
		snapshot.WithLogger(log.With("component", "snapshot")),
		snapshot.WithLocation(cfg.Location()),
	)
	deps.Catalog = snapshot.Catalog()
	deps.Mapper = h3mapper.New()
	deps.Log = log

	if cfg.Invalidation.Enabled {
		kc := kafka.DefaultConfig(cfg.Invalidation.BrokerList(), cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
		kc.DedupeSize = cfg.Invalidation.DedupeSize
		opts := kafka.Options{Logger: log.With("component", "invalidation")}
		if mp != nil {
			opts.Register = mp.Registerer()
		}
		a.runner = kafka.New(kc, store, opts)
		ready = append(ready, health.ReporterCheck("invalidation", a.runner))
	}

	srvOpts := server.Options{Handlers: router.New(deps), RequestTimeout: cfg.HTTP.RequestTimeout, Ready: ready}
	if cfg.RateLimit.Enabled {
		rl, err := middleware.RateLimit(middleware.RateLimitConfig{
			PerMinute:      cfg.RateLimit.PerMinute,
			Burst:          cfg.RateLimit.Burst,
			TrustForwarded: cfg.RateLimit.TrustForwarded,
		})
		if err != nil {
			return nil, err
		}
		srvOpts.RateLimit = rl
	}
	if mp != nil && !mp.Dedicated() {
		srvOpts.Metrics = mp.Handler()
		srvOpts.MetricsPath = mp.Path()
	}
	a.handler = server.NewHandler(srvOpts, log)
	return a, nil
}

func (a *App) backend(ctx context.Context) (cache.Backend, error) {
	c := a.cfg.Cache
	var (
		b   cache.Backend
		err error
	)
	switch c.Backend {
	case "redis":
		b, err = redisstore.New(ctx, c.RedisAddr,
			redisstore.WithDB(c.RedisDB),
			redisstore.WithReadTimeout(c.OpTimeout),
			redisstore.WithWriteTimeout(c.OpTimeout),
		)
	case "ristretto":
		rc := ristrettostore.DefaultConfig()
		rc.NumCounters = int64(c.Size) * 10
		b, err = ristrettostore.New(rc)
	default:
		b, err = memstore.New(c.Size)
	}
	if err != nil {
		return nil, fmt.Errorf("cache backend %s: %w", c.Backend, err)
	}
	a.closers = append(a.closers, b.Close)
	a.log.Info("cache backend ready", "backend", c.Backend, "codec", a.cfg.Cache.Codec)
	return b, nil
}

// resources builds the operations-center resources. Their TTLs follow how
// often each dataset changes upstream.
func (a *App) resources(store *cache.Coded, up *upstream.Client) (router.Deps, error) {
	u := a.cfg.Upstream
	short, long := cache.For(a.cfg.Cache.TTLShort), cache.For(a.cfg.Cache.TTLLong)
	rlog := a.log.With("component", "resource")
	opts := []resource.Option{resource.WithLogger(rlog), resource.WithCoalescing(u.Coalesce)}

	specs := []resource.Spec{
		{Name: "pops", Key: keys.Pops, Endpoint: upstream.Endpoint{Name: "pops", URL: u.PopsURL}, TTL: long},
		{Name: "eventos_abertos", Key: keys.EventosAbertos, Endpoint: upstream.Endpoint{Name: "eventos_abertos", URL: u.EventosAbertosURL}, TTL: short, Backup: true},
		{Name: "atividades_evento", Key: keys.AtividadesEvento, Endpoint: upstream.Endpoint{Name: "atividades_evento", URL: u.AtividadesEventoURL}, Param: "eventoId", TTL: short},
		{Name: "atividades_pop", Key: keys.AtividadesPop, Endpoint: upstream.Endpoint{Name: "atividades_pop", URL: u.AtividadesPopURL}, Param: "popId", TTL: long},
	}
	built := make([]*resource.Static, len(specs))
	for i, s := range specs {
		st, err := resource.NewStatic(s, store, up, opts...)
		if err != nil {
			return router.Deps{}, err
		}
		built[i] = st
	}

	agg, err := daterange.New(daterange.Config{
		Name:     keys.Eventos,
		Endpoint: upstream.Endpoint{Name: "eventos", URL: u.EventosURL},
		TTL:      short,
	}, store, up, daterange.WithLogger(rlog), daterange.WithCoalescing(u.Coalesce))
	if err != nil {
		return router.Deps{}, err
	}

	return router.Deps{
		Pops:             built[0],
		EventosAbertos:   built[1],
		AtividadesEvento: built[2],
		AtividadesPop:    built[3],
		Eventos:          agg,
	}, nil
}

// Run serves the API, the dedicated metrics listener and the invalidation
// consumer until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.runner != nil {
		if err := a.runner.Start(ctx); err != nil {
			return fmt.Errorf("invalidation: %w", err)
		}
		defer a.runner.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, a.cfg.Addr, a.cfg.HTTP.WriteTimeout, a.handler, a.log)
	})
	if a.metrics != nil && a.metrics.Dedicated() {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.log)
		})
	}
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
