package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	// Embedded zone database; slim images ship without one.
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// UpstreamCfg keeps the environment names the operations API deployment
// already uses.
type UpstreamCfg struct {
	Username            string `env:"API_USERNAME"`
	Password            string `env:"API_PASSWORD"`
	LoginURL            string `env:"API_URL_LOGIN"`
	PopsURL             string `env:"API_URL_LIST_POPS"`
	EventosAbertosURL   string `env:"API_URL_LIST_EVENTOS_ABERTOS"`
	EventosURL          string `env:"API_URL_LIST_EVENTOS"`
	AtividadesEventoURL string `env:"API_URL_LIST_ATIVIDADES_EVENTOS"`
	AtividadesPopURL    string `env:"API_URL_LIST_ATIVIDADES_POP"`

	Timeout       time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	MaxRetries    int           `env:"UPSTREAM_MAX_RETRIES" envDefault:"5"`
	BackoffFactor float64       `env:"UPSTREAM_BACKOFF_FACTOR" envDefault:"1.5"`
	MaxBackoff    time.Duration `env:"UPSTREAM_MAX_BACKOFF" envDefault:"120s"`
	Coalesce      bool          `env:"COALESCE_UPSTREAM" envDefault:"false"`
}

type CacheCfg struct {
	Backend   string        `env:"CACHE_BACKEND" envDefault:"memory"`
	Codec     string        `env:"CACHE_CODEC" envDefault:"json"`
	Size      int           `env:"CACHE_SIZE" envDefault:"10000"`
	TTLShort  time.Duration `env:"CACHE_TTL_SHORT" envDefault:"300s"`
	TTLLong   time.Duration `env:"CACHE_TTL_LONG" envDefault:"24h"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	OpTimeout time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"250ms"`
}

// SnapshotCfg points at the store the weather pipeline publishes to. An
// empty RedisURL reads snapshots from the cache store itself.
type SnapshotCfg struct {
	RedisURL string `env:"REDIS_URL"`
	TimeZone string `env:"TIME_ZONE" envDefault:"America/Sao_Paulo"`
}

type RateLimitCfg struct {
	Enabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	PerMinute int  `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	Burst     int  `env:"RATE_LIMIT_BURST" envDefault:"60"`
	// TrustForwarded keys clients by X-Forwarded-For; enable only behind a
	// proxy that sets it.
	TrustForwarded bool `env:"RATE_LIMIT_TRUST_FORWARDED" envDefault:"false"`
}

// HTTPCfg bounds request handling. RequestTimeout must stay below
// WriteTimeout so a request that runs out of time still gets its error body.
type HTTPCfg struct {
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"50s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
}

type LogCfg struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Console bool   `env:"LOG_CONSOLE" envDefault:"false"`
	SampleN int    `env:"LOG_SAMPLE_N" envDefault:"0"`
}

type MetricsCfg struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Addr    string `env:"METRICS_ADDR"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type InvalidationCfg struct {
	Enabled    bool   `env:"INVALIDATION_ENABLED" envDefault:"false"`
	Topic      string `env:"KAFKA_TOPIC" envDefault:"cache-invalidation"`
	Brokers    string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	GroupID    string `env:"KAFKA_GROUP_ID" envDefault:"api-dados-rio"`
	DedupeSize int    `env:"INVALIDATION_DEDUPE_SIZE" envDefault:"10000"`
}

type BuildCfg struct {
	Version   string `env:"BUILD_VERSION"`
	Revision  string `env:"BUILD_REVISION"`
	Branch    string `env:"BUILD_BRANCH"`
	BuildDate string `env:"BUILD_DATE"`
}

type Config struct {
	Addr         string `env:"ADDR" envDefault:":8080"`
	HTTP         HTTPCfg
	Upstream     UpstreamCfg
	Cache        CacheCfg
	Snapshot     SnapshotCfg
	RateLimit    RateLimitCfg
	Log          LogCfg
	Metrics      MetricsCfg
	Invalidation InvalidationCfg
	Build        BuildCfg
}

// FromEnv reads the process environment and validates the result.
func FromEnv() (Config, error) {
	return Parse(env.Options{})
}

// Parse is FromEnv with explicit options; tests pass Environment.
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Cache.Codec = strings.ToLower(strings.TrimSpace(cfg.Cache.Codec))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case "memory", "ristretto", "redis":
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q: want memory, ristretto or redis", c.Cache.Backend))
	}
	switch c.Cache.Codec {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("CACHE_CODEC %q: want json or msgpack", c.Cache.Codec))
	}
	if c.Cache.TTLShort <= 0 || c.Cache.TTLLong <= 0 {
		errs = append(errs, errors.New("CACHE_TTL_SHORT and CACHE_TTL_LONG must be positive"))
	}
	if c.Cache.Size <= 0 {
		errs = append(errs, errors.New("CACHE_SIZE must be positive"))
	}
	if c.HTTP.RequestTimeout <= 0 || c.HTTP.RequestTimeout >= c.HTTP.WriteTimeout {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive and below HTTP_WRITE_TIMEOUT"))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, errors.New("UPSTREAM_MAX_RETRIES must not be negative"))
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if _, err := time.LoadLocation(c.Snapshot.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("TIME_ZONE: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Snapshot.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BrokerList splits the comma-separated KAFKA_BROKERS list.
func (c InvalidationCfg) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
