package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/app"
	"github.com/prefeitura-rio/api-dados-rio/internal/core/config"
	"github.com/prefeitura-rio/api-dados-rio/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding listen address via flag
	addrFlag := flag.String("addr", "", "listen address")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}
	if cfg.Build.Version == "" {
		cfg.Build.Version = Version
	}

	zl := logger.Build(logger.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		SampleN: cfg.Log.SampleN,
		Service: "api-dados-rio",
		Version: cfg.Build.Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.New(startCtx, cfg, appLog, nil)
	cancel()
	if err != nil {
		appLog.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("close", "err", err)
		}
	}()

	appLog.Info("starting api",
		"addr", cfg.Addr,
		"version", cfg.Build.Version,
		"cache_backend", cfg.Cache.Backend,
		"invalidation", cfg.Invalidation.Enabled)

	if err := a.Run(ctx); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
