package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dunamismax/pixelpack/internal/api"
	"github.com/dunamismax/pixelpack/internal/app"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/pipeline"
	"github.com/dunamismax/pixelpack/internal/queue"
	"github.com/dunamismax/pixelpack/internal/ratelimit"
	"github.com/dunamismax/pixelpack/internal/telemetry"
)

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{ReportTimestamp: true, Prefix: "api"})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("setup tracing", "err", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal("start transformer runtime", "err", err)
	}
	defer pipeline.Shutdown()
	logger.Debug("transformer runtime started", "backend", pipeline.Backend())

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wire dependencies", "err", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("dependency close failed", "err", err)
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close failed", "err", err)
		}
	}()

	opts := api.Options{
		Assets:          deps.Assets,
		Warmer:          queueClient,
		PresignTTL:      cfg.API.PresignTTL,
		RateLimitHeader: cfg.API.RateLimitHeader,
	}
	if deps.Storage != nil {
		opts.Storage = deps.Storage
	}
	if cfg.API.RateLimit > 0 {
		limiter, err := ratelimit.NewRedisTokenBucket(deps.Redis, ratelimit.Config{
			Capacity: cfg.API.RateLimit,
			Window:   cfg.API.RateLimitWindow,
		})
		if err != nil {
			logger.Fatal("build rate limiter", "err", err)
		}
		opts.RateLimiter = limiter
	}

	server := api.NewServer(logger, deps.Builder, opts)
	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.API.Addr, "output", cfg.Engine.Output, "cache", cfg.Cache.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
