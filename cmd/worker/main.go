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

	"github.com/dunamismax/pixelpack/internal/app"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/pipeline"
	"github.com/dunamismax/pixelpack/internal/telemetry"
	"github.com/dunamismax/pixelpack/internal/webhook"
	"github.com/dunamismax/pixelpack/internal/worker"
)

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{ReportTimestamp: true, Prefix: "worker"})

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

	notifier := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})
	if cfg.Webhook.SigningSecret == "" {
		logger.Warn("PIXELPACK_WEBHOOK_SECRET not set, callbacks are signed with an empty key")
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, deps.Builder, deps.Assets, notifier)
	if err != nil {
		logger.Fatal("build worker", "err", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker",
		"concurrency", cfg.Worker.Concurrency,
		"max_active_jobs", cfg.Worker.MaxActiveJobs,
		"queue", cfg.Queue.Name,
		"redis", cfg.Queue.RedisAddr,
	)
	if err := srv.Run(); err != nil {
		logger.Error("worker failed", "err", err)
	}
}
