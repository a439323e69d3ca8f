// Package app wires the collaborators shared by the api and worker
// processes from process configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/pixelpack/internal/cache"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/dunamismax/pixelpack/internal/pipeline"
	"github.com/dunamismax/pixelpack/internal/storage"
	"github.com/dunamismax/pixelpack/internal/store"
)

// Deps is everything a process needs to build markup.
type Deps struct {
	Redis   redis.UniversalClient
	Storage *storage.Client
	Assets  store.AssetStore
	Engine  *pipeline.Engine
	Builder *picture.Builder

	closers []func() error
}

// Build connects to the configured backends. Object storage and Postgres are
// optional; redis is only dialed when the cache or rate limiter needs it.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*Deps, error) {
	d := &Deps{}

	if strings.EqualFold(strings.TrimSpace(cfg.Cache.Backend), cache.BackendRedis) || cfg.API.RateLimit > 0 {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)
	}

	var objects pipeline.ObjectStore
	if cfg.Storage.Enabled() {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			Access:    cfg.Storage.AccessKey,
			Secret:    cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.Storage = client
		objects = client
	}

	if cfg.Database.DSN != "" {
		assets, err := store.NewPostgresAssetStore(ctx, cfg.Database.DSN)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Assets = assets
		d.closers = append(d.closers, assets.Close)
	} else {
		logger.Warn("POSTGRES_DSN not set, assets are kept in memory")
		d.Assets = store.NewMemoryAssetStore()
	}

	descriptorCache, err := cache.New(cfg.Cache.Backend, d.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, descriptorCache.Close)

	engine, err := pipeline.NewFromConfig(cfg.Engine, objects, descriptorCache, cfg.Cache.TTL, logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	d.Engine = engine
	d.Builder = picture.NewBuilder(engine, cfg.Settings, logger)
	return d, nil
}

// Close releases every backend connection in reverse order of opening.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
