// Package cache stores rendered variant descriptors so repeated markup
// builds skip the fetch/transform/emit round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the cache named by backend. A redis backend needs client.
func New(backend string, client redis.UniversalClient) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis cache requires a client")
		}
		return NewRedisCache(client, "pixelpack:"), nil
	case BackendMemory, "":
		return NewMemoryCache(), nil
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
}

// Key hashes parts into a stable "prefix:sha256" key.
func Key(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// GetJSON decodes a cached value into v. Undecodable entries count as misses.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}
