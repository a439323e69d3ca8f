package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API      APIConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Cache    CacheConfig
	Tracing  TracingConfig
	Webhook  WebhookConfig
	Settings Settings
}

type APIConfig struct {
	Addr       string
	PresignTTL time.Duration

	// RateLimit is the token budget per subject and window; 0 disables it.
	// A warmup costs 5 tokens, so smaller budgets reject every warmup.
	RateLimit       int
	RateLimitWindow time.Duration
	RateLimitHeader string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	MetricsAddr   string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// Enabled reports whether object storage should be wired at all.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

type DatabaseConfig struct {
	DSN string
}

// EngineConfig controls where the transform engine reads originals and
// writes variants.
type EngineConfig struct {
	Webroot   string
	OutputDir string
	OutputURL string
	// Output is "local" or "object".
	Output string
}

type CacheConfig struct {
	// Backend is "redis", "memory" or "none".
	Backend string
	TTL     time.Duration
}

type WebhookConfig struct {
	SigningSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads process configuration from the environment. Plugin settings
// start from Defaults and are overlaid with PIXELPACK_SETTINGS_FILE when set.
func Load() (Config, error) {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	cfg := Config{
		API: APIConfig{
			Addr:            env("PIXELPACK_API_ADDR", ":8080"),
			PresignTTL:      envDuration("PIXELPACK_PRESIGN_TTL", 15*time.Minute),
			RateLimit:       envInt("PIXELPACK_RATE_LIMIT", 0),
			RateLimitWindow: envDuration("PIXELPACK_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitHeader: env("PIXELPACK_RATE_LIMIT_HEADER", "X-User-ID"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs: envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			MetricsAddr:   env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", ""),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "pixelpack"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			PublicURL: env("MINIO_PUBLIC_URL", ""),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Engine: EngineConfig{
			Webroot:   env("PIXELPACK_WEBROOT", "./web"),
			OutputDir: env("PIXELPACK_OUTPUT_DIR", "./web/imager"),
			OutputURL: env("PIXELPACK_OUTPUT_URL", "/imager"),
			Output:    env("PIXELPACK_OUTPUT", "local"),
		},
		Cache: CacheConfig{
			Backend: env("PIXELPACK_CACHE", "memory"),
			TTL:     envDuration("PIXELPACK_CACHE_TTL", 24*time.Hour),
		},
		Tracing: TracingConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "pixelpack"),
			Exporter:     env("PIXELPACK_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Webhook: WebhookConfig{
			SigningSecret: env("PIXELPACK_WEBHOOK_SECRET", ""),
			Timeout:       envDuration("PIXELPACK_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:   envInt("PIXELPACK_WEBHOOK_MAX_ATTEMPTS", 3),
		},
		Settings: Defaults(),
	}
	cfg.Settings.SuppressErrors = envBool("PIXELPACK_SUPPRESS_ERRORS", false)

	if path := env("PIXELPACK_SETTINGS_FILE", ""); path != "" {
		overrides, err := LoadSettingsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Settings = cfg.Settings.Resolve(&overrides)
	}

	return cfg, nil
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
