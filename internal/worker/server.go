package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/dunamismax/pixelpack/internal/queue"
	"github.com/dunamismax/pixelpack/internal/store"
	"github.com/dunamismax/pixelpack/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusSucceeded = "succeeded"
	statusPartial   = "partial"
	statusFailed    = "failed"
)

type Server struct {
	logger   *log.Logger
	server   *asynq.Server
	sem      chan struct{}
	builder  *picture.Builder
	assets   store.AssetStore
	notifier webhookSender
	metrics  *metrics
	tracer   trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	builder *picture.Builder,
	assets store.AssetStore,
	notifier webhookSender,
) (*Server, error) {
	if builder == nil {
		return nil, errors.New("picture builder is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error("task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "err", err)
				}),
			},
		),
		sem:      make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		builder:  builder,
		assets:   assets,
		notifier: notifier,
		metrics:  newMetrics(),
		tracer:   otel.Tracer("pixelpack/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeWarmVariants, s.handleWarmVariants)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleWarmVariants(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := statusFailed

	payload, err := queue.ParseWarmVariantsPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.warm_variants", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("warm.id", payload.ID))
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	sources, err := s.decodeSources(ctx, payload.Sources)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode sources failed")
		s.notify(ctx, payload, webhook.EventWarmFailed, 0, 0, err)
		// Malformed sources are not retried.
		return fmt.Errorf("decode sources: %v: %w", err, asynq.SkipRetry)
	}
	span.SetAttributes(attribute.Int("warm.sources", len(sources)))
	s.metrics.sourcesTotal.Add(float64(len(sources)))
	s.logger.Info("warming variants", "id", payload.ID, "sources", len(sources))

	count, err := s.builder.Warm(ctx, sources, payload.Params, payload.Settings)
	s.metrics.variantsWarmed.Add(float64(count))
	if err != nil {
		if count > 0 {
			outcome = statusPartial
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "warm failed")
		s.logger.Error("warm failed", "id", payload.ID, "variants", count, "err", err)
		if finalAttempt(ctx) {
			s.notify(ctx, payload, webhook.EventWarmFailed, len(sources), count, err)
		}
		return fmt.Errorf("warm variants: %w", err)
	}

	outcome = statusSucceeded
	span.SetStatus(codes.Ok, "warmed")
	s.logger.Info("warmed variants", "id", payload.ID, "variants", count, "elapsed", time.Since(startedAt))
	s.notify(ctx, payload, webhook.EventVariantsWarmed, len(sources), count, nil)
	return nil
}

// notify reports the outcome to the payload's callback. Delivery failures
// are logged and never fail the task.
func (s *Server) notify(ctx context.Context, payload queue.WarmVariantsPayload, event string, sources, variants int, cause error) {
	if payload.CallbackURL == "" || s.notifier == nil {
		return
	}

	body := webhook.WarmEvent{
		ID:          payload.ID,
		Status:      statusSucceeded,
		Sources:     sources,
		Variants:    variants,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	}
	if cause != nil {
		body.Status = statusFailed
		if variants > 0 {
			body.Status = statusPartial
		}
		body.Error = cause.Error()
	}

	if err := s.notifier.Send(ctx, payload.CallbackURL, event, body); err != nil {
		s.logger.Warn("webhook delivery failed", "id", payload.ID, "event", event, "err", err)
	}
}

// finalAttempt reports whether asynq will not retry the running task.
func finalAttempt(ctx context.Context) bool {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried >= maxRetry
}

func (s *Server) decodeSources(ctx context.Context, raw json.RawMessage) ([]picture.Source, error) {
	var loose any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, err
	}
	return picture.DecodeSources(ctx, loose, s.resolveAsset)
}

func (s *Server) resolveAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if s.assets == nil {
		return nil, fmt.Errorf("%w: %s (no asset store configured)", store.ErrAssetNotFound, id)
	}
	return store.Lookup(ctx, s.assets, id)
}
