// Package api exposes markup assembly over HTTP: picture, img, placeholder
// and transform renders, background warmups and asset registration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/dunamismax/pixelpack/internal/pipeline"
	"github.com/dunamismax/pixelpack/internal/queue"
	"github.com/dunamismax/pixelpack/internal/store"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	builder         *picture.Builder
	assets          store.AssetStore
	storage         objectStorage
	warmer          warmEnqueuer
	presignTTL      time.Duration
	rateLimiter     RateLimiter
	rateLimitHeader string
	metrics         *metrics
	tracer          trace.Tracer
	mux             *http.ServeMux
}

type warmEnqueuer interface {
	EnqueueWarmVariants(ctx context.Context, payload queue.WarmVariantsPayload) (*asynq.TaskInfo, error)
	WarmStatus(ctx context.Context, id string) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	PublicURL(objectKey string) string
}

var errStorageUnavailable = errors.New("object storage is unavailable")

// Options carries the optional collaborators. Nil members disable the
// routes that need them.
type Options struct {
	Assets          store.AssetStore
	Storage         objectStorage
	Warmer          warmEnqueuer
	PresignTTL      time.Duration
	RateLimiter     RateLimiter
	RateLimitHeader string
}

func NewServer(logger *log.Logger, builder *picture.Builder, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if strings.TrimSpace(opts.RateLimitHeader) == "" {
		opts.RateLimitHeader = "X-User-ID"
	}

	s := &Server{
		logger:          logger,
		builder:         builder,
		assets:          opts.Assets,
		storage:         opts.Storage,
		warmer:          opts.Warmer,
		presignTTL:      opts.PresignTTL,
		rateLimiter:     opts.RateLimiter,
		rateLimitHeader: opts.RateLimitHeader,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelpack/api"),
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errStorageUnavailable
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errStorageUnavailable
}

func (unavailableObjectStorage) PublicURL(objectKey string) string {
	return "/" + strings.TrimLeft(objectKey, "/")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.handler())
	s.mux.HandleFunc("POST /v1/picture", s.handlePicture)
	s.mux.HandleFunc("POST /v1/img", s.handleImg)
	s.mux.HandleFunc("POST /v1/placeholder", s.handlePlaceholder)
	s.mux.HandleFunc("POST /v1/transform", s.handleTransform)
	s.mux.HandleFunc("POST /v1/warm", s.handleWarm)
	s.mux.HandleFunc("GET /v1/warm/{id}", s.handleWarmStatus)
	s.mux.HandleFunc("POST /v1/assets", s.handleCreateAsset)
	s.mux.HandleFunc("GET /v1/assets/{id}", s.handleGetAsset)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pictureRequest struct {
	Sources  any               `json:"sources"`
	Params   picture.Params    `json:"params"`
	Settings *config.Overrides `json:"settings,omitempty"`
}

type imgRequest struct {
	Image      any               `json:"image"`
	Transforms any               `json:"transforms,omitempty"`
	Params     picture.Params    `json:"params"`
	Settings   *config.Overrides `json:"settings,omitempty"`
}

type placeholderRequest struct {
	Image    any               `json:"image"`
	Output   string            `json:"output,omitempty"`
	Kind     *string           `json:"kind,omitempty"`
	Settings *config.Overrides `json:"settings,omitempty"`
}

type transformRequest struct {
	Image      any                     `json:"image"`
	Transforms any                     `json:"transforms,omitempty"`
	Defaults   domain.Transform        `json:"defaults"`
	Options    domain.TransformOptions `json:"options"`
	Settings   *config.Overrides       `json:"settings,omitempty"`
}

type warmRequest struct {
	Sources     json.RawMessage   `json:"sources"`
	Params      picture.Params    `json:"params"`
	Settings    *config.Overrides `json:"settings,omitempty"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
}

// markupResponse carries rendered HTML plus the scripts the page must load.
type markupResponse struct {
	HTML    string          `json:"html"`
	Scripts []markup.Script `json:"scripts"`
}

func (s *Server) handlePicture(w http.ResponseWriter, r *http.Request) {
	var req pictureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sources, err := picture.DecodeSources(r.Context(), req.Sources, s.resolveAsset)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	start := time.Now()
	bag := markup.NewScriptBag()
	html, err := s.builder.Picture(markup.WithScripts(r.Context(), bag), sources, req.Params, req.Settings)
	s.metrics.observeRender("picture", start, err)
	if err != nil {
		s.writeRenderError(w, "picture", err)
		return
	}
	writeJSON(w, http.StatusOK, markupResponse{HTML: html, Scripts: bag.Scripts()})
}

func (s *Server) handleImg(w http.ResponseWriter, r *http.Request) {
	var req imgRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	image, err := s.decodeImage(r.Context(), req.Image)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	start := time.Now()
	bag := markup.NewScriptBag()
	html, err := s.builder.Img(markup.WithScripts(r.Context(), bag), image, picture.DecodeTransforms(req.Transforms), req.Params, req.Settings)
	s.metrics.observeRender("img", start, err)
	if err != nil {
		s.writeRenderError(w, "img", err)
		return
	}
	writeJSON(w, http.StatusOK, markupResponse{HTML: html, Scripts: bag.Scripts()})
}

func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	var req placeholderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	image, err := s.decodeImage(r.Context(), req.Image)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	kind := config.PlaceholderDominantColor
	if req.Kind != nil {
		kind = *req.Kind
	}
	output := req.Output
	if output == "" {
		output = picture.OutputAttr
	}

	start := time.Now()
	out, err := s.builder.Placeholder(r.Context(), image, output, kind, req.Settings)
	s.metrics.observeRender("placeholder", start, err)
	if err != nil {
		s.writeRenderError(w, "placeholder", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": output, "placeholder": out})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	image, err := s.decodeImage(r.Context(), req.Image)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	start := time.Now()
	descriptors, err := s.builder.Transform(r.Context(), image, picture.DecodeTransforms(req.Transforms), req.Defaults, req.Options, req.Settings)
	s.metrics.observeRender("transform", start, err)
	if err != nil {
		s.writeRenderError(w, "transform", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"descriptors": descriptors,
		"srcset":      pipeline.Srcset(descriptors),
	})
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	if s.warmer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("warmup queue is not configured"))
		return
	}

	var req warmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Validated here; the worker decodes the raw sources again.
	var loose any
	if err := json.Unmarshal(req.Sources, &loose); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sources: %w", err))
		return
	}
	sources, err := picture.DecodeSources(r.Context(), loose, s.resolveAsset)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, picture.ErrNoImage)
		return
	}

	payload := queue.WarmVariantsPayload{
		ID:          uuid.NewString(),
		Sources:     req.Sources,
		Params:      req.Params,
		Settings:    req.Settings,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		RequestedAt: time.Now().UTC(),
	}
	if err := payload.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	info, err := s.warmer.EnqueueWarmVariants(r.Context(), payload)
	if err != nil {
		s.logger.Error("enqueue warmup failed", "id", payload.ID, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to enqueue warmup"))
		return
	}
	s.metrics.warmEnqueued.WithLabelValues(info.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":          payload.ID,
		"sources":     len(sources),
		"queue":       info.Queue,
		"task_id":     info.ID,
		"state":       info.State.String(),
		"enqueued_at": info.NextProcessAt,
	})
}

func (s *Server) handleWarmStatus(w http.ResponseWriter, r *http.Request) {
	if s.warmer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("warmup queue is not configured"))
		return
	}

	info, err := s.warmer.WarmStatus(r.Context(), r.PathValue("id"))
	if errors.Is(err, queue.ErrWarmNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error("warmup lookup failed", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load warmup"))
		return
	}

	resp := map[string]any{
		"id":        info.ID,
		"queue":     info.Queue,
		"state":     info.State.String(),
		"retried":   info.Retried,
		"max_retry": info.MaxRetry,
	}
	if info.LastErr != "" {
		resp["last_error"] = info.LastErr
	}
	if !info.CompletedAt.IsZero() {
		resp["completed_at"] = info.CompletedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type createAssetRequest struct {
	Extension string             `json:"extension"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Focal     *domain.FocalPoint `json:"focal,omitempty"`
	Fields    map[string]string  `json:"fields,omitempty"`
}

func (r createAssetRequest) Validate() error {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Extension), "."))
	if ext == "" || strings.ContainsAny(ext, "/\\") {
		return errors.New("extension is required")
	}
	if r.Width < 0 || r.Height < 0 {
		return errors.New("width and height must not be negative")
	}
	if f := r.Focal; f != nil && (f.X < 0 || f.X > 1 || f.Y < 0 || f.Y > 1) {
		return errors.New("focal point must be within [0,1]")
	}
	return nil
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("asset store is not configured"))
		return
	}

	var req createAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Extension), "."))
	objectKey := path.Join("originals", id+"."+ext)

	uploadURL, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
	if err != nil {
		s.logger.Error("generate presigned url failed", "asset", id, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to generate upload URL"))
		return
	}

	asset := domain.Asset{
		ID:        id,
		ObjectKey: objectKey,
		URL:       s.storage.PublicURL(objectKey),
		Extension: ext,
		Width:     req.Width,
		Height:    req.Height,
		Focal:     req.Focal,
		Fields:    req.Fields,
	}
	if err := s.assets.Create(r.Context(), asset); err != nil {
		s.logger.Error("create asset failed", "asset", id, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to create asset"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"asset": asset,
		"upload": map[string]string{
			"object_key":        objectKey,
			"presigned_put_url": uploadURL,
		},
	})
}

// assetResponse reports whether the original has reached object storage
// yet. Uploaded is omitted when that cannot be determined.
type assetResponse struct {
	Asset    *domain.Asset `json:"asset"`
	Uploaded *bool         `json:"uploaded,omitempty"`
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.resolveAsset(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	resp := assetResponse{Asset: asset}
	if asset.ObjectKey != "" {
		uploaded, err := s.storage.ObjectExists(r.Context(), asset.ObjectKey)
		switch {
		case err == nil:
			resp.Uploaded = &uploaded
		case !errors.Is(err, errStorageUnavailable):
			s.logger.Warn("cannot stat asset original", "id", asset.ID, "key", asset.ObjectKey, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resolveAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if s.assets == nil {
		return nil, fmt.Errorf("%w: %s (no asset store configured)", store.ErrAssetNotFound, id)
	}
	return store.Lookup(ctx, s.assets, id)
}

func (s *Server) decodeImage(ctx context.Context, raw any) (*domain.ImageRef, error) {
	image, err := picture.DecodeImage(ctx, raw, s.resolveAsset)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, picture.ErrNoImage
	}
	return image, nil
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAssetNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, picture.ErrNoImage):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.logger.Error("asset lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load asset"))
	}
}

func (s *Server) writeRenderError(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, pipeline.ErrTransform) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.logger.Error("render failed", "kind", kind, "err", err)
	writeError(w, http.StatusInternalServerError, errors.New("render failed"))
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
