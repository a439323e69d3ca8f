// Package pipeline is the transform engine: it fetches originals, renders
// resized variants, emits them to local disk or object storage and answers
// the lightweight probes (dimensions, animation, colour) markup needs.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelpack/internal/cache"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/placeholder"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTransform         = errors.New("transform failed")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

type Options struct {
	Fetcher  Fetcher
	Emitter  Emitter
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *log.Logger
}

type Engine struct {
	fetcher      Fetcher
	emitter      Emitter
	transformers map[string]Transformer
	cache        cache.Cache
	cacheTTL     time.Duration
	logger       *log.Logger
	tracer       trace.Tracer

	animated sync.Map
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Emitter == nil {
		return nil, errors.New("emitter is required")
	}

	native, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	c := opts.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		fetcher: opts.Fetcher,
		emitter: opts.Emitter,
		transformers: map[string]Transformer{
			"":                    native,
			domain.TransformerStd: stdTransformer{},
		},
		cache:    c,
		cacheTTL: opts.CacheTTL,
		logger:   logger,
		tracer:   otel.Tracer("pixelpack/pipeline"),
	}, nil
}

// NewFromConfig wires fetcher and emitter from process config. store may be
// nil when object storage is disabled.
func NewFromConfig(cfg config.EngineConfig, store ObjectStore, c cache.Cache, ttl time.Duration, logger *log.Logger) (*Engine, error) {
	var fetcher Fetcher = WebrootFetcher{Root: cfg.Webroot}
	if store != nil {
		fetcher = ObjectStoreFetcher{Store: store, Fallback: fetcher}
	}

	var emitter Emitter = LocalEmitter{Dir: cfg.OutputDir, BaseURL: cfg.OutputURL}
	if strings.EqualFold(cfg.Output, "object") {
		if store == nil {
			return nil, errors.New("object output requires object storage")
		}
		emitter = ObjectStoreEmitter{Store: store}
	}

	return NewEngine(Options{
		Fetcher:  fetcher,
		Emitter:  emitter,
		Cache:    c,
		CacheTTL: ttl,
		Logger:   logger,
	})
}

// RegisterTransformer adds or replaces a named backend.
func (e *Engine) RegisterTransformer(name string, t Transformer) {
	e.transformers[name] = t
}

// TransformImage renders one variant per transform, each merged over
// defaults. An empty transform list renders defaults alone.
func (e *Engine) TransformImage(ctx context.Context, ref *domain.ImageRef, transforms []domain.Transform, defaults domain.Transform, opts domain.TransformOptions) ([]domain.Descriptor, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: image reference is required", ErrTransform)
	}
	if len(transforms) == 0 {
		transforms = []domain.Transform{{}}
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.transform_image")
	span.SetAttributes(
		attribute.String("image.key", ref.Key()),
		attribute.Int("image.transforms", len(transforms)),
		attribute.String("image.transformer", opts.Transformer),
	)
	defer span.End()

	out, err := e.transformAll(ctx, ref, transforms, defaults, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %s: %w", ErrTransform, ref, err)
	}
	return out, nil
}

func (e *Engine) transformAll(ctx context.Context, ref *domain.ImageRef, transforms []domain.Transform, defaults domain.Transform, opts domain.TransformOptions) ([]domain.Descriptor, error) {
	transformer, ok := e.transformers[opts.Transformer]
	if !ok {
		return nil, fmt.Errorf("unknown transformer %q", opts.Transformer)
	}

	var source []byte
	out := make([]domain.Descriptor, 0, len(transforms))
	for _, t := range transforms {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		merged := defaults.Merge(t)
		if err := merged.Validate(); err != nil {
			return nil, err
		}

		key := cache.Key("variant", ref.Key(), merged, opts.Transformer, opts.Hash)
		if !opts.NoCache {
			var cached domain.Descriptor
			hit, err := cache.GetJSON(ctx, e.cache, key, &cached)
			if err != nil {
				e.logger.Warn("variant cache read failed", "key", key, "err", err)
			}
			if hit {
				cached.Source = ref
				out = append(out, cached)
				continue
			}
		}

		if source == nil {
			data, err := e.fetcher.Fetch(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("fetch: %w", err)
			}
			source = data
		}

		r, err := transformer.Transform(ctx, source, merged)
		if err != nil {
			return nil, err
		}

		name := variantName(ref.Name(), r.Width, r.Height, merged.Mode, key, r.Format)
		url, err := e.emitter.Emit(ctx, name, r.Data, r.Format)
		if err != nil {
			return nil, fmt.Errorf("emit %s: %w", name, err)
		}

		d := domain.Descriptor{
			URL:    url,
			Width:  r.Width,
			Height: r.Height,
			Format: r.Format,
			Key:    key,
			Mode:   merged.Mode,
		}
		if opts.Hash {
			d.Hash = e.hashRendition(r)
		}

		if !opts.NoCache {
			if err := cache.SetJSON(ctx, e.cache, key, d, e.cacheTTL); err != nil {
				e.logger.Warn("variant cache write failed", "key", key, "err", err)
			}
		}

		d.Source = ref
		out = append(out, d)
	}
	return out, nil
}

func (e *Engine) hashRendition(r Rendition) string {
	img, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		e.logger.Warn("cannot decode variant for blurhash", "format", r.Format, "err", err)
		return ""
	}
	hash, err := placeholder.EncodeHash(img)
	if err != nil {
		e.logger.Warn("blurhash failed", "err", err)
		return ""
	}
	return hash
}

// Srcset joins descriptors as "url Nw" candidates.
func (e *Engine) Srcset(descriptors []domain.Descriptor) string {
	return Srcset(descriptors)
}

func Srcset(descriptors []domain.Descriptor) string {
	parts := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.URL == "" {
			continue
		}
		if d.Width > 0 {
			parts = append(parts, d.URL+" "+strconv.Itoa(d.Width)+"w")
		} else {
			parts = append(parts, d.URL)
		}
	}
	return strings.Join(parts, ", ")
}

// IsAnimated reports whether ref is a GIF with more than one frame.
// Results are remembered per image key.
func (e *Engine) IsAnimated(ctx context.Context, ref *domain.ImageRef) (bool, error) {
	if ref == nil || ref.Extension() != "gif" {
		return false, nil
	}
	if v, ok := e.animated.Load(ref.Key()); ok {
		return v.(bool), nil
	}

	data, err := e.fetcher.Fetch(ctx, ref)
	if err != nil {
		return false, err
	}
	animated, err := isAnimatedGIF(data)
	if err != nil {
		return false, err
	}
	e.animated.Store(ref.Key(), animated)
	return animated, nil
}

// Probe returns the natural size of ref. Assets report their stored size.
func (e *Engine) Probe(ctx context.Context, ref *domain.ImageRef) (int, int, error) {
	if ref == nil {
		return 0, 0, errors.New("image reference is required")
	}
	if ref.Asset != nil && ref.Asset.Width > 0 && ref.Asset.Height > 0 {
		return ref.Asset.Width, ref.Asset.Height, nil
	}

	data, err := e.fetcher.Fetch(ctx, ref)
	if err != nil {
		return 0, 0, err
	}
	if ref.Extension() == "svg" {
		return probeSVG(data)
	}
	return probeRaster(data)
}

// DominantColor returns the most common colour of the rendition d describes.
func (e *Engine) DominantColor(ctx context.Context, d domain.Descriptor) (string, error) {
	img, err := e.decodeRendition(ctx, d)
	if err != nil {
		return "", err
	}
	return placeholder.DominantColor(img)
}

// Miniature renders a blurred width x height PNG data URI of the rendition d describes.
func (e *Engine) Miniature(ctx context.Context, d domain.Descriptor, width, height int) (string, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline.miniature")
	defer span.End()

	img, err := e.decodeRendition(ctx, d)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return placeholder.PNGDataURI(placeholder.Miniature(img, width, height))
}

func (e *Engine) RenderPlaceholder(kind string, width, height int, hash string) (string, error) {
	return placeholder.Render(kind, width, height, hash)
}

// decodeRendition rebuilds d's pixels from its source: the original is
// resampled to d's size with d's mode, so crops match the emitted variant.
func (e *Engine) decodeRendition(ctx context.Context, d domain.Descriptor) (image.Image, error) {
	if d.Source == nil {
		return nil, errors.New("descriptor has no source image")
	}
	data, err := e.fetcher.Fetch(ctx, d.Source)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	b := img.Bounds()
	if d.Width <= 0 || d.Height <= 0 || (d.Width == b.Dx() && d.Height == b.Dy()) {
		return img, nil
	}
	return resample(img, d.Mode, d.Width, d.Height), nil
}
