// Package picture assembles responsive <picture>, <source> and <img> markup
// from source lists, delegating pixel work to a transform engine.
package picture

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
	"github.com/dunamismax/pixelpack/internal/placeholder"
)

const (
	OutputAttr = "attr"
	OutputCSS  = "css"
)

var ErrNoImage = errors.New("no image")

// Engine is the transform engine as seen by markup assembly.
type Engine interface {
	AnimationProber
	PlaceholderSource
	TransformImage(ctx context.Context, ref *domain.ImageRef, transforms []domain.Transform, defaults domain.Transform, opts domain.TransformOptions) ([]domain.Descriptor, error)
	Srcset(descriptors []domain.Descriptor) string
	Probe(ctx context.Context, ref *domain.ImageRef) (width, height int, err error)
}

type Builder struct {
	engine   Engine
	settings config.Settings
	logger   *log.Logger
}

// NewBuilder returns a builder over process-wide settings. settings is only
// ever read; per-call overrides are layered on a copy.
func NewBuilder(engine Engine, settings config.Settings, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{engine: engine, settings: settings, logger: logger}
}

// Settings returns the effective settings for one call.
func (b *Builder) Settings(o *config.Overrides) config.Settings {
	return b.settings.Resolve(o)
}

// Picture renders sources as a <picture> element.
func (b *Builder) Picture(ctx context.Context, sources []Source, params Params, o *config.Overrides) (string, error) {
	return b.assemble(ctx, sources, params, b.Settings(o), false)
}

// Img renders a single <img> element without a <picture> wrapper.
func (b *Builder) Img(ctx context.Context, image *domain.ImageRef, transforms []domain.Transform, params Params, o *config.Overrides) (string, error) {
	return b.assemble(ctx, []Source{{Image: image, Transforms: transforms}}, params, b.Settings(o), true)
}

// element is the resolved rendition of one source.
type element struct {
	url         string
	srcset      string
	width       int
	height      int
	passThrough bool
}

// prepare resolves params against the first source's image, drops sources
// without an image, then normalizes and reduces the rest.
func (b *Builder) prepare(ctx context.Context, sources []Source, params Params, s config.Settings) (ResolvedParams, []Source, func(*domain.ImageRef) bool) {
	var first *domain.ImageRef
	if len(sources) > 0 {
		first = sources[0].Image
	}
	rp := ResolveParams(first, params, s)

	present := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Image != nil {
			present = append(present, src)
		}
	}

	pt := newPassThrough(b.engine, s, b.logger)
	isPassThrough := func(ref *domain.ImageRef) bool { return pt.is(ctx, ref) }
	if len(present) == 0 {
		return rp, nil, isPassThrough
	}
	return rp, ReducePassThrough(Normalize(present), isPassThrough), isPassThrough
}

func (b *Builder) assemble(ctx context.Context, sources []Source, params Params, s config.Settings, imgOnly bool) (string, error) {
	rp, normalized, isPassThrough := b.prepare(ctx, sources, params, s)
	if len(normalized) == 0 {
		return "", nil
	}
	if imgOnly {
		normalized = normalized[len(normalized)-1:]
	}

	var (
		elements []string
		fallback element
	)
	for i, src := range normalized {
		isImg := i == len(normalized)-1

		el, err := b.resolveElement(ctx, src, rp, isPassThrough(src.Image))
		if err != nil {
			b.logger.Error("transform failed", "image", src.Image, "err", err)
			if s.SuppressErrors {
				return "", nil
			}
			return "", err
		}

		attrs := b.elementAttrs(el, isImg, rp, s)
		if isImg {
			fallback = el
			attrs.Merge(rp.Attrs)
			if !el.passThrough && s.Placeholder != config.PlaceholderNone {
				if style := b.probePlaceholder(ctx, src.Image, el, s); len(style) > 0 {
					attrs.Set("style", style.Merge(attrs.Style()))
				}
			}
			elements = append(elements, markup.Tag("img", attrs, ""))
			continue
		}

		if q := src.Condition.MediaQuery(); q != "" {
			attrs.Set("media", q)
		}
		if src.Format != "" {
			attrs.Set("type", "image/"+src.Format)
		}
		elements = append(elements, markup.Tag("source", attrs, ""))
	}

	var out strings.Builder
	if imgOnly {
		out.WriteString(strings.Join(elements, ""))
	} else {
		out.WriteString(markup.Tag("picture", nil, strings.Join(elements, "")))
	}

	if s.Lazysizes && fallback.url != "" {
		out.WriteString(markup.Tag("noscript", nil, noscriptImg(fallback, rp, s)))
	}

	if s.Lazysizes && s.AutoloadLazysizes {
		markup.ScriptsFromContext(ctx).RegisterScript(s.LazysizesURL, map[string]string{"async": ""})
	}

	return out.String(), nil
}

func (b *Builder) resolveElement(ctx context.Context, src Source, rp ResolvedParams, passThrough bool) (element, error) {
	if passThrough {
		return b.naturalElement(ctx, src.Image), nil
	}

	descriptors, err := b.engine.TransformImage(ctx, src.Image, src.withFormat(), rp.Defaults, rp.Options)
	if err != nil {
		return element{}, err
	}
	if len(descriptors) == 0 {
		return element{}, fmt.Errorf("transform of %s produced no variants", src.Image)
	}
	d := descriptors[0]
	return element{
		url:    d.URL,
		srcset: b.engine.Srcset(descriptors),
		width:  max(d.Width, 0),
		height: max(d.Height, 0),
	}, nil
}

// naturalElement describes an untransformed image at its own size. Raw
// paths are probed; a failed probe leaves the size unknown.
func (b *Builder) naturalElement(ctx context.Context, ref *domain.ImageRef) element {
	el := element{url: ref.URL(), passThrough: true}
	if ref.Asset != nil {
		el.width, el.height = ref.Asset.Width, ref.Asset.Height
		el.srcset = el.url + " " + strconv.Itoa(max(el.width, 1)) + "w"
		return el
	}

	w, h, err := b.engine.Probe(ctx, ref)
	if err != nil {
		b.logger.Warn("cannot probe image size", "image", ref, "err", err)
	}
	el.width, el.height = max(w, 0), max(h, 0)
	el.srcset = b.engine.Srcset([]domain.Descriptor{{URL: el.url, Width: el.width}})
	return el
}

func (b *Builder) elementAttrs(el element, isImg bool, rp ResolvedParams, s config.Settings) *markup.Attrs {
	attrs := markup.NewAttrs()
	if s.Lazysizes {
		inert := placeholder.Inert(el.width, el.height)
		if isImg {
			attrs.Set("src", inert)
		}
		attrs.Set("srcset", inert)
		attrs.Set("data-sizes", "auto")
		attrs.Set("data-srcset", el.srcset)
		if el.width > 0 && el.height > 0 {
			attrs.Set("data-aspectratio", float64(el.width)/float64(el.height))
		}
	} else {
		if isImg {
			attrs.Set("src", el.url)
		}
		attrs.Set("srcset", el.srcset)
		attrs.Set("sizes", rp.Sizes)
	}

	if !rp.Attrs.Has("width") || !rp.Attrs.Has("height") {
		attrs.Set("width", dimension(el.width))
		attrs.Set("height", dimension(el.height))
	}
	return attrs
}

// probePlaceholder renders a fixed-width probe of ref at the element's
// aspect ratio and composes placeholder styles from it.
func (b *Builder) probePlaceholder(ctx context.Context, ref *domain.ImageRef, el element, s config.Settings) markup.Style {
	d, ok := b.probe(ctx, ref, probeTransform(el.width, el.height, s), s)
	if !ok {
		return nil
	}
	return ComposePlaceholder(ctx, b.engine, d, s, b.logger)
}

func probeTransform(width, height int, s config.Settings) domain.Transform {
	t := domain.Transform{Width: s.PlaceholderProbeWidth}
	if width > 0 && height > 0 {
		t.Ratio = float64(width) / float64(height)
	}
	return t
}

func (b *Builder) probe(ctx context.Context, ref *domain.ImageRef, t domain.Transform, s config.Settings) (domain.Descriptor, bool) {
	opts := domain.TransformOptions{
		Transformer: domain.TransformerStd,
		Hash:        s.Placeholder == config.PlaceholderBlurHash,
	}
	descriptors, err := b.engine.TransformImage(ctx, ref, []domain.Transform{t}, domain.Transform{}, opts)
	if err != nil || len(descriptors) == 0 {
		b.logger.Error("placeholder probe failed", "image", ref, "err", err)
		return domain.Descriptor{}, false
	}
	return descriptors[0], true
}

func noscriptImg(fallback element, rp ResolvedParams, s config.Settings) string {
	attrs := markup.NewAttrs()
	attrs.Set("src", fallback.url)
	attrs.Set("width", dimension(fallback.width))
	attrs.Set("height", dimension(fallback.height))

	caller := rp.Attrs.Clone()
	caller.Set("class", caller.Class().Remove(s.LazysizesClass))
	for _, name := range caller.Names() {
		v, _ := caller.Get(name)
		attrs.SetDefault(name, v)
	}
	return markup.Tag("img", attrs, "")
}

// dimension maps unknown (zero) sizes to an omitted attribute.
func dimension(v int) any {
	if v <= 0 {
		return nil
	}
	return v
}

// Placeholder renders a standalone placeholder for image using strategy
// kind. output is OutputAttr for a style="..." attribute, anything else for
// bare CSS. Untransformed pass-through images get no placeholder.
func (b *Builder) Placeholder(ctx context.Context, image *domain.ImageRef, output, kind string, o *config.Overrides) (string, error) {
	if image == nil || strings.TrimSpace(kind) == "" {
		return "", nil
	}
	s := b.Settings(o)
	s.Placeholder = config.NormalizePlaceholder(kind)
	if s.Placeholder == config.PlaceholderNone {
		return "", nil
	}
	if newPassThrough(b.engine, s, b.logger).is(ctx, image) {
		return "", nil
	}

	opts := domain.TransformOptions{
		Transformer: domain.TransformerStd,
		Hash:        s.Placeholder == config.PlaceholderBlurHash,
	}
	descriptors, err := b.engine.TransformImage(ctx, image, []domain.Transform{{Width: s.PlaceholderProbeWidth}}, domain.Transform{}, opts)
	if err == nil && len(descriptors) == 0 {
		err = fmt.Errorf("transform of %s produced no variants", image)
	}
	if err != nil {
		b.logger.Error("placeholder probe failed", "image", image, "err", err)
		if s.SuppressErrors {
			return "", nil
		}
		return "", err
	}

	style := ComposePlaceholder(ctx, b.engine, descriptors[0], s, b.logger)
	if len(style) == 0 {
		return "", nil
	}
	if output == OutputAttr {
		return `style="` + html.EscapeString(style.String()) + `"`, nil
	}
	return style.String(), nil
}

// Transform renders image through the engine, or returns the image itself
// at natural size when it passes through untransformed.
func (b *Builder) Transform(ctx context.Context, image *domain.ImageRef, transforms []domain.Transform, defaults domain.Transform, opts domain.TransformOptions, o *config.Overrides) ([]domain.Descriptor, error) {
	if image == nil {
		return nil, nil
	}
	s := b.Settings(o)
	if newPassThrough(b.engine, s, b.logger).is(ctx, image) {
		el := b.naturalElement(ctx, image)
		return []domain.Descriptor{{
			URL:    el.url,
			Width:  el.width,
			Height: el.height,
			Format: image.Extension(),
			Source: image,
		}}, nil
	}
	return b.engine.TransformImage(ctx, image, transforms, s.DefaultTransform.Merge(defaults), opts)
}

// Warm renders every variant Picture would need for sources, including the
// placeholder probe, and reports how many variants were produced. It keeps
// going past failures and returns them joined.
func (b *Builder) Warm(ctx context.Context, sources []Source, params Params, o *config.Overrides) (int, error) {
	s := b.Settings(o)
	rp, normalized, isPassThrough := b.prepare(ctx, sources, params, s)

	var (
		count int
		errs  []error
	)
	for i, src := range normalized {
		if isPassThrough(src.Image) {
			continue
		}
		descriptors, err := b.engine.TransformImage(ctx, src.Image, src.withFormat(), rp.Defaults, rp.Options)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		count += len(descriptors)

		isImg := i == len(normalized)-1
		if isImg && s.Placeholder != config.PlaceholderNone && len(descriptors) > 0 {
			probe := probeTransform(descriptors[0].Width, descriptors[0].Height, s)
			if _, ok := b.probe(ctx, src.Image, probe, s); ok {
				count++
			}
		}
	}
	return count, errors.Join(errs...)
}
