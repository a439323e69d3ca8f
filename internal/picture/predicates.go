package picture

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
)

// AnimationProber is the engine's lightweight animation check.
type AnimationProber interface {
	IsAnimated(ctx context.Context, ref *domain.ImageRef) (bool, error)
}

func IsSVG(ref *domain.ImageRef) bool {
	return ref != nil && ref.Extension() == "svg"
}

// IsAnimatedGIF reports whether ref is a GIF with more than one frame.
// Non-GIF references never reach the prober.
func IsAnimatedGIF(ctx context.Context, prober AnimationProber, ref *domain.ImageRef) (bool, error) {
	if ref == nil || ref.Extension() != "gif" {
		return false, nil
	}
	return prober.IsAnimated(ctx, ref)
}

// passThrough decides, once per image, whether a source skips the engine.
type passThrough struct {
	prober   AnimationProber
	settings config.Settings
	logger   *log.Logger
	memo     map[string]bool
}

func newPassThrough(prober AnimationProber, s config.Settings, logger *log.Logger) *passThrough {
	return &passThrough{prober: prober, settings: s, logger: logger, memo: make(map[string]bool)}
}

func (p *passThrough) is(ctx context.Context, ref *domain.ImageRef) bool {
	if ref == nil {
		return false
	}
	if IsSVG(ref) {
		return !p.settings.TransformSVGs
	}
	if p.settings.TransformAnimatedGIFs || ref.Extension() != "gif" {
		return false
	}

	key := ref.Key()
	if v, ok := p.memo[key]; ok {
		return v
	}
	animated, err := IsAnimatedGIF(ctx, p.prober, ref)
	if err != nil {
		p.logger.Warn("animation probe failed, treating as still image", "image", ref, "err", err)
	}
	p.memo[key] = animated
	return animated
}

// ReducePassThrough collapses a list whose sources all pass through the
// same untransformed image down to its first entry.
func ReducePassThrough(sources []Source, isPassThrough func(*domain.ImageRef) bool) []Source {
	if len(sources) < 2 {
		return sources
	}
	key := ""
	for _, s := range sources {
		if s.Image == nil || !isPassThrough(s.Image) {
			return sources
		}
		if key == "" {
			key = s.Image.Key()
		} else if s.Image.Key() != key {
			return sources
		}
	}
	return sources[:1]
}
