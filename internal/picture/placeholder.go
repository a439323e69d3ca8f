package picture

import (
	"context"
	"math"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
	"github.com/dunamismax/pixelpack/internal/placeholder"
)

// PlaceholderSource is the part of the engine placeholders draw on.
type PlaceholderSource interface {
	DominantColor(ctx context.Context, d domain.Descriptor) (string, error)
	Miniature(ctx context.Context, d domain.Descriptor, width, height int) (string, error)
}

// PlaceholderRenderer renders hash-derived placeholders as data URIs.
type PlaceholderRenderer interface {
	RenderPlaceholder(kind string, width, height int, hash string) (string, error)
}

// ComposePlaceholder returns the CSS declarations for the placeholder
// strategy in s, seeded from d. Every failure is logged and yields an empty
// style.
func ComposePlaceholder(ctx context.Context, src PlaceholderSource, d domain.Descriptor, s config.Settings, logger *log.Logger) markup.Style {
	if logger == nil {
		logger = log.Default()
	}
	width, height := placeholderBox(d, s.PlaceholderSize)

	switch s.Placeholder {
	case config.PlaceholderDominantColor:
		color, err := src.DominantColor(ctx, d)
		if err != nil || color == "" {
			logger.Error("dominant color placeholder failed", "url", d.URL, "err", err)
			return nil
		}
		return markup.Style{{Property: "background-color", Value: color}}

	case config.PlaceholderBlurUp:
		uri, err := src.Miniature(ctx, d, width, height)
		if err != nil || uri == "" {
			logger.Error("blur-up placeholder failed", "url", d.URL, "err", err)
			return nil
		}
		return coverBackground(uri)

	case config.PlaceholderBlurHash:
		renderer, ok := src.(PlaceholderRenderer)
		if !ok || d.Hash == "" {
			return nil
		}
		uri, err := renderer.RenderPlaceholder(placeholder.KindBlurhash, width, height, d.Hash)
		if err != nil || uri == "" {
			logger.Error("blurhash placeholder failed", "url", d.URL, "err", err)
			return nil
		}
		return coverBackground(uri)

	default:
		return nil
	}
}

// placeholderBox is size wide with d's aspect ratio, square when unknown.
func placeholderBox(d domain.Descriptor, size int) (int, int) {
	size = max(size, 1)
	if d.Width <= 0 || d.Height <= 0 {
		return size, size
	}
	return size, max(1, int(math.Round(float64(size)*float64(d.Height)/float64(d.Width))))
}

func coverBackground(uri string) markup.Style {
	return markup.Style{{Property: "background", Value: "url(" + uri + ") center center / cover"}}
}
