package pipeline

import (
	"context"
	"strings"

	"github.com/dunamismax/pixelpack/internal/domain"
)

// Rendition is one encoded output of a Transformer.
type Rendition struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, t domain.Transform) (Rendition, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, input []byte, t domain.Transform) (Rendition, error)

func (f TransformerFunc) Transform(ctx context.Context, input []byte, t domain.Transform) (Rendition, error) {
	return f(ctx, input, t)
}

// normalizeFormat lower-cases a format token and folds aliases.
func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "jpg":
		return "jpeg"
	case "heif":
		return "heic"
	default:
		return format
	}
}

// outputFormat picks the requested format, falling back to the source's.
func outputFormat(requested, source string) string {
	if f := normalizeFormat(requested); f != "" {
		return f
	}
	switch f := normalizeFormat(source); f {
	case "jpeg", "png", "gif", "webp", "avif", "heic":
		return f
	default:
		return "png"
	}
}

func extensionForFormat(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "":
		return "png"
	default:
		return format
	}
}

func contentTypeForFormat(format string) string {
	switch normalizeFormat(format) {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	case "heic":
		return "image/heic"
	default:
		return "image/png"
	}
}
