package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelpack/internal/domain"
	_ "golang.org/x/image/webp"
)

// stdTransformer is the pure-Go backend. It reads jpeg, png, gif and webp
// and writes jpeg, png and gif.
type stdTransformer struct{}

func (stdTransformer) Transform(ctx context.Context, input []byte, t domain.Transform) (Rendition, error) {
	select {
	case <-ctx.Done():
		return Rendition{}, ctx.Err()
	default:
	}

	_, srcFormat, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return Rendition{}, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	format := outputFormat(t.Format, srcFormat)
	if t.Format == "" && format == "webp" {
		format = "png"
	}
	encodeAs, ok := imagingFormats[format]
	if !ok {
		return Rendition{}, fmt.Errorf("%w: std transformer cannot encode %s", ErrUnsupportedFormat, format)
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return Rendition{}, fmt.Errorf("decode source image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return Rendition{}, fmt.Errorf("source image has invalid dimensions")
	}
	w, h := t.Size(bounds.Dx(), bounds.Dy())

	out := resample(src, t.Mode, w, h)

	var opts []imaging.EncodeOption
	if t.Quality > 0 {
		opts = append(opts, imaging.JPEGQuality(t.Quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, encodeAs, opts...); err != nil {
		return Rendition{}, fmt.Errorf("encode %s: %w", format, err)
	}

	ob := out.Bounds()
	return Rendition{Data: buf.Bytes(), Format: format, Width: ob.Dx(), Height: ob.Dy()}, nil
}

var imagingFormats = map[string]imaging.Format{
	"jpeg": imaging.JPEG,
	"png":  imaging.PNG,
	"gif":  imaging.GIF,
}

// resample scales src to w x h using the transform mode's geometry.
func resample(src image.Image, mode string, w, h int) *image.NRGBA {
	switch strings.ToLower(mode) {
	case domain.ModeFit:
		return imaging.Fit(src, w, h, imaging.Lanczos)
	case domain.ModeStretch:
		return imaging.Resize(src, w, h, imaging.Lanczos)
	default:
		return imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
	}
}
