//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelpack/internal/domain"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, tr domain.Transform) (Rendition, error) {
	select {
	case <-ctx.Done():
		return Rendition{}, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Rendition{}, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return Rendition{}, fmt.Errorf("auto rotate: %w", err)
	}

	w, h := tr.Size(img.Width(), img.Height())
	switch strings.ToLower(tr.Mode) {
	case domain.ModeFit:
		scale := min(float64(w)/float64(img.Width()), float64(h)/float64(img.Height()))
		err = img.Resize(scale, vips.KernelLanczos3)
	case domain.ModeStretch:
		err = img.ResizeWithVScale(float64(w)/float64(img.Width()), float64(h)/float64(img.Height()), vips.KernelLanczos3)
	default:
		err = img.Thumbnail(w, h, vips.InterestingCentre)
	}
	if err != nil {
		return Rendition{}, fmt.Errorf("resize image: %w", err)
	}

	format := outputFormat(tr.Format, sourceFormat(input))
	data, err := exportGovipsImage(img, format, tr.Quality)
	if err != nil {
		return Rendition{}, err
	}

	return Rendition{Data: data, Format: format, Width: img.Width(), Height: img.Height()}, nil
}

func sourceFormat(input []byte) string {
	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeAVIF:
		return "avif"
	case vips.ImageTypeHEIF:
		return "heic"
	default:
		return "png"
	}
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	validQuality := quality > 0 && quality <= 100

	switch format {
	case "jpeg":
		params := vips.NewJpegExportParams()
		if validQuality {
			params.Quality = quality
		}
		data, _, err = img.ExportJpeg(params)
	case "png":
		params := vips.NewPngExportParams()
		if validQuality {
			params.Quality = quality
		}
		data, _, err = img.ExportPng(params)
	case "gif":
		data, _, err = img.ExportGIF(vips.NewGifExportParams())
	case "webp":
		params := vips.NewWebpExportParams()
		if validQuality {
			params.Quality = quality
		}
		data, _, err = img.ExportWebp(params)
	case "avif":
		params := vips.NewAvifExportParams()
		if validQuality {
			params.Quality = quality
		}
		data, _, err = img.ExportAvif(params)
	case "heic":
		params := vips.NewHeifExportParams()
		if validQuality {
			params.Quality = quality
		}
		data, _, err = img.ExportHeif(params)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return data, nil
}
