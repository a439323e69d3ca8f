// Package placeholder renders low-cost stand-ins for images: inert
// dimension-matched SVGs, blurred miniatures, blurhash previews and
// dominant colours.
package placeholder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/url"
	"strings"

	"github.com/anthonynsimon/bild/blur"
	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	KindInert    = "inert"
	KindBlurhash = "blurhash"
)

var ErrUnknownKind = errors.New("unknown placeholder kind")

// Render dispatches on kind. hash is only used by KindBlurhash.
func Render(kind string, width, height int, hash string) (string, error) {
	switch strings.ToLower(kind) {
	case KindInert, "svg", "":
		return Inert(width, height), nil
	case KindBlurhash:
		return RenderHash(hash, width, height)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Inert returns a transparent SVG data URI with the given intrinsic size.
func Inert(width, height int) string {
	width, height = max(width, 1), max(height, 1)
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" style="background:transparent"/>`, width, height)
	return "data:image/svg+xml;charset=utf-8," + url.PathEscape(svg)
}

// DataURI base64-encodes data with the given mime type.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// PNGDataURI encodes img as PNG and wraps it in a data URI.
func PNGDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode png placeholder: %w", err)
	}
	return DataURI("image/png", buf.Bytes()), nil
}

// Miniature scales img down to width x height and blurs it.
func Miniature(img image.Image, width, height int) image.Image {
	small := imaging.Resize(img, max(width, 1), max(height, 1), imaging.Linear)
	return blur.Gaussian(small, 1.0)
}

// EncodeHash computes a 4x3 component blurhash of img.
func EncodeHash(img image.Image) (string, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", errors.New("cannot hash an empty image")
	}
	if b.Dx() > 64 {
		img = imaging.Resize(img, 64, 0, imaging.Box)
	}
	hash, err := blurhash.Encode(4, 3, img)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// RenderHash decodes a blurhash into a PNG data URI of the given size.
func RenderHash(hash string, width, height int) (string, error) {
	if strings.TrimSpace(hash) == "" {
		return "", errors.New("blurhash is empty")
	}
	img, err := blurhash.Decode(hash, max(width, 1), max(height, 1), 1)
	if err != nil {
		return "", fmt.Errorf("decode blurhash: %w", err)
	}
	return PNGDataURI(img)
}

// DominantColor returns the most frequent colour of img as "#rrggbb".
// Pixels are grouped into 16-step buckets; the bucket mean is reported.
// Fully transparent pixels are ignored.
func DominantColor(img image.Image) (string, error) {
	if img.Bounds().Dx() > 64 {
		img = imaging.Resize(img, 64, 0, imaging.Box)
	}

	type bucket struct {
		count   int
		r, g, b float64
	}
	buckets := make(map[uint32]*bucket)

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.At(x, y)
			if _, _, _, a := c.RGBA(); a == 0 {
				continue
			}
			cf, _ := colorful.MakeColor(opaque(c))
			r8, g8, b8 := cf.RGB255()
			key := uint32(r8>>4)<<8 | uint32(g8>>4)<<4 | uint32(b8>>4)
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.count++
			bk.r += cf.R
			bk.g += cf.G
			bk.b += cf.B
		}
	}

	var (
		bestKey uint32
		best    *bucket
	)
	for key, bk := range buckets {
		if best == nil || bk.count > best.count || (bk.count == best.count && key < bestKey) {
			best, bestKey = bk, key
		}
	}
	if best == nil {
		return "", errors.New("image has no opaque pixels")
	}

	n := float64(best.count)
	return colorful.Color{R: best.r / n, G: best.g / n, B: best.b / n}.Clamped().Hex(), nil
}

// opaque drops alpha so semi-transparent pixels report their own colour
// rather than a premultiplied one.
func opaque(c color.Color) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = 255
	return n
}
