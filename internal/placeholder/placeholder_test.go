package placeholder

import (
	"errors"
	"image"
	"image/color"
	"net/url"
	"strings"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestInertIsDimensionMatched(t *testing.T) {
	uri := Inert(400, 300)
	if !strings.HasPrefix(uri, "data:image/svg+xml;charset=utf-8,") {
		t.Fatalf("unexpected prefix: %s", uri)
	}
	decoded, err := url.PathUnescape(strings.TrimPrefix(uri, "data:image/svg+xml;charset=utf-8,"))
	if err != nil {
		t.Fatalf("unescape svg: %v", err)
	}
	if !strings.Contains(decoded, `width="400"`) || !strings.Contains(decoded, `height="300"`) {
		t.Fatalf("expected dimensions in svg, got %s", decoded)
	}

	decoded, _ = url.PathUnescape(Inert(0, -5))
	if !strings.Contains(decoded, `width="1" height="1"`) {
		t.Fatalf("expected unknown dimensions to fall back to 1, got %s", decoded)
	}
}

func TestDominantColor(t *testing.T) {
	img := solidImage(60, 60, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	for y := 0; y < 12; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.RGBA{R: 0, G: 0, B: 255, A: 255})
		}
	}

	got, err := DominantColor(img)
	if err != nil {
		t.Fatalf("dominant color: %v", err)
	}
	if got != "#c82828" {
		t.Fatalf("expected #c82828, got %s", got)
	}
}

func TestDominantColorTransparentImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	if _, err := DominantColor(img); err == nil {
		t.Fatal("expected error for fully transparent image")
	}
}

func TestBlurhashRoundTrip(t *testing.T) {
	hash, err := EncodeHash(solidImage(80, 40, color.RGBA{R: 10, G: 120, B: 200, A: 255}))
	if err != nil {
		t.Fatalf("encode hash: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	uri, err := Render(KindBlurhash, 16, 8, hash)
	if err != nil {
		t.Fatalf("render hash: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("expected png data uri, got %s", uri)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render(KindBlurhash, 16, 16, ""); err == nil {
		t.Fatal("expected error for empty hash")
	}
	if _, err := Render("sparkles", 16, 16, ""); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestMiniatureSize(t *testing.T) {
	mini := Miniature(solidImage(200, 100, color.White), 16, 8)
	if b := mini.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Fatalf("expected 16x8 miniature, got %dx%d", b.Dx(), b.Dy())
	}
}
