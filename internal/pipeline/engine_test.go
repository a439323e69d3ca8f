package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dunamismax/pixelpack/internal/cache"
	"github.com/dunamismax/pixelpack/internal/domain"
)

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(context.Context, *domain.ImageRef) ([]byte, error) {
	return f.data, nil
}

type countingFetcher struct {
	Fetcher
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, ref *domain.ImageRef) ([]byte, error) {
	f.calls.Add(1)
	return f.Fetcher.Fetch(ctx, ref)
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, name string, _ []byte, _ string) (string, error) {
	return "/variants/" + name, nil
}

func encodePNG(tb testing.TB, width, height int) []byte {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * 255) / max(1, width-1)), G: 90, B: uint8((y * 255) / max(1, height-1)), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeGIF(t *testing.T, frames int) []byte {
	t.Helper()

	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 8, 8), palette.Plan9)
		frame.SetColorIndex(i, i, uint8(i+1))
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

func newWebrootEngine(t *testing.T, files map[string][]byte) (*Engine, string) {
	t.Helper()

	root := t.TempDir()
	for name, data := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	outDir := filepath.Join(root, "imager")
	engine, err := NewEngine(Options{
		Fetcher: WebrootFetcher{Root: root},
		Emitter: LocalEmitter{Dir: outDir, BaseURL: "/imager"},
		Cache:   cache.NewMemoryCache(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.RegisterTransformer("", stdTransformer{})
	return engine, outDir
}

func TestTransformImageWritesVariants(t *testing.T) {
	engine, outDir := newWebrootEngine(t, map[string][]byte{
		"images/hero.png": encodePNG(t, 240, 120),
	})

	ref := domain.PathRef("@webroot/images/hero.png")
	got, err := engine.TransformImage(context.Background(), ref,
		[]domain.Transform{{Width: 80}, {Width: 120, Height: 120}},
		domain.Transform{Format: "jpg", Quality: 70},
		domain.TransformOptions{},
	)
	if err != nil {
		t.Fatalf("transform image: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(got))
	}

	if got[0].Width != 80 || got[0].Height != 40 {
		t.Fatalf("expected 80x40, got %dx%d", got[0].Width, got[0].Height)
	}
	if got[1].Width != 120 || got[1].Height != 120 {
		t.Fatalf("expected 120x120 crop, got %dx%d", got[1].Width, got[1].Height)
	}

	for _, d := range got {
		if d.Format != "jpeg" {
			t.Fatalf("expected jpeg, got %s", d.Format)
		}
		if !strings.HasPrefix(d.URL, "/imager/hero_") || !strings.HasSuffix(d.URL, ".jpg") {
			t.Fatalf("unexpected url %s", d.URL)
		}
		if d.Source != ref {
			t.Fatal("expected descriptor to point back at its source")
		}
		name := strings.TrimPrefix(d.URL, "/imager/")
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("expected variant on disk: %v", err)
		}
	}
}

func TestTransformImageUsesCache(t *testing.T) {
	fetcher := &countingFetcher{Fetcher: staticFetcher{data: encodePNG(t, 64, 64)}}
	engine, err := NewEngine(Options{Fetcher: fetcher, Emitter: discardEmitter{}, Cache: cache.NewMemoryCache()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.RegisterTransformer("", stdTransformer{})

	ref := domain.PathRef("/a.png")
	transforms := []domain.Transform{{Width: 32}}
	first, err := engine.TransformImage(context.Background(), ref, transforms, domain.Transform{}, domain.TransformOptions{})
	if err != nil {
		t.Fatalf("first transform: %v", err)
	}
	second, err := engine.TransformImage(context.Background(), ref, transforms, domain.Transform{}, domain.TransformOptions{})
	if err != nil {
		t.Fatalf("second transform: %v", err)
	}

	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.calls.Load())
	}
	if first[0].URL != second[0].URL {
		t.Fatalf("expected cached url %s, got %s", first[0].URL, second[0].URL)
	}
	if second[0].Source != ref {
		t.Fatal("expected cached descriptor to carry its source")
	}

	if _, err := engine.TransformImage(context.Background(), ref, transforms, domain.Transform{}, domain.TransformOptions{NoCache: true}); err != nil {
		t.Fatalf("uncached transform: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Fatalf("expected NoCache to refetch, got %d fetches", fetcher.calls.Load())
	}
}

func TestTransformImageHash(t *testing.T) {
	engine, err := NewEngine(Options{Fetcher: staticFetcher{data: encodePNG(t, 64, 32)}, Emitter: discardEmitter{}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.RegisterTransformer("", stdTransformer{})

	got, err := engine.TransformImage(context.Background(), domain.PathRef("/a.png"), []domain.Transform{{Width: 32}}, domain.Transform{}, domain.TransformOptions{Hash: true})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got[0].Hash == "" {
		t.Fatal("expected blurhash on descriptor")
	}
}

func TestTransformImageErrors(t *testing.T) {
	engine, _ := newWebrootEngine(t, map[string][]byte{"a.png": encodePNG(t, 10, 10)})
	ctx := context.Background()

	tests := []struct {
		name      string
		ref       *domain.ImageRef
		transform domain.Transform
		opts      domain.TransformOptions
		wantErr   error
	}{
		{name: "missing file", ref: domain.PathRef("/missing.png"), transform: domain.Transform{Width: 5}},
		{name: "remote", ref: domain.PathRef("https://example.com/a.png"), wantErr: ErrUnsupportedSource},
		{name: "escape", ref: domain.PathRef("/../../etc/passwd.png"), wantErr: ErrUnsupportedSource},
		{name: "webp output", ref: domain.PathRef("/a.png"), transform: domain.Transform{Format: "webp"}, wantErr: ErrUnsupportedFormat},
		{name: "invalid quality", ref: domain.PathRef("/a.png"), transform: domain.Transform{Quality: 400}},
		{name: "unknown transformer", ref: domain.PathRef("/a.png"), opts: domain.TransformOptions{Transformer: "magick"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.TransformImage(ctx, tc.ref, []domain.Transform{tc.transform}, domain.Transform{}, tc.opts)
			if !errors.Is(err, ErrTransform) {
				t.Fatalf("expected ErrTransform, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSrcset(t *testing.T) {
	got := Srcset([]domain.Descriptor{
		{URL: "/a_400.jpg", Width: 400},
		{URL: ""},
		{URL: "/a_800.jpg", Width: 800},
		{URL: "/a.svg"},
	})
	want := "/a_400.jpg 400w, /a_800.jpg 800w, /a.svg"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIsAnimated(t *testing.T) {
	engine, _ := newWebrootEngine(t, map[string][]byte{
		"still.gif":   encodeGIF(t, 1),
		"anim.gif":    encodeGIF(t, 3),
		"not-gif.png": encodePNG(t, 4, 4),
	})
	ctx := context.Background()

	tests := map[string]bool{
		"/still.gif":   false,
		"/anim.gif":    true,
		"/not-gif.png": false,
	}
	for path, want := range tests {
		got, err := engine.IsAnimated(ctx, domain.PathRef(path))
		if err != nil {
			t.Fatalf("is animated %s: %v", path, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}

func TestProbe(t *testing.T) {
	engine, _ := newWebrootEngine(t, map[string][]byte{
		"logo.svg":  []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="120px" height="60"></svg>`),
		"photo.png": encodePNG(t, 33, 21),
	})
	ctx := context.Background()

	w, h, err := engine.Probe(ctx, domain.PathRef("logo.svg"))
	if err != nil || w != 120 || h != 60 {
		t.Fatalf("svg probe: got %dx%d err=%v", w, h, err)
	}
	w, h, err = engine.Probe(ctx, domain.PathRef("/photo.png"))
	if err != nil || w != 33 || h != 21 {
		t.Fatalf("raster probe: got %dx%d err=%v", w, h, err)
	}
	w, h, err = engine.Probe(ctx, domain.AssetRef(&domain.Asset{ID: "1", Width: 800, Height: 600}))
	if err != nil || w != 800 || h != 600 {
		t.Fatalf("asset probe: got %dx%d err=%v", w, h, err)
	}
}

func TestProbeSVGFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		svg   string
		wantW int
		wantH int
	}{
		{name: "viewbox", svg: `<svg viewBox="0 0 300 150"/>`, wantW: 300, wantH: 150},
		{name: "viewbox commas", svg: `<svg viewBox="0,0,40.4,20"/>`, wantW: 40, wantH: 20},
		{name: "width only", svg: `<svg width="200" viewBox="0 0 100 50"/>`, wantW: 200, wantH: 100},
		{name: "percent", svg: `<svg width="100%" height="100%"/>`, wantW: 0, wantH: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h, err := probeSVG([]byte(tc.svg))
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, w, h)
			}
		})
	}

	if _, _, err := probeSVG([]byte(`<html></html>`)); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource for non-svg root, got %v", err)
	}
}

func TestDominantColorAndMiniature(t *testing.T) {
	engine, _ := newWebrootEngine(t, map[string][]byte{"a.png": encodePNG(t, 40, 20)})
	ctx := context.Background()
	d := domain.Descriptor{URL: "/imager/a.png", Width: 40, Height: 20, Source: domain.PathRef("/a.png")}

	hex, err := engine.DominantColor(ctx, d)
	if err != nil {
		t.Fatalf("dominant color: %v", err)
	}
	if len(hex) != 7 || hex[0] != '#' {
		t.Fatalf("expected #rrggbb, got %q", hex)
	}

	uri, err := engine.Miniature(ctx, d, 16, 8)
	if err != nil {
		t.Fatalf("miniature: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("expected png data uri, got %.40s", uri)
	}

	if _, err := engine.DominantColor(ctx, domain.Descriptor{}); err == nil {
		t.Fatal("expected error for descriptor without source")
	}
}

// encodeBanded draws a blue image with a red vertical band of bandWidth
// pixels centred horizontally.
func encodeBanded(t *testing.T, width, height, bandWidth int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	left := (width - bandWidth) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{B: 255, A: 255}
			if x >= left && x < left+bandWidth {
				c = color.RGBA{R: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPlaceholdersFollowCroppedRendition(t *testing.T) {
	engine, _ := newWebrootEngine(t, map[string][]byte{"band.png": encodeBanded(t, 400, 100, 150)})
	ctx := context.Background()

	got, err := engine.TransformImage(ctx, domain.PathRef("band.png"),
		[]domain.Transform{{Width: 100, Ratio: 1}}, domain.Transform{},
		domain.TransformOptions{Transformer: domain.TransformerStd},
	)
	if err != nil {
		t.Fatalf("transform image: %v", err)
	}
	d := got[0]
	if d.Width != 100 || d.Height != 100 {
		t.Fatalf("expected 100x100 crop, got %dx%d", d.Width, d.Height)
	}

	hex, err := engine.DominantColor(ctx, d)
	if err != nil {
		t.Fatalf("dominant color: %v", err)
	}
	if hex != "#ff0000" {
		t.Fatalf("expected colour of the cropped band #ff0000, got %s", hex)
	}

	uri, err := engine.Miniature(ctx, d, 10, 10)
	if err != nil {
		t.Fatalf("miniature: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	if err != nil {
		t.Fatalf("decode data uri: %v", err)
	}
	mini, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode miniature: %v", err)
	}
	if b := mini.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Fatalf("expected 10x10 miniature, got %dx%d", b.Dx(), b.Dy())
	}
	r, _, b, _ := mini.At(5, 5).RGBA()
	if r>>8 < 200 || b>>8 > 50 {
		t.Fatalf("expected red miniature centre, got r=%d b=%d", r>>8, b>>8)
	}

	// Descriptors carry the mode needed to rebuild the rendition.
	again, err := engine.TransformImage(ctx, domain.PathRef("band.png"),
		[]domain.Transform{{Width: 100, Ratio: 1, Mode: domain.ModeStretch}}, domain.Transform{},
		domain.TransformOptions{Transformer: domain.TransformerStd},
	)
	if err != nil {
		t.Fatalf("transform image: %v", err)
	}
	if again[0].Mode != domain.ModeStretch {
		t.Fatalf("expected stretch mode on descriptor, got %q", again[0].Mode)
	}
	hex, err = engine.DominantColor(ctx, again[0])
	if err != nil {
		t.Fatalf("dominant color: %v", err)
	}
	rgb, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		t.Fatalf("parse %q: %v", hex, err)
	}
	if red, blue := rgb>>16, rgb&0xff; red > 32 || blue < 200 {
		t.Fatalf("expected stretched image to stay mostly blue, got %s", hex)
	}
}

type memoryObjectStore struct {
	objects map[string][]byte
}

func (m *memoryObjectStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memoryObjectStore) WriteObject(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memoryObjectStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func TestObjectStoreRoundTrip(t *testing.T) {
	store := &memoryObjectStore{objects: map[string][]byte{"originals/a.png": encodePNG(t, 50, 50)}}
	engine, err := NewEngine(Options{
		Fetcher: ObjectStoreFetcher{Store: store},
		Emitter: ObjectStoreEmitter{Store: store},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.RegisterTransformer("", stdTransformer{})

	asset := &domain.Asset{ID: "a1", ObjectKey: "originals/a.png", Width: 50, Height: 50}
	got, err := engine.TransformImage(context.Background(), domain.AssetRef(asset), []domain.Transform{{Width: 25}}, domain.Transform{}, domain.TransformOptions{})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if !strings.HasPrefix(got[0].URL, "https://cdn.example.com/variants/a_25x25_crop_") {
		t.Fatalf("unexpected url %s", got[0].URL)
	}
	if len(store.objects) != 2 {
		t.Fatalf("expected variant to be uploaded, have %d objects", len(store.objects))
	}

	if _, err := engine.TransformImage(context.Background(), domain.PathRef("/a.png"), nil, domain.Transform{}, domain.TransformOptions{}); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected raw path without fallback to be unsupported, got %v", err)
	}
}

func TestVariantName(t *testing.T) {
	got := variantName("my hero", 400, 300, "", "variant:0123456789abcdef", "jpeg")
	if got != "my_hero_400x300_crop_6789abcdef.jpg" {
		t.Fatalf("unexpected variant name %s", got)
	}
}

func TestStartup(t *testing.T) {
	if err := Startup(); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := Startup(); err != nil {
		t.Fatalf("second startup: %v", err)
	}
	if Backend() == "" {
		t.Fatal("expected a backend name")
	}
}
