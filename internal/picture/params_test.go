package picture

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
	"github.com/google/go-cmp/cmp"
)

func testAsset() *domain.Asset {
	return &domain.Asset{
		ID:        "7",
		URL:       "/uploads/hero.jpg",
		Extension: "jpg",
		Width:     1600,
		Height:    1200,
		Focal:     &domain.FocalPoint{X: 0.25, Y: 0.6},
		Fields:    map[string]string{"alt": "A lighthouse", "caption": "Dusk"},
	}
}

func TestResolveParamsDefaults(t *testing.T) {
	s := config.Defaults()
	s.DefaultTransform = domain.Transform{Quality: 70, Mode: "crop"}

	rp := ResolveParams(domain.PathRef("img.jpg"), Params{Defaults: domain.Transform{Quality: 85}}, s)

	if rp.Sizes != "100vw" {
		t.Fatalf("expected default sizes, got %q", rp.Sizes)
	}
	if diff := cmp.Diff(domain.Transform{Quality: 85, Mode: "crop"}, rp.Defaults); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if got := rp.Attrs.String(); got != ` loading="lazy" decoding="auto"` {
		t.Fatalf("unexpected attrs %q", got)
	}
	if rp.Attrs.Has("alt") {
		t.Fatal("raw paths should not get an alt attribute")
	}
}

func TestResolveParamsCallerWins(t *testing.T) {
	rp := ResolveParams(domain.AssetRef(testAsset()), Params{
		Attrs: map[string]any{
			"alt":     "Custom",
			"loading": "eager",
			"class":   "hero wide",
			"style":   "object-position: top; color: red",
		},
		Sizes: "50vw",
	}, config.Defaults())

	if rp.Sizes != "50vw" {
		t.Fatalf("expected caller sizes, got %q", rp.Sizes)
	}
	if v, _ := rp.Attrs.Get("alt"); v != "Custom" {
		t.Fatalf("expected caller alt, got %v", v)
	}
	if v, _ := rp.Attrs.Get("loading"); v != "eager" {
		t.Fatalf("expected caller loading, got %v", v)
	}
	if diff := cmp.Diff(markup.ClassList{"hero", "wide"}, rp.Attrs.Class()); diff != "" {
		t.Fatalf("class mismatch (-want +got):\n%s", diff)
	}

	// The focal point is prepended, so the caller's object-position wins
	// and keeps the first slot.
	want := markup.Style{{Property: "object-position", Value: "top"}, {Property: "color", Value: "red"}}
	if diff := cmp.Diff(want, rp.Attrs.Style()); diff != "" {
		t.Fatalf("style mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveParamsAssetDerived(t *testing.T) {
	s := config.Defaults()
	s.Lazysizes = true
	s.AltTextHandle = "caption"

	rp := ResolveParams(domain.AssetRef(testAsset()), Params{
		Attrs: map[string]any{"class": []any{"hero"}, "style": map[string]any{"color": "red"}},
	}, s)

	if v, _ := rp.Attrs.Get("alt"); v != "Dusk" {
		t.Fatalf("expected alt from caption field, got %v", v)
	}
	if diff := cmp.Diff(markup.ClassList{"hero", "lazyload"}, rp.Attrs.Class()); diff != "" {
		t.Fatalf("class mismatch (-want +got):\n%s", diff)
	}
	want := markup.Style{{Property: "object-position", Value: "25% 60%"}, {Property: "color", Value: "red"}}
	if diff := cmp.Diff(want, rp.Attrs.Style()); diff != "" {
		t.Fatalf("style mismatch (-want +got):\n%s", diff)
	}

	s.AltTextHandle = "missing"
	s.ObjectPosition = false
	rp = ResolveParams(domain.AssetRef(testAsset()), Params{}, s)
	if v, ok := rp.Attrs.Get("alt"); !ok || v != "" {
		t.Fatalf("expected empty alt for missing field, got %v (present=%v)", v, ok)
	}
	if rp.Attrs.Has("style") {
		t.Fatal("expected no style when object-position is disabled")
	}
}

func TestResolveParamsDoesNotModifyCallerMap(t *testing.T) {
	s := config.Defaults()
	s.Lazysizes = true
	attrs := map[string]any{"class": "hero"}
	_ = ResolveParams(domain.PathRef("a.jpg"), Params{Attrs: attrs}, s)
	if attrs["class"] != "hero" {
		t.Fatalf("caller map modified: %v", attrs["class"])
	}
}

func TestComposePlaceholder(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)
	d := domain.Descriptor{URL: "/imager/a_200.jpg", Width: 200, Height: 100, Hash: testHash}

	tests := []struct {
		kind string
		want markup.Style
	}{
		{kind: config.PlaceholderDominantColor, want: markup.Style{{Property: "background-color", Value: "#112233"}}},
		{kind: config.PlaceholderBlurUp, want: markup.Style{{Property: "background", Value: "url(data:image/png;base64,MINI16x8) center center / cover"}}},
		{kind: config.PlaceholderBlurHash, want: markup.Style{{Property: "background", Value: "url(data:image/png;base64,blurhash-16x8) center center / cover"}}},
		{kind: config.PlaceholderNone, want: nil},
		{kind: "sparkles", want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			s := config.Defaults()
			s.Placeholder = tc.kind
			got := ComposePlaceholder(ctx, &fakeEngine{}, d, s, logger)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("style mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComposePlaceholderNeverFails(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)
	boom := errors.New("boom")
	broken := &fakeEngine{colorErr: boom, miniErr: boom}

	for _, kind := range []string{config.PlaceholderDominantColor, config.PlaceholderBlurUp} {
		s := config.Defaults()
		s.Placeholder = kind
		if got := ComposePlaceholder(ctx, broken, domain.Descriptor{Width: 10, Height: 10}, s, logger); len(got) != 0 {
			t.Fatalf("%s: expected empty style on failure, got %v", kind, got)
		}
	}

	s := config.Defaults()
	s.Placeholder = config.PlaceholderBlurHash
	if got := ComposePlaceholder(ctx, &fakeEngine{}, domain.Descriptor{Width: 10, Height: 10}, s, logger); len(got) != 0 {
		t.Fatalf("expected empty style without hash, got %v", got)
	}
	withHash := domain.Descriptor{Width: 10, Height: 10, Hash: testHash}
	if got := ComposePlaceholder(ctx, withoutRenderer{&fakeEngine{}}, withHash, s, logger); len(got) != 0 {
		t.Fatalf("expected empty style without a renderer, got %v", got)
	}
}

func TestPlaceholderBox(t *testing.T) {
	tests := []struct {
		d            domain.Descriptor
		size         int
		wantW, wantH int
	}{
		{d: domain.Descriptor{Width: 200, Height: 100}, size: 16, wantW: 16, wantH: 8},
		{d: domain.Descriptor{Width: 100, Height: 300}, size: 16, wantW: 16, wantH: 48},
		{d: domain.Descriptor{}, size: 16, wantW: 16, wantH: 16},
		{d: domain.Descriptor{Width: 1000, Height: 1}, size: 16, wantW: 16, wantH: 1},
	}
	for _, tc := range tests {
		w, h := placeholderBox(tc.d, tc.size)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("placeholderBox(%+v, %d) = %dx%d, want %dx%d", tc.d, tc.size, w, h, tc.wantW, tc.wantH)
		}
	}
}
