package domain

import "testing"

func TestTransformValidate(t *testing.T) {
	valid := Transform{Width: 400, Mode: ModeCrop, Quality: 80}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid transform, got error: %v", err)
	}

	if err := (Transform{Width: -1}).Validate(); err == nil {
		t.Fatal("expected validation error for negative width")
	}
	if err := (Transform{Quality: 101}).Validate(); err == nil {
		t.Fatal("expected validation error for quality above 100")
	}
	if err := (Transform{Mode: "smear"}).Validate(); err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
}

func TestTransformMergeOverridesNonZeroFields(t *testing.T) {
	base := Transform{Width: 100, Format: "jpeg", Quality: 70}
	got := base.Merge(Transform{Width: 400, Mode: ModeFit})

	want := Transform{Width: 400, Format: "jpeg", Quality: 70, Mode: ModeFit}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if base.Width != 100 {
		t.Fatal("merge must not modify the receiver")
	}
}

func TestTransformSize(t *testing.T) {
	tests := []struct {
		name  string
		t     Transform
		w, h  int
		wantW int
		wantH int
	}{
		{"natural", Transform{}, 800, 600, 800, 600},
		{"width only keeps aspect", Transform{Width: 400}, 800, 600, 400, 300},
		{"height only keeps aspect", Transform{Height: 300}, 800, 600, 400, 300},
		{"ratio drives height", Transform{Width: 200, Ratio: 2}, 800, 600, 200, 100},
		{"ratio drives width", Transform{Height: 100, Ratio: 1.5}, 800, 600, 150, 100},
		{"explicit box", Transform{Width: 50, Height: 70}, 800, 600, 50, 70},
	}
	for _, tt := range tests {
		w, h := tt.t.Size(tt.w, tt.h)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("%s: expected %dx%d, got %dx%d", tt.name, tt.wantW, tt.wantH, w, h)
		}
	}
}

func TestImageRefURLAndExtension(t *testing.T) {
	tests := []struct {
		ref     ImageRef
		wantURL string
		wantExt string
	}{
		{ImageRef{Path: "images/hero.JPG"}, "/images/hero.JPG", "jpg"},
		{ImageRef{Path: "@webroot/img/logo.svg"}, "/img/logo.svg", "svg"},
		{ImageRef{Path: "/anim.gif?v=2"}, "/anim.gif?v=2", "gif"},
		{ImageRef{Asset: &Asset{ID: "a1", URL: "https://cdn.test/a.png", Extension: "png"}}, "https://cdn.test/a.png", "png"},
	}
	for _, tt := range tests {
		if got := tt.ref.URL(); got != tt.wantURL {
			t.Errorf("URL(%s): expected %s, got %s", tt.ref, tt.wantURL, got)
		}
		if got := tt.ref.Extension(); got != tt.wantExt {
			t.Errorf("Extension(%s): expected %s, got %s", tt.ref, tt.wantExt, got)
		}
	}
}

func TestFocalPointCSS(t *testing.T) {
	if got := (FocalPoint{X: 0.25, Y: 0.6}).CSS(); got != "25% 60%" {
		t.Fatalf("expected 25%% 60%%, got %s", got)
	}
}
