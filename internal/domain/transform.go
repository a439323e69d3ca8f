package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	ModeCrop    = "crop"
	ModeFit     = "fit"
	ModeStretch = "stretch"
)

// TransformerStd names the pure-Go backend every engine build carries.
const TransformerStd = "std"

// Transform describes one rendition requested from the transform engine.
// Zero fields mean "not specified".
type Transform struct {
	Width   int     `json:"width,omitempty" yaml:"width,omitempty" toml:"width"`
	Height  int     `json:"height,omitempty" yaml:"height,omitempty" toml:"height"`
	Ratio   float64 `json:"ratio,omitempty" yaml:"ratio,omitempty" toml:"ratio"`
	Mode    string  `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode"`
	Format  string  `json:"format,omitempty" yaml:"format,omitempty" toml:"format"`
	Quality int     `json:"quality,omitempty" yaml:"quality,omitempty" toml:"quality"`
}

// TransformOptions is the per-call override bag handed to the engine.
type TransformOptions struct {
	// Transformer selects a named backend; "std" forces the pure-Go one.
	Transformer string `json:"transformer,omitempty" yaml:"transformer,omitempty"`
	// Hash asks the engine to attach a blurhash to each descriptor.
	Hash    bool `json:"hash,omitempty" yaml:"hash,omitempty"`
	NoCache bool `json:"no_cache,omitempty" yaml:"no_cache,omitempty"`
}

// Merge returns t with every non-zero field of over applied on top.
func (t Transform) Merge(over Transform) Transform {
	if over.Width != 0 {
		t.Width = over.Width
	}
	if over.Height != 0 {
		t.Height = over.Height
	}
	if over.Ratio != 0 {
		t.Ratio = over.Ratio
	}
	if over.Mode != "" {
		t.Mode = over.Mode
	}
	if over.Format != "" {
		t.Format = over.Format
	}
	if over.Quality != 0 {
		t.Quality = over.Quality
	}
	return t
}

func (t Transform) IsZero() bool {
	return t == Transform{}
}

func (t Transform) Validate() error {
	if t.Width < 0 || t.Height < 0 {
		return errors.New("width and height must not be negative")
	}
	if t.Ratio < 0 {
		return errors.New("ratio must not be negative")
	}
	if t.Quality < 0 || t.Quality > 100 {
		return fmt.Errorf("quality must be within 0-100, got %d", t.Quality)
	}
	switch strings.ToLower(t.Mode) {
	case "", ModeCrop, ModeFit, ModeStretch:
	default:
		return fmt.Errorf("unsupported mode: %s", t.Mode)
	}
	return nil
}

// Size resolves the target box for a source of srcW x srcH. Missing sides are
// derived from the ratio when given, otherwise from the source aspect ratio.
func (t Transform) Size(srcW, srcH int) (int, int) {
	w, h := t.Width, t.Height
	switch {
	case w == 0 && h == 0:
		w = srcW
		if t.Ratio > 0 {
			h = round(float64(w) / t.Ratio)
		} else {
			h = srcH
		}
	case h == 0:
		if t.Ratio > 0 {
			h = round(float64(w) / t.Ratio)
		} else if srcW > 0 {
			h = round(float64(srcH) * float64(w) / float64(srcW))
		}
	case w == 0:
		if t.Ratio > 0 {
			w = round(float64(h) * t.Ratio)
		} else if srcH > 0 {
			w = round(float64(srcW) * float64(h) / float64(srcH))
		}
	}
	return max(w, 1), max(h, 1)
}

func round(v float64) int {
	return int(math.Round(v))
}
