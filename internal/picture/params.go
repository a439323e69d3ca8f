package picture

import (
	"sort"
	"strings"

	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
)

const defaultSizes = "100vw"

// Params are the caller's per-call parameters. Attrs become attributes of
// the fallback <img>; class may be a string or list and style a CSS string
// or mapping.
type Params struct {
	Attrs    map[string]any          `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Sizes    string                  `json:"sizes,omitempty" yaml:"sizes,omitempty"`
	Defaults domain.Transform        `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Options  domain.TransformOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// ResolvedParams is Params merged with settings. Attrs always holds class as
// a markup.ClassList and style as a markup.Style.
type ResolvedParams struct {
	Attrs    *markup.Attrs
	Sizes    string
	Defaults domain.Transform
	Options  domain.TransformOptions
}

// ResolveParams merges caller params with settings for image, which may be
// nil. Neither input is modified.
func ResolveParams(image *domain.ImageRef, p Params, s config.Settings) ResolvedParams {
	out := ResolvedParams{
		Attrs:    markup.NewAttrs(),
		Sizes:    p.Sizes,
		Defaults: s.DefaultTransform.Merge(p.Defaults),
		Options:  p.Options,
	}
	if strings.TrimSpace(out.Sizes) == "" {
		out.Sizes = defaultSizes
	}

	names := make([]string, 0, len(p.Attrs))
	for name := range p.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch name {
		case "class":
			out.Attrs.Set(name, markup.ClassFrom(p.Attrs[name]))
		case "style":
			out.Attrs.Set(name, markup.StyleFrom(p.Attrs[name]))
		default:
			out.Attrs.Set(name, p.Attrs[name])
		}
	}

	if s.Loading != "" {
		out.Attrs.SetDefault("loading", s.Loading)
	}
	if s.Decoding != "" {
		out.Attrs.SetDefault("decoding", s.Decoding)
	}

	var asset *domain.Asset
	if image != nil {
		asset = image.Asset
	}
	if asset != nil && !out.Attrs.Has("alt") {
		alt, _ := asset.Field(s.AltTextHandle)
		out.Attrs.Set("alt", alt)
	}

	if s.Lazysizes && s.LazysizesClass != "" {
		out.Attrs.Set("class", out.Attrs.Class().Add(s.LazysizesClass))
	}

	if s.ObjectPosition && asset != nil && asset.Focal != nil {
		position := markup.Style{{Property: "object-position", Value: asset.Focal.CSS()}}
		out.Attrs.Set("style", position.Merge(out.Attrs.Style()))
	}

	return out
}
