package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dunamismax/pixelpack/internal/domain"
)

const (
	PlaceholderNone          = ""
	PlaceholderDominantColor = "dominantColor"
	PlaceholderBlurUp        = "blurUp"
	PlaceholderBlurHash      = "blurHash"
)

const DefaultLazysizesURL = "https://cdnjs.cloudflare.com/ajax/libs/lazysizes/5.3.2/lazysizes.min.js"

// Settings is the effective configuration for one markup build. It is a plain
// value: Resolve returns a new copy and never touches the receiver.
type Settings struct {
	DefaultTransform      domain.Transform
	AltTextHandle         string
	Placeholder           string
	PlaceholderSize       int
	PlaceholderProbeWidth int
	Loading               string
	Decoding              string
	ObjectPosition        bool
	Lazysizes             bool
	LazysizesClass        string
	AutoloadLazysizes     bool
	LazysizesURL          string
	TransformSVGs         bool
	TransformAnimatedGIFs bool
	SuppressErrors        bool
}

func Defaults() Settings {
	return Settings{
		AltTextHandle:         "alt",
		Placeholder:           PlaceholderNone,
		PlaceholderSize:       16,
		PlaceholderProbeWidth: 200,
		Loading:               "lazy",
		Decoding:              "auto",
		ObjectPosition:        true,
		LazysizesClass:        "lazyload",
		LazysizesURL:          DefaultLazysizesURL,
	}
}

// Overrides is a per-call configuration bag. Nil fields leave the base value.
type Overrides struct {
	DefaultTransform      *domain.Transform `json:"defaultTransformParams,omitempty" yaml:"defaultTransformParams,omitempty" toml:"defaultTransformParams"`
	AltTextHandle         *string           `json:"altTextHandle,omitempty" yaml:"altTextHandle,omitempty" toml:"altTextHandle"`
	Placeholder           *string           `json:"placeholder,omitempty" yaml:"placeholder,omitempty" toml:"placeholder"`
	PlaceholderSize       *int              `json:"placeholderSize,omitempty" yaml:"placeholderSize,omitempty" toml:"placeholderSize"`
	PlaceholderProbeWidth *int              `json:"placeholderProbeWidth,omitempty" yaml:"placeholderProbeWidth,omitempty" toml:"placeholderProbeWidth"`
	Loading               *string           `json:"loading,omitempty" yaml:"loading,omitempty" toml:"loading"`
	Decoding              *string           `json:"decoding,omitempty" yaml:"decoding,omitempty" toml:"decoding"`
	ObjectPosition        *bool             `json:"objectPosition,omitempty" yaml:"objectPosition,omitempty" toml:"objectPosition"`
	Lazysizes             *bool             `json:"lazysizes,omitempty" yaml:"lazysizes,omitempty" toml:"lazysizes"`
	LazysizesClass        *string           `json:"lazysizesClass,omitempty" yaml:"lazysizesClass,omitempty" toml:"lazysizesClass"`
	AutoloadLazysizes     *bool             `json:"autoloadLazysizes,omitempty" yaml:"autoloadLazysizes,omitempty" toml:"autoloadLazysizes"`
	LazysizesURL          *string           `json:"lazysizesURL,omitempty" yaml:"lazysizesURL,omitempty" toml:"lazysizesURL"`
	TransformSVGs         *bool             `json:"transformSvgs,omitempty" yaml:"transformSvgs,omitempty" toml:"transformSvgs"`
	TransformAnimatedGIFs *bool             `json:"transformAnimatedGifs,omitempty" yaml:"transformAnimatedGifs,omitempty" toml:"transformAnimatedGifs"`
	SuppressErrors        *bool             `json:"suppressExceptions,omitempty" yaml:"suppressExceptions,omitempty" toml:"suppressExceptions"`
}

// Resolve layers o on top of s.
func (s Settings) Resolve(o *Overrides) Settings {
	if o == nil {
		return s
	}
	if o.DefaultTransform != nil {
		s.DefaultTransform = *o.DefaultTransform
	}
	setString(&s.AltTextHandle, o.AltTextHandle)
	if o.Placeholder != nil {
		s.Placeholder = NormalizePlaceholder(*o.Placeholder)
	}
	setInt(&s.PlaceholderSize, o.PlaceholderSize)
	setInt(&s.PlaceholderProbeWidth, o.PlaceholderProbeWidth)
	setString(&s.Loading, o.Loading)
	setString(&s.Decoding, o.Decoding)
	setBool(&s.ObjectPosition, o.ObjectPosition)
	setBool(&s.Lazysizes, o.Lazysizes)
	setString(&s.LazysizesClass, o.LazysizesClass)
	setBool(&s.AutoloadLazysizes, o.AutoloadLazysizes)
	setString(&s.LazysizesURL, o.LazysizesURL)
	setBool(&s.TransformSVGs, o.TransformSVGs)
	setBool(&s.TransformAnimatedGIFs, o.TransformAnimatedGIFs)
	setBool(&s.SuppressErrors, o.SuppressErrors)
	return s
}

// NormalizePlaceholder maps a placeholder strategy name to its canonical
// constant. Unknown names disable placeholders.
func NormalizePlaceholder(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dominantcolor", "dominantcolour", "color":
		return PlaceholderDominantColor
	case "blurup":
		return PlaceholderBlurUp
	case "blurhash":
		return PlaceholderBlurHash
	default:
		return PlaceholderNone
	}
}

// LoadSettingsFile decodes a TOML file of setting overrides.
func LoadSettingsFile(path string) (Overrides, error) {
	var o Overrides
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return Overrides{}, fmt.Errorf("decode settings file %s: %w", path, err)
	}
	return o, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil && *v > 0 {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
