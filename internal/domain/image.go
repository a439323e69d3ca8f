package domain

import (
	"math"
	"path"
	"strconv"
	"strings"
)

const webrootAlias = "@webroot"

// Asset is a managed image whose dimensions and metadata are known up front.
type Asset struct {
	ID        string            `json:"id"`
	ObjectKey string            `json:"object_key"`
	URL       string            `json:"url"`
	Extension string            `json:"extension"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Focal     *FocalPoint       `json:"focal,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// FocalPoint is expressed as ratios in [0,1] from the top-left corner.
type FocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CSS renders the focal point as an object-position value, e.g. "25% 60%".
func (f FocalPoint) CSS() string {
	return percent(f.X) + " " + percent(f.Y)
}

func percent(v float64) string {
	return strconv.FormatFloat(math.Round(v*10000)/100, 'f', -1, 64) + "%"
}

// Field returns a metadata field by handle.
func (a Asset) Field(handle string) (string, bool) {
	v, ok := a.Fields[handle]
	return v, ok
}

// ImageRef points either at a managed asset or at a raw path/URL string.
// Exactly one of Asset and Path is set.
type ImageRef struct {
	Asset *Asset
	Path  string
}

func AssetRef(a *Asset) *ImageRef {
	return &ImageRef{Asset: a}
}

func PathRef(p string) *ImageRef {
	return &ImageRef{Path: p}
}

// Extension is the lower-cased file extension without the dot.
func (r ImageRef) Extension() string {
	if r.Asset != nil {
		ext := r.Asset.Extension
		if ext == "" {
			ext = path.Ext(stripQuery(r.Asset.URL))
		}
		return strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(r.Path)), "."))
}

// Key identifies the referenced image; two refs with the same key are the same image.
func (r ImageRef) Key() string {
	if r.Asset != nil {
		if r.Asset.ID == "" {
			return "asset-url:" + r.Asset.URL
		}
		return "asset:" + r.Asset.ID
	}
	return "path:" + r.URL()
}

// URL is the public URL of the untransformed image. Raw paths are rooted at
// the web root; the @webroot alias is stripped.
func (r ImageRef) URL() string {
	if r.Asset != nil {
		return r.Asset.URL
	}
	p := strings.TrimSpace(r.Path)
	if IsRemoteURL(p) {
		return p
	}
	p = strings.TrimPrefix(p, webrootAlias)
	return "/" + strings.TrimLeft(p, "/")
}

// Name is the base file name without extension, used for variant naming.
func (r ImageRef) Name() string {
	src := r.Path
	if r.Asset != nil {
		src = r.Asset.ObjectKey
		if src == "" {
			src = r.Asset.URL
		}
	}
	base := path.Base(stripQuery(src))
	return strings.TrimSuffix(base, path.Ext(base))
}

func (r ImageRef) String() string {
	if r.Asset != nil {
		return "asset " + r.Asset.ID
	}
	return r.Path
}

func IsRemoteURL(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
