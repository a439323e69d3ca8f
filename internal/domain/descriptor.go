package domain

// Descriptor is one rendition returned by the transform engine.
type Descriptor struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Key    string `json:"key,omitempty"`
	Mode   string `json:"mode,omitempty"`

	// Source is the image the rendition was derived from. Not persisted.
	Source *ImageRef `json:"-"`
}

// AspectRatio is width/height, or 0 when either side is unknown.
func (d Descriptor) AspectRatio() float64 {
	if d.Width <= 0 || d.Height <= 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}
