package pipeline

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"math"
	"strconv"
	"strings"
)

// probeRaster reads dimensions from the image header without decoding pixels.
func probeRaster(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	return cfg.Width, cfg.Height, nil
}

// probeSVG reads the root element's width/height, falling back to the
// viewBox. Relative units such as percentages are treated as unknown.
func probeSVG(data []byte) (int, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return 0, 0, fmt.Errorf("%w: no svg element", ErrUnsupportedSource)
		}
		if err != nil {
			return 0, 0, fmt.Errorf("%w: parse svg: %v", ErrUnsupportedSource, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, fmt.Errorf("%w: root element is %s", ErrUnsupportedSource, start.Name.Local)
		}

		var w, h float64
		var viewBox string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "width":
				w = svgLength(attr.Value)
			case "height":
				h = svgLength(attr.Value)
			case "viewBox":
				viewBox = attr.Value
			}
		}
		if (w == 0 || h == 0) && viewBox != "" {
			vw, vh := parseViewBox(viewBox)
			switch {
			case w == 0 && h == 0:
				w, h = vw, vh
			case w == 0 && vh > 0:
				w = h * vw / vh
			case h == 0 && vw > 0:
				h = w * vh / vw
			}
		}
		return int(math.Round(w)), int(math.Round(h)), nil
	}
}

func svgLength(v string) float64 {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "%") {
		return 0
	}
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func parseViewBox(v string) (float64, float64) {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != 4 {
		return 0, 0
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}

func isAnimatedGIF(data []byte) (bool, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("decode gif: %w", err)
	}
	return len(g.Image) > 1, nil
}
