package picture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
)

const testHash = "LEHV6nWB2yk8pyo0adR*.7kCMdnj"

type transformCall struct {
	ref        *domain.ImageRef
	transforms []domain.Transform
	defaults   domain.Transform
	opts       domain.TransformOptions
}

// fakeEngine renders deterministic descriptors: "/imager/<name>_<w>.<fmt>",
// width 1000 when unspecified and a 4:3 box unless height or ratio is set.
type fakeEngine struct {
	transformErr error
	probeErr     error
	colorErr     error
	miniErr      error
	probeSizes   map[string][2]int
	animated     map[string]bool

	calls         []transformCall
	animatedCalls int
}

func (f *fakeEngine) TransformImage(_ context.Context, ref *domain.ImageRef, transforms []domain.Transform, defaults domain.Transform, opts domain.TransformOptions) ([]domain.Descriptor, error) {
	f.calls = append(f.calls, transformCall{ref: ref, transforms: transforms, defaults: defaults, opts: opts})
	if opts.Transformer == domain.TransformerStd {
		if f.probeErr != nil {
			return nil, f.probeErr
		}
	} else if f.transformErr != nil {
		return nil, f.transformErr
	}

	if len(transforms) == 0 {
		transforms = []domain.Transform{{}}
	}
	out := make([]domain.Descriptor, 0, len(transforms))
	for _, t := range transforms {
		m := defaults.Merge(t)
		w := m.Width
		if w == 0 {
			w = 1000
		}
		h := m.Height
		if h == 0 {
			if m.Ratio > 0 {
				h = int(math.Round(float64(w) / m.Ratio))
			} else {
				h = w * 3 / 4
			}
		}
		format := m.Format
		if format == "" {
			format = ref.Extension()
		}
		d := domain.Descriptor{
			URL:    fmt.Sprintf("/imager/%s_%d.%s", ref.Name(), w, format),
			Width:  w,
			Height: h,
			Format: format,
			Source: ref,
		}
		if opts.Hash {
			d.Hash = testHash
		}
		out = append(out, d)
	}
	return out, nil
}

// renderCalls are the transform calls that were not placeholder probes.
func (f *fakeEngine) renderCalls() []transformCall {
	var out []transformCall
	for _, c := range f.calls {
		if c.opts.Transformer != domain.TransformerStd {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) Srcset(descriptors []domain.Descriptor) string {
	parts := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Width > 0 {
			parts = append(parts, d.URL+" "+strconv.Itoa(d.Width)+"w")
		} else {
			parts = append(parts, d.URL)
		}
	}
	return strings.Join(parts, ", ")
}

func (f *fakeEngine) IsAnimated(_ context.Context, ref *domain.ImageRef) (bool, error) {
	f.animatedCalls++
	return f.animated[ref.Key()], nil
}

func (f *fakeEngine) Probe(_ context.Context, ref *domain.ImageRef) (int, int, error) {
	size, ok := f.probeSizes[ref.URL()]
	if !ok {
		return 0, 0, errors.New("no such file")
	}
	return size[0], size[1], nil
}

func (f *fakeEngine) DominantColor(context.Context, domain.Descriptor) (string, error) {
	if f.colorErr != nil {
		return "", f.colorErr
	}
	return "#112233", nil
}

func (f *fakeEngine) Miniature(_ context.Context, _ domain.Descriptor, width, height int) (string, error) {
	if f.miniErr != nil {
		return "", f.miniErr
	}
	return fmt.Sprintf("data:image/png;base64,MINI%dx%d", width, height), nil
}

func (f *fakeEngine) RenderPlaceholder(kind string, width, height int, hash string) (string, error) {
	return fmt.Sprintf("data:image/png;base64,%s-%dx%d", kind, width, height), nil
}

// withoutRenderer exposes only the Engine methods, hiding RenderPlaceholder.
type withoutRenderer struct {
	Engine
}

func newTestBuilder(e Engine) *Builder {
	return NewBuilder(e, config.Defaults(), log.New(io.Discard))
}

func ptr[T any](v T) *T {
	return &v
}
