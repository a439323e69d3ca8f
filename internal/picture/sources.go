package picture

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelpack/internal/domain"
)

type ConditionKind int

const (
	CondNone ConditionKind = iota
	CondMinWidth
	CondOrientation
	CondMedia
)

// Condition is the media condition of one source.
type Condition struct {
	Kind  ConditionKind
	Width int
	// Value holds the orientation token or the literal media query.
	Value string
}

func NoCondition() Condition {
	return Condition{}
}

// MinWidth is a breakpoint condition. Non-positive widths mean no condition.
func MinWidth(px int) Condition {
	if px <= 0 {
		return Condition{}
	}
	return Condition{Kind: CondMinWidth, Width: px}
}

func Orientation(token string) Condition {
	return Condition{Kind: CondOrientation, Value: token}
}

// Media is a literal media query. The empty string means no condition.
func Media(query string) Condition {
	query = strings.TrimSpace(query)
	if query == "" {
		return Condition{}
	}
	return Condition{Kind: CondMedia, Value: query}
}

// MediaQuery renders the condition as a media attribute value.
func (c Condition) MediaQuery() string {
	switch c.Kind {
	case CondMinWidth:
		return "(min-width: " + strconv.Itoa(c.Width) + "px)"
	case CondOrientation:
		return "(orientation: " + c.Value + ")"
	case CondMedia:
		return c.Value
	default:
		return ""
	}
}

// Source is one candidate image for a <source> or the fallback <img>.
type Source struct {
	Image      *domain.ImageRef
	Transforms []domain.Transform
	Condition  Condition
	Format     string
}

var formatTokens = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"gif":  true,
	"webp": true,
	"avif": true,
	"heic": true,
}

// Normalize canonicalizes conditions and formats and orders the list.
// Lists containing a literal media query keep the caller's order; all others
// are sorted by descending breakpoint with unconditioned sources last.
// Normalize is idempotent and does not modify its input.
func Normalize(sources []Source) []Source {
	out := make([]Source, len(sources))
	copy(out, sources)

	literal := false
	for i := range out {
		s := &out[i]
		if s.Condition.Kind == CondMedia && s.Format == "" && formatTokens[s.Condition.Value] {
			s.Format = s.Condition.Value
			s.Condition = NoCondition()
		}
		if s.Format == "jpg" {
			s.Format = "jpeg"
		}

		switch s.Condition.Kind {
		case CondMedia:
			if v := s.Condition.Value; v == "landscape" || v == "portrait" {
				s.Condition = Orientation(v)
			} else {
				literal = true
			}
		case CondMinWidth:
			s.Condition = MinWidth(s.Condition.Width)
		}
	}

	if literal {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Condition, out[j].Condition
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		return a.Kind != CondNone && b.Kind == CondNone
	})
	return out
}

// withFormat copies the source format into every transform that has none,
// so the produced variants match the advertised type.
func (s Source) withFormat() []domain.Transform {
	if s.Format == "" {
		return s.Transforms
	}
	if len(s.Transforms) == 0 {
		return []domain.Transform{{Format: s.Format}}
	}
	out := make([]domain.Transform, len(s.Transforms))
	for i, t := range s.Transforms {
		if t.Format == "" {
			t.Format = s.Format
		}
		out[i] = t
	}
	return out
}
