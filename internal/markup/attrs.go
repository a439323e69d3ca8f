package markup

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Attrs is an insertion-ordered attribute map. Nil values and empty
// class/style values are skipped when rendering.
type Attrs struct {
	names  []string
	values map[string]any
}

func NewAttrs() *Attrs {
	return &Attrs{values: make(map[string]any)}
}

// Set stores value under name, keeping the original position if present.
func (a *Attrs) Set(name string, value any) {
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = value
}

// SetDefault stores value only when name is absent.
func (a *Attrs) SetDefault(name string, value any) {
	if _, ok := a.values[name]; ok {
		return
	}
	a.Set(name, value)
}

func (a *Attrs) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

func (a *Attrs) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a *Attrs) Delete(name string) {
	if _, ok := a.values[name]; !ok {
		return
	}
	delete(a.values, name)
	for i, n := range a.names {
		if n == name {
			a.names = append(a.names[:i:i], a.names[i+1:]...)
			break
		}
	}
}

func (a *Attrs) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Class returns the class attribute as a ClassList.
func (a *Attrs) Class() ClassList {
	v, _ := a.Get("class")
	return ClassFrom(v)
}

// Style returns the style attribute as a Style.
func (a *Attrs) Style() Style {
	v, _ := a.Get("style")
	return StyleFrom(v)
}

// Merge sets every attribute of other on a; other wins.
func (a *Attrs) Merge(other *Attrs) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		a.Set(name, other.values[name])
	}
}

func (a *Attrs) Clone() *Attrs {
	out := NewAttrs()
	for _, name := range a.names {
		out.Set(name, a.values[name])
	}
	return out
}

// String renders the attributes with a leading space per attribute.
func (a *Attrs) String() string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	for _, name := range a.names {
		value, ok := renderValue(a.values[name])
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(name)
		if value == nil {
			continue
		}
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(*value))
		b.WriteByte('"')
	}
	return b.String()
}

// renderValue flattens v. ok=false omits the attribute; a nil string renders
// a bare boolean attribute.
func renderValue(v any) (*string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return nil, false
	case bool:
		if !val {
			return nil, false
		}
		return nil, true
	case string:
		s = val
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case ClassList:
		if len(val) == 0 {
			return nil, false
		}
		s = val.String()
	case Style:
		if len(val) == 0 {
			return nil, false
		}
		s = val.String()
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	return &s, true
}
