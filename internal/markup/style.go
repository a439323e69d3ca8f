package markup

import (
	"sort"
	"strings"
)

// Declaration is one CSS property/value pair.
type Declaration struct {
	Property string
	Value    string
}

// Style is an ordered list of declarations with unique properties.
type Style []Declaration

// ParseStyle parses inline CSS text such as "color: red; margin: 0".
func ParseStyle(css string) Style {
	var s Style
	for _, part := range splitDeclarations(css) {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			continue
		}
		s = s.Set(prop, value)
	}
	return s
}

// splitDeclarations splits css on semicolons outside quotes and
// parentheses, so values like url(data:image/png;base64,...) stay whole.
func splitDeclarations(css string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range css {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth = max(depth-1, 0)
		case r == ';' && depth == 0:
			parts = append(parts, css[start:i])
			start = i + 1
		}
	}
	return append(parts, css[start:])
}

// StyleFrom canonicalizes a loosely typed style value: CSS text, a Style, or
// a property map (applied in key order).
func StyleFrom(v any) Style {
	switch val := v.(type) {
	case nil:
		return nil
	case Style:
		return val.clone()
	case string:
		return ParseStyle(val)
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var s Style
		for _, k := range keys {
			s = s.Set(k, val[k])
		}
		return s
	case map[string]any:
		flat := make(map[string]string, len(val))
		for k, raw := range val {
			if str, ok := raw.(string); ok {
				flat[k] = str
			}
		}
		return StyleFrom(flat)
	default:
		return nil
	}
}

func (s Style) Get(prop string) (string, bool) {
	for _, d := range s {
		if d.Property == prop {
			return d.Value, true
		}
	}
	return "", false
}

// Set returns a copy of s with prop set to value. An existing declaration
// keeps its position.
func (s Style) Set(prop, value string) Style {
	out := s.clone()
	for i := range out {
		if out[i].Property == prop {
			out[i].Value = value
			return out
		}
	}
	return append(out, Declaration{Property: prop, Value: value})
}

// Merge returns s followed by over; over wins for shared properties.
func (s Style) Merge(over Style) Style {
	out := s.clone()
	for _, d := range over {
		out = out.Set(d.Property, d.Value)
	}
	return out
}

// String renders "prop: value; prop: value;".
func (s Style) String() string {
	parts := make([]string, 0, len(s))
	for _, d := range s {
		parts = append(parts, d.Property+": "+d.Value+";")
	}
	return strings.Join(parts, " ")
}

func (s Style) clone() Style {
	if s == nil {
		return nil
	}
	out := make(Style, len(s))
	copy(out, s)
	return out
}
