package markup

import (
	"slices"
	"strings"
)

// ClassList is an ordered set of CSS class names.
type ClassList []string

// ClassFrom canonicalizes a class value given as a space separated string or
// a list.
func ClassFrom(v any) ClassList {
	var out ClassList
	switch val := v.(type) {
	case nil:
		return nil
	case ClassList:
		for _, c := range val {
			out = out.Add(c)
		}
	case string:
		for _, c := range strings.Fields(val) {
			out = out.Add(c)
		}
	case []string:
		for _, c := range val {
			out = out.Add(c)
		}
	case []any:
		for _, raw := range val {
			if c, ok := raw.(string); ok {
				out = out.Add(c)
			}
		}
	}
	return out
}

// Add returns a copy with name appended unless already present.
func (c ClassList) Add(name string) ClassList {
	name = strings.TrimSpace(name)
	if name == "" || slices.Contains(c, name) {
		return c
	}
	out := make(ClassList, len(c), len(c)+1)
	copy(out, c)
	return append(out, name)
}

// Remove returns a copy without name.
func (c ClassList) Remove(name string) ClassList {
	out := make(ClassList, 0, len(c))
	for _, existing := range c {
		if existing != name {
			out = append(out, existing)
		}
	}
	return out
}

func (c ClassList) String() string {
	return strings.Join(c, " ")
}
