// Package markup renders tag names plus attribute sets into HTML.
//
// Attribute values are structural: class lists are ClassList and style
// declarations are Style, both flattened only at render time. Attribute
// order is insertion order so output is deterministic.
package markup
