package markup

var voidElements = map[string]bool{
	"img":    true,
	"source": true,
	"link":   true,
	"meta":   true,
	"br":     true,
	"hr":     true,
	"input":  true,
}

// Tag renders a single element. Content is inserted verbatim and ignored
// for void elements.
func Tag(name string, attrs *Attrs, content string) string {
	open := "<" + name + attrs.String() + ">"
	if voidElements[name] {
		return open
	}
	return open + content + "</" + name + ">"
}
