package markup

import (
	"context"
	"sort"
	"sync"
)

// Script is a registered external script resource.
type Script struct {
	URL   string            `json:"url"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// ScriptRegistrar receives script resources a build needs on the page.
type ScriptRegistrar interface {
	RegisterScript(url string, attrs map[string]string)
}

// ScriptBag collects scripts, keeping the first registration per URL.
type ScriptBag struct {
	mu      sync.Mutex
	scripts []Script
	seen    map[string]bool
}

func NewScriptBag() *ScriptBag {
	return &ScriptBag{seen: make(map[string]bool)}
}

func (b *ScriptBag) RegisterScript(url string, attrs map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[url] {
		return
	}
	b.seen[url] = true
	b.scripts = append(b.scripts, Script{URL: url, Attrs: attrs})
}

func (b *ScriptBag) Scripts() []Script {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Script, len(b.scripts))
	copy(out, b.scripts)
	return out
}

// HTML renders every collected script as a <script> tag.
func (b *ScriptBag) HTML() string {
	var out string
	for _, s := range b.Scripts() {
		attrs := NewAttrs()
		attrs.Set("src", s.URL)
		keys := make([]string, 0, len(s.Attrs))
		for k := range s.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s.Attrs[k] == "" {
				attrs.Set(k, true)
				continue
			}
			attrs.Set(k, s.Attrs[k])
		}
		out += Tag("script", attrs, "")
	}
	return out
}

type ctxKey int

const scriptsKey ctxKey = 0

// WithScripts attaches a registrar to ctx.
func WithScripts(ctx context.Context, r ScriptRegistrar) context.Context {
	return context.WithValue(ctx, scriptsKey, r)
}

// ScriptsFromContext returns the registrar attached to ctx, or a registrar
// that discards everything.
func ScriptsFromContext(ctx context.Context) ScriptRegistrar {
	if r, ok := ctx.Value(scriptsKey).(ScriptRegistrar); ok && r != nil {
		return r
	}
	return discardScripts{}
}

type discardScripts struct{}

func (discardScripts) RegisterScript(string, map[string]string) {}
