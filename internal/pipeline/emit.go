package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Emitter persists an encoded variant and returns its public URL.
type Emitter interface {
	Emit(ctx context.Context, name string, data []byte, format string) (string, error)
}

// LocalEmitter writes variants into Dir, served from BaseURL.
type LocalEmitter struct {
	Dir     string
	BaseURL string
}

func (e LocalEmitter) Emit(_ context.Context, name string, data []byte, _ string) (string, error) {
	if strings.TrimSpace(e.Dir) == "" {
		return "", errors.New("output directory is required")
	}
	fullPath := filepath.Join(e.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return strings.TrimRight(e.BaseURL, "/") + "/" + name, nil
}

// ObjectStoreEmitter uploads variants under Prefix.
type ObjectStoreEmitter struct {
	Store  ObjectStore
	Prefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, name string, data []byte, format string) (string, error) {
	if e.Store == nil {
		return "", errors.New("storage client is required")
	}
	objectKey := path.Join(defaultOutputPrefix(e.Prefix), name)
	if err := e.Store.WriteObject(ctx, objectKey, data, contentTypeForFormat(format)); err != nil {
		return "", err
	}
	return e.Store.PublicURL(objectKey), nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "variants"
	}
	return prefix
}

// variantName builds "<name>_<w>x<h>_<mode>_<id>.<ext>". id keeps variants
// with the same box but different parameters apart.
func variantName(base string, width, height int, mode, id, format string) string {
	if mode == "" {
		mode = "crop"
	}
	if len(id) > 10 {
		id = id[len(id)-10:]
	}
	return fmt.Sprintf("%s_%dx%d_%s_%s.%s",
		sanitizePathToken(base), width, height, sanitizePathToken(mode), id, extensionForFormat(format))
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
