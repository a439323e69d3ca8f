package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelpack/internal/domain"
)

// Fetcher loads the original bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, ref *domain.ImageRef) ([]byte, error)
}

// ObjectStore is the slice of storage.Client the engine needs.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PublicURL(objectKey string) string
}

// WebrootFetcher reads raw paths, and assets without an object key, from
// the web root directory.
type WebrootFetcher struct {
	Root string
}

func (f WebrootFetcher) Fetch(ctx context.Context, ref *domain.ImageRef) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path, err := f.Resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Resolve maps ref to a file below Root.
func (f WebrootFetcher) Resolve(ref *domain.ImageRef) (string, error) {
	if ref == nil {
		return "", errors.New("image reference is required")
	}
	if strings.TrimSpace(f.Root) == "" {
		return "", errors.New("webroot is not configured")
	}
	u := ref.URL()
	if domain.IsRemoteURL(u) {
		return "", fmt.Errorf("%w: remote url %s", ErrUnsupportedSource, u)
	}

	root := filepath.Clean(f.Root)
	full := filepath.Join(root, filepath.FromSlash(strings.TrimLeft(u, "/")))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the webroot", ErrUnsupportedSource, u)
	}
	return full, nil
}

// ObjectStoreFetcher reads assets from object storage by key and defers
// everything else to Fallback.
type ObjectStoreFetcher struct {
	Store    ObjectStore
	Fallback Fetcher
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, ref *domain.ImageRef) ([]byte, error) {
	if ref != nil && ref.Asset != nil && ref.Asset.ObjectKey != "" {
		if f.Store == nil {
			return nil, errors.New("storage client is required")
		}
		return f.Store.ReadObject(ctx, ref.Asset.ObjectKey)
	}
	if f.Fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, ref)
	}
	return f.Fallback.Fetch(ctx, ref)
}
