package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "endpoint fallback",
			cfg:  Config{Endpoint: "localhost:9000", Bucket: "pixelpack"},
			key:  "variants/hero_400x300.jpeg",
			want: "http://localhost:9000/pixelpack/variants/hero_400x300.jpeg",
		},
		{
			name: "tls endpoint",
			cfg:  Config{Endpoint: "s3.example.com", Bucket: "img", UseSSL: true},
			key:  "a.png",
			want: "https://s3.example.com/img/a.png",
		},
		{
			name: "explicit public url",
			cfg:  Config{Endpoint: "minio:9000", Bucket: "img", PublicURL: "https://cdn.example.com/"},
			key:  "/variants/a.webp",
			want: "https://cdn.example.com/variants/a.webp",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.cfg)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			if got := c.PublicURL(tc.key); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestReadErrorClassifiesMissingKeys(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "img"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	missing := c.readError("originals/a.png", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})
	if !errors.Is(missing, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", missing)
	}

	denied := c.readError("originals/a.png", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403})
	if errors.Is(denied, ErrObjectNotFound) {
		t.Fatalf("access denied must not read as missing: %v", denied)
	}
}
