// Package storage keeps asset originals and emitted variants in a single
// S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when an original or variant key is absent.
var ErrObjectNotFound = errors.New("object not found")

// variantCacheControl applies to every written object. Variant names embed
// their transform key, so content under a key never changes.
const variantCacheControl = "public, max-age=31536000, immutable"

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool
	// PublicURL is the base URL variants are served from. When empty the
	// bucket is assumed to be publicly readable at the endpoint.
	PublicURL string
}

type Client struct {
	minio     *minio.Client
	bucket    string
	publicURL string
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("image bucket is required")
	}

	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Client{
		minio:     mc,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}, nil
}

// PublicURL returns the URL a variant or original is served from.
func (c *Client) PublicURL(objectKey string) string {
	return c.publicURL + "/" + strings.TrimLeft(objectKey, "/")
}

// EnsureBucket creates the image bucket on first start.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check image bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create image bucket %s: %w", c.bucket, err)
	}

	return nil
}

// PresignedPutURL lets a client upload an asset original directly.
func (c *Client) PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedPutObject(ctx, c.bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign upload of %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// ObjectExists reports whether an uploaded original is in the bucket.
func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", objectKey, err)
	}
}

// ReadObject returns the bytes stored under objectKey, wrapping
// ErrObjectNotFound when the key is absent.
func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.readError(objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, c.readError(objectKey, err)
	}
	return data, nil
}

func (c *Client) readError(objectKey string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, c.bucket, objectKey)
	}
	return fmt.Errorf("read %s: %w", objectKey, err)
}

// WriteObject stores an emitted variant.
func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := c.minio.PutObject(
		ctx,
		c.bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, CacheControl: variantCacheControl},
	)
	if err != nil {
		return fmt.Errorf("write variant %s: %w", objectKey, err)
	}
	return nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return true
	default:
		return false
	}
}
