// Package blob stores carousel image files in an S3-compatible bucket and
// maps object paths to the public URLs the display loads them from.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures a [Store].
type Options struct {
	// Endpoint is the S3 host, with optional port ("s3.example.com:9000").
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBaseURL is the prefix public object URLs are built from. When
	// empty, "{scheme}://{endpoint}/{bucket}" is used.
	PublicBaseURL string
}

// Store uploads and deletes objects in one bucket.
type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
	log     *slog.Logger
}

// New creates a Store. It does not contact the server; see [Store.EnsureBucket].
func New(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Store{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: publicBase(opts),
		log:     logger,
	}, nil
}

func publicBase(opts Options) string {
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/")
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(opts.Endpoint, "/"), opts.Bucket)
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("created storage bucket", "bucket", s.bucket)
	return nil
}

// Upload writes data at path and returns its public URL.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimLeft(path, "/")
	info, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", path, err)
	}
	s.log.Debug("uploaded object", "path", path, "size", info.Size)
	return s.PublicURL(path), nil
}

// Delete removes the object at path. Removing a missing object is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	path = strings.TrimLeft(path, "/")
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

// PublicURL returns the URL the display fetches the object at path from.
func (s *Store) PublicURL(path string) string {
	return s.baseURL + "/" + escapePath(strings.TrimLeft(path, "/"))
}

// PathFromURL is the inverse of [Store.PublicURL]. It reports false for URLs
// that do not point into this store.
func (s *Store) PathFromURL(rawURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	rest := rawURL[len(prefix):]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	path, err := url.PathUnescape(rest)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
