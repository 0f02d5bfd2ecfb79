package blob

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSConfig captures the parameters for the Cloud Storage blob store.
type GCSConfig struct {
	Bucket string `mapstructure:"gcs_bucket"`
	Prefix string `mapstructure:"prefix"`
}

// GCS writes artifacts to a Google Cloud Storage bucket. Authentication
// comes from Application Default Credentials.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates the client and verifies bucket access up front so a bad
// configuration fails at startup instead of mid-run.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("access gcs bucket %q: %w", cfg.Bucket, err)
	}
	return &GCS{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Close releases the underlying client.
func (s *GCS) Close() error {
	return s.client.Close()
}

// PutObject uploads data and returns a gs:// URI.
func (s *GCS) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := strings.TrimLeft(path, "/")
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", object, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
