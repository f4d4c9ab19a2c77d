package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"vinpix/internal/domain"
	chatSvc "vinpix/internal/domain/services/chat"
)

// GCSObjectStore implements the ObjectStore interface on Google Cloud Storage.
type GCSObjectStore struct {
	client    *gcs.Client
	bucket    string
	signedTTL time.Duration
	logger    *slog.Logger
}

// NewGCSObjectStore creates an object store bound to one bucket.
// credentialsFile may be empty to use application default credentials.
func NewGCSObjectStore(ctx context.Context, bucket, credentialsFile string, signedTTL time.Duration, logger *slog.Logger) (chatSvc.ObjectStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket name cannot be empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSObjectStore{
		client:    client,
		bucket:    bucket,
		signedTTL: signedTTL,
		logger:    logger,
	}, nil
}

// Upload writes raw bytes under the given key.
func (s *GCSObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// UploadJSON marshals v and writes it under the given key.
func (s *GCSObjectStore) UploadJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal object %s: %w", key, err)
	}
	return s.Upload(ctx, key, data, "application/json")
}

// ReadJSON reads the object at key and unmarshals it into v.
func (s *GCSObjectStore) ReadJSON(ctx context.Context, key string, v interface{}) error {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal object %s: %w", key, err)
	}
	return nil
}

// Download reads the raw bytes of the object at key.
func (s *GCSObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the given keys. Missing keys are not an error - cleanup is
// best-effort and at-least-once callers may retry keys already gone.
func (s *GCSObjectStore) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			s.logger.Warn("failed to delete object", "key", key, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete object %s: %w", key, err)
			}
		}
	}
	return firstErr
}

// AccessURL returns a time-limited signed URL for the object.
func (s *GCSObjectStore) AccessURL(ctx context.Context, key string, download bool) (string, error) {
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.signedTTL),
	}
	if download {
		opts.QueryParameters = url.Values{
			"response-content-disposition": {"attachment"},
		}
	}

	u, err := s.client.Bucket(s.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return u, nil
}
