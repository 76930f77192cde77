package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore writes blobs to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore uses credJSON when set and Application Default Credentials
// otherwise.
func NewGCSStore(ctx context.Context, bucket, credJSON string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := checkPut(path, data); err != nil {
		return "", err
	}
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close gcs object %s: %w", path, err)
	}
	return PublicURL(s.bucket, path), nil
}

func (s *GCSStore) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete gcs object %s: %w", path, err)
	}
	return nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

// PublicURL is the storage.googleapis.com URL of an object.
func PublicURL(bucket, path string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, path)
}
