// Package gcs provides an image store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Config captures the parameters required to write into a GCS bucket.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, without a trailing slash.
	Prefix string
}

// Store writes images to a configured GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed image store from an existing client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Dial opens a client, verifies the bucket is reachable, and returns a Store
// that owns the client.
func Dial(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if _, err := client.Bucket(store.bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bucket %q is not accessible: %w", store.bucket, err)
	}
	return store, nil
}

// Exists reports whether the object for name is already in the bucket.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	objectName, err := s.objectName(name)
	if err != nil {
		return false, err
	}
	_, err = s.client.Bucket(s.bucket).Object(objectName).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("object attrs %s: %w", objectName, err)
	}
}

// Put uploads data under name and returns a gs:// URI. The upload is
// conditional on the object not existing, so a concurrent writer never
// overwrites an image.
func (s *Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	objectName, err := s.objectName(name)
	if err != nil {
		return "", err
	}
	obj := s.client.Bucket(s.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("name %q must not contain path separators", name)
	}
	if s.prefix == "" {
		return name, nil
	}
	return s.prefix + "/" + name, nil
}
