// Package storage selects the image store behind a save directory. Plain
// paths write to the local filesystem, gs://bucket/prefix writes to Google
// Cloud Storage and memory:// keeps images in memory for dry runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"

	"github.com/JakeFAU/spider/internal/storage/gcs"
	"github.com/JakeFAU/spider/internal/storage/local"
	"github.com/JakeFAU/spider/internal/storage/memory"
)

// ErrWriteFailure indicates the save location cannot be created or written.
var ErrWriteFailure = errors.New("save location is not writable")

// Store is an image destination keyed by filename.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, name string, data []byte) (string, error)
	Close() error
}

// Open returns the store for dir. GCS client options are only used for
// gs:// locations.
func Open(ctx context.Context, dir string, opts ...option.ClientOption) (Store, error) {
	dir = strings.TrimSpace(dir)
	switch {
	case strings.HasPrefix(dir, "gs://"):
		cfg, err := parseGCSLocation(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}
		store, err := gcs.Dial(ctx, cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}
		return store, nil
	case strings.HasPrefix(dir, "memory://"):
		return memory.New(), nil
	default:
		store, err := local.New(local.Config{BaseDir: dir})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}
		return store, nil
	}
}

func parseGCSLocation(dir string) (gcs.Config, error) {
	u, err := url.Parse(dir)
	if err != nil {
		return gcs.Config{}, fmt.Errorf("invalid gcs location %q: %w", dir, err)
	}
	if u.Host == "" {
		return gcs.Config{}, fmt.Errorf("gcs location %q has no bucket", dir)
	}
	return gcs.Config{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}
