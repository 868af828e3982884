package crawler

import "context"

// Fetcher retrieves the body of an authorized URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// RobotsPolicy authorizes a URL against its host's robots.txt.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// Extractor pulls raw link and image references out of fetched markup.
type Extractor interface {
	Extract(body []byte) (links []string, images []string)
}

// ImageStore persists downloaded images under a flat namespace of filenames.
type ImageStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// ImageSaver hands discovered images to storage, reporting whether a new file was written.
type ImageSaver interface {
	Save(ctx context.Context, tally *DownloadTally, imageURL string) bool
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
