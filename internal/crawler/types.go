package crawler

import (
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ImageRef is a resolved image URL plus the filename it is stored under.
type ImageRef struct {
	URL      string
	Filename string
}

// NewImageRef derives the storage filename from the final path segment of rawURL.
// It reports false when the URL has no usable final segment.
func NewImageRef(rawURL string) (ImageRef, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ImageRef{}, false
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "..", "/":
		return ImageRef{}, false
	}
	if strings.ContainsAny(name, `/\`) {
		return ImageRef{}, false
	}
	return ImageRef{URL: rawURL, Filename: name}, true
}

// DownloadTally counts images written during one run and tracks the filenames
// already claimed by an in-progress or finished download.
type DownloadTally struct {
	count   atomic.Int64
	claimed sync.Map
}

// NewDownloadTally returns an empty tally.
func NewDownloadTally() *DownloadTally {
	return &DownloadTally{}
}

// Count returns the number of images written so far.
func (t *DownloadTally) Count() int64 {
	return t.count.Load()
}

func (t *DownloadTally) add() {
	t.count.Add(1)
}

// claim reserves name for the caller; false means another download owns it.
func (t *DownloadTally) claim(name string) bool {
	_, loaded := t.claimed.LoadOrStore(name, struct{}{})
	return !loaded
}

func (t *DownloadTally) release(name string) {
	t.claimed.Delete(name)
}

// Result summarizes a finished crawl.
type Result struct {
	RunID        string
	StartURL     string
	Downloaded   int64
	PagesFetched int64
	PagesFailed  int64
	Duration     time.Duration
}
