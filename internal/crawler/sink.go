package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/metrics"
)

// DownloadSink fetches discovered images and writes the ones not yet on disk.
type DownloadSink struct {
	store   ImageStore
	fetcher Fetcher
	logger  *zap.Logger
}

// NewDownloadSink returns a sink writing to store through fetcher.
func NewDownloadSink(store ImageStore, fetcher Fetcher, logger *zap.Logger) *DownloadSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadSink{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Save downloads imageURL unless a file with the same name already exists or
// was claimed earlier in the run. It returns true only when a new file was
// written, in which case tally has been incremented. Failures are never fatal.
func (s *DownloadSink) Save(ctx context.Context, tally *DownloadTally, imageURL string) bool {
	ref, ok := NewImageRef(imageURL)
	if !ok {
		metrics.ObserveImage("invalid")
		s.logger.Debug("image has no filename", zap.String("url", imageURL))
		return false
	}
	logger := s.logger.With(zap.String("url", ref.URL), zap.String("file", ref.Filename))
	if !tally.claim(ref.Filename) {
		metrics.ObserveImage("duplicate")
		return false
	}

	exists, err := s.store.Exists(ctx, ref.Filename)
	if err != nil {
		tally.release(ref.Filename)
		metrics.ObserveImage("failed")
		logger.Debug("image existence check failed", zap.Error(err))
		return false
	}
	if exists {
		metrics.ObserveImage("exists")
		logger.Debug("image already saved")
		return false
	}

	data, err := s.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		tally.release(ref.Filename)
		metrics.ObserveImage("failed")
		logger.Debug("image download failed", zap.Error(err))
		return false
	}
	uri, err := s.store.Put(context.WithoutCancel(ctx), ref.Filename, data)
	if err != nil {
		tally.release(ref.Filename)
		metrics.ObserveImage("failed")
		logger.Debug("image write failed", zap.Error(err))
		return false
	}

	tally.add()
	metrics.ObserveImage("saved")
	logger.Debug("image saved", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return true
}
