package crawler

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// LimitedFetcher bounds the number of fetches in flight. Once the caller's
// context is done no new fetch starts, but a fetch that already started is
// detached from cancellation and runs to completion or its own timeout.
type LimitedFetcher struct {
	next  Fetcher
	slots *semaphore.Weighted
}

// NewLimitedFetcher wraps next so that at most n fetches run concurrently.
func NewLimitedFetcher(next Fetcher, n int) *LimitedFetcher {
	if n <= 0 {
		n = 1
	}
	return &LimitedFetcher{next: next, slots: semaphore.NewWeighted(int64(n))}
}

// Fetch implements Fetcher.
func (l *LimitedFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s not started: %w", rawURL, err)
	}
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch %s not started: %w", rawURL, err)
	}
	defer l.slots.Release(1)
	return l.next.Fetch(context.WithoutCancel(ctx), rawURL)
}
