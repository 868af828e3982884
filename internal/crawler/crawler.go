package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/spider/internal/metrics"
)

// Engine runs a depth-first, single-site crawl that hands every qualifying
// image it finds to an ImageSaver.
type Engine struct {
	cfg       Config
	fetcher   Fetcher
	extractor Extractor
	sink      ImageSaver
	ids       IDGenerator
	logger    *zap.Logger
}

// crawlState is owned by one Run call and shared by pointer with every
// recursive visit of that run.
type crawlState struct {
	visited      visitTracker
	downloads    *DownloadTally
	pagesFetched atomic.Int64
	pagesFailed  atomic.Int64
	logger       *zap.Logger
}

// NewEngine wires the engine's collaborators. A nil extractor falls back to
// HTMLExtractor and a nil logger to a no-op logger.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	extractor Extractor,
	sink ImageSaver,
	ids IDGenerator,
	logger *zap.Logger,
) *Engine {
	if extractor == nil {
		extractor = NewHTMLExtractor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		ids:       ids,
		logger:    logger,
	}
}

// Run crawls from the configured start URL. Per-page and per-image failures
// never abort the run. When ctx is done the crawl stops issuing fetches and
// Run returns the partial result together with the context error.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return Result{}, err
	}
	if e.fetcher == nil || e.sink == nil {
		return Result{}, errors.New("engine requires a fetcher and an image sink")
	}

	runID := e.newRunID()
	state := &crawlState{
		visited:   newConcurrentVisitTracker(),
		downloads: NewDownloadTally(),
		logger:    e.logger.With(zap.String("run_id", runID)),
	}
	state.logger.Info("crawl started",
		zap.String("start_url", e.cfg.StartURL),
		zap.Int("max_depth", e.cfg.MaxDepth),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	started := time.Now()
	e.visit(ctx, state, e.cfg.StartURL, 0)

	res := Result{
		RunID:        runID,
		StartURL:     e.cfg.StartURL,
		Downloaded:   state.downloads.Count(),
		PagesFetched: state.pagesFetched.Load(),
		PagesFailed:  state.pagesFailed.Load(),
		Duration:     time.Since(started),
	}
	state.logger.Info("crawl finished",
		zap.Int64("downloaded", res.Downloaded),
		zap.Int64("pages_fetched", res.PagesFetched),
		zap.Int64("pages_failed", res.PagesFailed),
		zap.Duration("duration", res.Duration),
	)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("crawl interrupted: %w", err)
	}
	return res, nil
}

func (e *Engine) visit(ctx context.Context, st *crawlState, pageURL string, depth int) {
	if depth >= e.cfg.MaxDepth || ctx.Err() != nil {
		return
	}
	if !st.visited.MarkIfNew(visitKey(pageURL)) {
		return
	}

	logger := st.logger.With(zap.String("url", pageURL), zap.Int("depth", depth))
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		st.pagesFailed.Add(1)
		metrics.ObservePage(pageURL, pageStatus(err), 0)
		logger.Debug("page skipped", zap.Error(err))
		return
	}
	st.pagesFetched.Add(1)
	metrics.ObservePage(pageURL, "ok", len(body))

	links, images := e.extractor.Extract(body)
	saved := 0
	for _, src := range images {
		imageURL := ResolveURL(pageURL, src)
		if imageURL == "" {
			continue
		}
		if e.sink.Save(ctx, st.downloads, imageURL) {
			saved++
		}
	}
	logger.Debug("page crawled", zap.Int("links", len(links)), zap.Int("images", len(images)), zap.Int("saved", saved))

	if depth+1 >= e.cfg.MaxDepth {
		return
	}
	var g errgroup.Group
	for _, link := range followableLinks(pageURL, links) {
		g.Go(func() error {
			e.visit(ctx, st, link, depth+1)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) newRunID() string {
	if e.ids == nil {
		return ""
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("Failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}

func pageStatus(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrPolicyUnavailable):
		return "policy_unavailable"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unreachable"
	}
}
