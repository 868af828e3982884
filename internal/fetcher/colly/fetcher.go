// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/crawler"
	"github.com/JakeFAU/spider/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector. Every URL is
// checked against the robots policy before a request is issued.
type Fetcher struct {
	cfg           Config
	robots        crawler.RobotsPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

const maxRedirects = 10

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	statusCode    int
	contentLength int64
	body          []byte
}

// New builds a Fetcher. A nil robots policy allows every URL.
func New(cfg Config, robots crawler.RobotsPolicy, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = crawler.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = crawler.DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = crawler.DefaultMaxBodyBytes
	}
	if robots == nil {
		robots = crawler.AllowAll()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	// The crawl engine owns visited state and robots enforcement.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport(cfg.Timeout))
	c.SetRequestTimeout(cfg.Timeout)

	f := &Fetcher{
		cfg:           cfg,
		robots:        robots,
		baseCollector: c,
		logger:        logger,
	}
	// Clones share the HTTP client, so the redirect check is installed once here.
	c.SetRedirectHandler(f.checkRedirect)
	return f
}

// checkRedirect authorizes every redirect target against the robots policy
// before the client follows it.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	target := req.URL.String()
	allowed, err := f.robots.Allowed(req.Context(), target)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: redirect to %s", crawler.ErrForbidden, target)
	}
	return nil
}

// Fetch authorizes rawURL against the robots policy and then retrieves it.
// Errors wrap crawler.ErrForbidden, crawler.ErrPolicyUnavailable, or
// crawler.ErrUnreachable.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	allowed, err := f.robots.Allowed(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", crawler.ErrForbidden, rawURL)
	}

	var (
		result   fetchResult
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	start := time.Now()
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveFetchDuration("error", time.Since(start))
		if errors.Is(err, crawler.ErrForbidden) || errors.Is(err, crawler.ErrPolicyUnavailable) {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		return nil, fmt.Errorf("%w: %w", crawler.ErrUnreachable, err)
	}
	if result.statusCode < 200 || result.statusCode > 299 {
		metrics.ObserveFetchDuration("bad_status", time.Since(start))
		return nil, fmt.Errorf("%w: %s returned status %d", crawler.ErrUnreachable, rawURL, result.statusCode)
	}
	if len(result.body) > f.cfg.MaxBodyBytes || result.contentLength > int64(f.cfg.MaxBodyBytes) {
		metrics.ObserveFetchDuration("too_large", time.Since(start))
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", crawler.ErrUnreachable, rawURL, f.cfg.MaxBodyBytes)
	}
	metrics.ObserveFetchDuration("ok", time.Since(start))
	f.logger.Debug("fetched",
		zap.String("url", rawURL),
		zap.Int("status_code", result.statusCode),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", time.Since(start)),
	)
	return result.body, nil
}

func (f *Fetcher) buildCollector(result *fetchResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	// One byte past the limit lets Fetch tell a truncated body from one that fits.
	collector.MaxBodySize = f.cfg.MaxBodyBytes + 1
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = fetchResult{
			statusCode:    r.StatusCode,
			contentLength: declaredLength(r),
			body:          append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// declaredLength returns the Content-Length the server announced, or -1.
func declaredLength(r *colly.Response) int64 {
	if r.Headers == nil {
		return -1
	}
	n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
