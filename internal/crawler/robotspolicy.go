package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/spider/internal/metrics"
)

const maxRobotsBytes = 1 << 20

// RobotsGate enforces robots.txt directives per host. Each host's policy is
// fetched at most once per gate; concurrent first lookups share one fetch.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	cache     sync.Map
	group     singleflight.Group
}

type robotsEntry struct {
	data *robotstxt.RobotsData
	err  error
}

// NewRobotsGate builds a gate that checks URLs for userAgent.
func NewRobotsGate(client *http.Client, userAgent string, logger *zap.Logger) *RobotsGate {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed implements RobotsPolicy. The error wraps ErrPolicyUnavailable when
// the host's robots.txt could not be retrieved.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("%w: parse %q: %w", ErrPolicyUnavailable, rawURL, err)
	}
	if parsed.Host == "" {
		return false, fmt.Errorf("%w: %q has no host", ErrPolicyUnavailable, rawURL)
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		return false, err
	}
	return data.TestAgent(robotsPath(parsed), g.userAgent), nil
}

func (g *RobotsGate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if cached, ok := g.cache.Load(key); ok {
		return cached.(*robotsEntry).result()
	}
	v, _, _ := g.group.Do(key, func() (any, error) {
		if cached, ok := g.cache.Load(key); ok {
			return cached, nil
		}
		entry := g.fetch(ctx, parsed)
		// A canceled caller says nothing about the host; let the next caller retry.
		if entry.err == nil || ctx.Err() == nil {
			g.cache.Store(key, entry)
		}
		return entry, nil
	})
	return v.(*robotsEntry).result()
}

func (g *RobotsGate) fetch(ctx context.Context, parsed *url.URL) *robotsEntry {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	logger := g.logger.With(zap.String("robots_url", robotsURL.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return g.failed(logger, fmt.Errorf("new robots request: %w", err))
	}
	req.Header.Set("User-Agent", g.userAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return g.failed(logger, fmt.Errorf("fetch robots: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return g.failed(logger, fmt.Errorf("read robots body: %w", err))
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return g.failed(logger, fmt.Errorf("parse robots: %w", err))
	}
	metrics.ObserveRobotsFetch("ok")
	logger.Debug("robots policy loaded", zap.Int("status_code", resp.StatusCode))
	return &robotsEntry{data: data}
}

func (g *RobotsGate) failed(logger *zap.Logger, err error) *robotsEntry {
	metrics.ObserveRobotsFetch("error")
	logger.Debug("robots policy unavailable", zap.Error(err))
	return &robotsEntry{err: fmt.Errorf("%w: %w", ErrPolicyUnavailable, err)}
}

func (e *robotsEntry) result() (*robotstxt.RobotsData, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.data == nil {
		return nil, errors.New("robots cache entry is empty")
	}
	return e.data, nil
}

func robotsPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

type allowAllPolicy struct{}

// AllowAll returns a RobotsPolicy that authorizes every URL.
func AllowAll() RobotsPolicy { return allowAllPolicy{} }

func (allowAllPolicy) Allowed(context.Context, string) (bool, error) { return true, nil }
