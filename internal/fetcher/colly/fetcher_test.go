package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/crawler"
)

type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
	uas  map[string]string
}

func (h *hitCounter) record(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[r.URL.Path]++
	h.uas[r.URL.Path] = r.UserAgent()
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *hitCounter) userAgent(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uas[path]
}

func newSite(t *testing.T) (*httptest.Server, *hitCounter) {
	t.Helper()
	counter := &hitCounter{hits: map[string]int{}, uas: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
		case "/ok":
			fmt.Fprint(w, "hello")
		case "/missing":
			http.NotFound(w, r)
		case "/slow":
			time.Sleep(500 * time.Millisecond)
			fmt.Fprint(w, "late")
		case "/big.png":
			fmt.Fprint(w, strings.Repeat("x", 100))
		case "/streamed.png":
			// Flushing first forces a chunked response with no Content-Length.
			w.(http.Flusher).Flush()
			fmt.Fprint(w, strings.Repeat("x", 100))
		case "/pub":
			http.Redirect(w, r, "/private/x.html", http.StatusFound)
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
		default:
			fmt.Fprint(w, "page")
		}
	}))
	t.Cleanup(srv.Close)
	return srv, counter
}

func newTestFetcher(timeout time.Duration) *Fetcher {
	logger := zap.NewNop()
	gate := crawler.NewRobotsGate(nil, crawler.DefaultUserAgent, logger)
	return New(Config{Timeout: timeout}, gate, logger)
}

func TestFetchReturnsBody(t *testing.T) {
	srv, counter := newSite(t)
	f := newTestFetcher(time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, 1, counter.count("/robots.txt"))
	assert.Equal(t, crawler.DefaultUserAgent, counter.userAgent("/ok"))
	assert.Equal(t, crawler.DefaultUserAgent, counter.userAgent("/robots.txt"))
}

func TestFetchRevisitsSameURL(t *testing.T) {
	srv, counter := newSite(t)
	f := newTestFetcher(time.Second)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/ok")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, counter.count("/ok"))
	assert.Equal(t, 1, counter.count("/robots.txt"), "robots.txt must be fetched once per host")
}

func TestFetchForbiddenMakesNoRequest(t *testing.T) {
	srv, counter := newSite(t)
	f := newTestFetcher(time.Second)

	_, err := f.Fetch(context.Background(), srv.URL+"/private/x.html")
	require.ErrorIs(t, err, crawler.ErrForbidden)
	assert.Zero(t, counter.count("/private/x.html"))
}

func TestFetchNonSuccessStatusIsUnreachable(t *testing.T) {
	srv, _ := newSite(t)
	f := newTestFetcher(time.Second)

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.ErrorIs(t, err, crawler.ErrUnreachable)
}

func TestFetchTimeoutIsUnreachable(t *testing.T) {
	srv, _ := newSite(t)
	f := newTestFetcher(100 * time.Millisecond)

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	require.ErrorIs(t, err, crawler.ErrUnreachable)
	assert.Less(t, time.Since(start), 450*time.Millisecond)
}

func TestFetchPolicyUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := newTestFetcher(200 * time.Millisecond)
	_, err := f.Fetch(context.Background(), addr+"/ok")
	require.ErrorIs(t, err, crawler.ErrPolicyUnavailable)
}

func TestNewAppliesDefaults(t *testing.T) {
	f := New(Config{}, nil, nil)
	assert.Equal(t, crawler.DefaultUserAgent, f.cfg.UserAgent)
	assert.Equal(t, crawler.DefaultRequestTimeout, f.cfg.Timeout)
	assert.Equal(t, crawler.DefaultMaxBodyBytes, f.cfg.MaxBodyBytes)

	collector := f.buildCollector(&fetchResult{}, new(error))
	assert.Equal(t, crawler.DefaultUserAgent, collector.UserAgent)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
	assert.Equal(t, crawler.DefaultMaxBodyBytes+1, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	var result fetchResult
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
	})
	assert.Equal(t, http.StatusCreated, result.statusCode)
	assert.Equal(t, "body", string(result.body))
	assert.Equal(t, int64(-1), result.contentLength)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestFetchRejectsBodyOverLimit(t *testing.T) {
	srv, _ := newSite(t)
	logger := zap.NewNop()
	gate := crawler.NewRobotsGate(nil, crawler.DefaultUserAgent, logger)
	f := New(Config{Timeout: time.Second, MaxBodyBytes: 40}, gate, logger)

	for _, path := range []string{"/big.png", "/streamed.png"} {
		body, err := f.Fetch(context.Background(), srv.URL+path)
		require.ErrorIs(t, err, crawler.ErrUnreachable, path)
		assert.Nil(t, body, path)
	}

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestFetchAcceptsBodyAtLimit(t *testing.T) {
	srv, _ := newSite(t)
	logger := zap.NewNop()
	gate := crawler.NewRobotsGate(nil, crawler.DefaultUserAgent, logger)
	f := New(Config{Timeout: time.Second, MaxBodyBytes: 100}, gate, logger)

	for _, path := range []string{"/big.png", "/streamed.png"} {
		body, err := f.Fetch(context.Background(), srv.URL+path)
		require.NoError(t, err, path)
		assert.Len(t, body, 100, path)
	}
}

func TestFetchRedirectIntoDisallowedPathIsForbidden(t *testing.T) {
	srv, counter := newSite(t)
	f := newTestFetcher(time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/pub")
	require.ErrorIs(t, err, crawler.ErrForbidden)
	assert.False(t, errors.Is(err, crawler.ErrUnreachable))
	assert.Nil(t, body)
	assert.Equal(t, 1, counter.count("/pub"))
	assert.Zero(t, counter.count("/private/x.html"))
}

func TestFetchFollowsAllowedRedirect(t *testing.T) {
	srv, counter := newSite(t)
	f := newTestFetcher(time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, 1, counter.count("/ok"))
}

func TestCheckRedirectStopsLongChains(t *testing.T) {
	f := newTestFetcher(time.Second)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/next", nil)
	via := make([]*http.Request, maxRedirects)

	err := f.checkRedirect(req, via)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}
