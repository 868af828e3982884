// Package metrics exposes Prometheus collectors for the spider.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	spiderPagesTotal         *prometheus.CounterVec
	spiderBytesTotal         *prometheus.CounterVec
	spiderImagesTotal        *prometheus.CounterVec
	spiderRobotsFetchesTotal *prometheus.CounterVec
	spiderFetchDuration      *prometheus.HistogramVec

	spiderHTTPRequestsTotal   *prometheus.CounterVec
	spiderHTTPRequestDuration *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		spiderPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_pages_total",
				Help: "Total number of pages visited, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		spiderBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_bytes_total",
				Help: "Total number of page bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		spiderImagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_images_total",
				Help: "Total number of image references handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		spiderRobotsFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_robots_fetches_total",
				Help: "Total number of robots.txt retrievals, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		spiderFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spider_fetch_duration_seconds",
				Help:    "Latency of page and image fetches, labeled by outcome.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)

		spiderHTTPRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spider_http_requests_total",
				Help: "Requests served by the metrics listener.",
			},
			[]string{"method", "route", "status"},
		)

		spiderHTTPRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spider_http_request_duration_seconds",
				Help:    "Latency of requests served by the metrics listener.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a visited page and the bytes it returned.
func ObservePage(pageURL string, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	spiderPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		spiderBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveImage counts an image reference by outcome (saved, exists, duplicate, failed, invalid).
func ObserveImage(outcome string) {
	Init()
	spiderImagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRobotsFetch counts a robots.txt retrieval by outcome.
func ObserveRobotsFetch(outcome string) {
	Init()
	spiderRobotsFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records how long a fetch took.
func ObserveFetchDuration(outcome string, d time.Duration) {
	Init()
	spiderFetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
