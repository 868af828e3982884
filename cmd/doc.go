// Package cmd implements the spider command line.
//
// Architecture overview:
//   - Configuration: flags are bound into a Viper instance that also reads an optional config file and SPIDER_*
//     environment variables. internal/config validates the result and normalizes the start URL.
//   - Fetch pipeline: every request goes through crawler.LimitedFetcher (bounded concurrency, cancellation stops new
//     work) into the Colly-based fetcher, which consults the robots.txt gate before touching the network.
//   - Crawl: crawler.Engine walks same-host links depth first, fanning siblings out on goroutines, and hands image
//     URLs to crawler.DownloadSink, which writes them to the local filesystem, GCS, or memory.
//   - Observability: zap logs carry the run ID; Prometheus counters and histograms are exposed on --metrics-addr.
//
// Quick checklist:
//   - Run locally: go run . -r -l 3 -p ./images https://example.com
//   - Save to GCS: go run . -r -p gs://bucket/prefix https://example.com (uses application default credentials).
package cmd
