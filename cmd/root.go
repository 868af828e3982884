package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/spider/internal/config"
	"github.com/JakeFAU/spider/internal/crawler"
	collyfetcher "github.com/JakeFAU/spider/internal/fetcher/colly"
	"github.com/JakeFAU/spider/internal/id/uuid"
	"github.com/JakeFAU/spider/internal/logging"
	"github.com/JakeFAU/spider/internal/metrics"
	"github.com/JakeFAU/spider/internal/storage"
)

// storageOptions are passed to storage.Open; tests replace them to point GCS
// at a fake endpoint.
var storageOptions []option.ClientOption

// newRootCmd creates the spider command with its flags bound into a fresh
// Viper instance.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "spider [flags] URL",
		Short: "Recursively download the images of a single website.",
		Long: `spider crawls a website starting at URL and downloads every .jpg, .jpeg,
.png, .gif and .bmp image it references. It honors robots.txt, never leaves
the starting host, never fetches a page twice and stops at the configured
depth. The save path may be a local directory or gs://bucket/prefix.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Set(config.KeyStartURL, args[0])
			return runSpider(cmd, v, cfgFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "optional config file (yaml, json or toml)")
	flags.BoolP("recursive", "r", false, "follow links on the starting host")
	flags.IntP("level", "l", crawler.DefaultRecursiveDepth, "maximum depth of the recursive download (requires -r)")
	flags.StringP("path", "p", crawler.DefaultSaveDir, "directory or gs://bucket/prefix images are saved to")
	flags.BoolP("verbose", "v", false, "log every page and image at debug level")
	flags.Int("concurrency", crawler.DefaultConcurrency, "maximum number of requests in flight")
	flags.Duration("timeout", crawler.DefaultRequestTimeout, "per-request timeout")
	flags.Duration("deadline", 0, "stop issuing requests after this long (0 means no limit)")
	flags.String("metrics-addr", "", "serve /metrics and /healthz on this address while crawling")

	bindings := map[string]string{
		config.KeyRecursive:      "recursive",
		config.KeyMaxDepth:       "level",
		config.KeySaveDir:        "path",
		config.KeyVerbose:        "verbose",
		config.KeyConcurrency:    "concurrency",
		config.KeyRequestTimeout: "timeout",
		config.KeyDeadline:       "deadline",
		config.KeyMetricsAddr:    "metrics-addr",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	return cmd
}

func runSpider(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Crawler.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Crawler.Deadline)
		defer cancel()
	}

	store, err := storage.Open(ctx, cfg.Crawler.SaveDir, storageOptions...)
	if err != nil {
		logger.Error("Save location unavailable", zap.String("save_dir", cfg.Crawler.SaveDir), zap.Error(err))
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close image store", zap.Error(cerr))
		}
	}()

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("Metrics listener stopped", zap.Error(err))
			}
		}()
	}

	engine := buildEngine(cfg, store, logger)
	res, err := engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("run spider: %w", err)
	}
	if err != nil {
		logger.Warn("Crawl stopped early", zap.Error(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Total images downloaded: %d\n", res.Downloaded)
	return nil
}

func buildEngine(cfg config.Config, store storage.Store, logger *zap.Logger) *crawler.Engine {
	crawlCfg := cfg.CrawlConfig()
	robots := crawler.NewRobotsGate(
		&http.Client{Timeout: crawlCfg.RequestTimeout},
		crawlCfg.UserAgent,
		logger.Named("robots"),
	)
	fetcher := crawler.NewLimitedFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent:    crawlCfg.UserAgent,
		Timeout:      crawlCfg.RequestTimeout,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	}, robots, logger.Named("fetcher")), crawlCfg.Concurrency)
	sink := crawler.NewDownloadSink(store, fetcher, logger.Named("sink"))
	return crawler.NewEngine(crawlCfg, fetcher, crawler.NewHTMLExtractor(), sink, uuid.New(), logger)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "spider: %v\n", err)
		os.Exit(1)
	}
}
