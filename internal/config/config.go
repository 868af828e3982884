// Package config loads and validates spider configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/spider/internal/crawler"
)

// ErrInvalidConfiguration is returned for any input that must stop the
// program before crawling starts.
var ErrInvalidConfiguration = crawler.ErrInvalidConfiguration

// Viper keys shared with the command-line flags.
const (
	KeyStartURL       = "crawler.start_url"
	KeyRecursive      = "crawler.recursive"
	KeyMaxDepth       = "crawler.max_depth"
	KeySaveDir        = "crawler.save_dir"
	KeyUserAgent      = "crawler.user_agent"
	KeyRequestTimeout = "crawler.request_timeout"
	KeyConcurrency    = "crawler.concurrency"
	KeyDeadline       = "crawler.deadline"
	KeyMaxBodyBytes   = "crawler.max_body_bytes"
	KeyVerbose        = "logging.verbose"
	KeyMetricsAddr    = "metrics.addr"
)

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Config captures all knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CrawlerConfig governs a single crawl run.
type CrawlerConfig struct {
	StartURL       string        `mapstructure:"start_url"`
	Recursive      bool          `mapstructure:"recursive"`
	MaxDepth       int           `mapstructure:"max_depth"`
	SaveDir        string        `mapstructure:"save_dir"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	Deadline       time.Duration `mapstructure:"deadline"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
}

// LoggingConfig toggles verbose zap output.
type LoggingConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a Viper instance with defaults and SPIDER_* environment
// overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SPIDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration. The depth default depends on whether the crawl is
// recursive, so crawler.max_depth deliberately has no Viper default.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	depthSet := v.IsSet(KeyMaxDepth)
	switch {
	case depthSet && !cfg.Crawler.Recursive:
		return Config{}, fmt.Errorf("%w: a depth level requires recursive mode", ErrInvalidConfiguration)
	case !depthSet && cfg.Crawler.Recursive:
		cfg.Crawler.MaxDepth = crawler.DefaultRecursiveDepth
	case !depthSet:
		cfg.Crawler.MaxDepth = 1
	}

	startURL, err := NormalizeStartURL(cfg.Crawler.StartURL)
	if err != nil {
		return Config{}, err
	}
	cfg.Crawler.StartURL = startURL

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRecursive, false)
	v.SetDefault(KeySaveDir, crawler.DefaultSaveDir)
	v.SetDefault(KeyUserAgent, crawler.DefaultUserAgent)
	v.SetDefault(KeyRequestTimeout, crawler.DefaultRequestTimeout)
	v.SetDefault(KeyConcurrency, crawler.DefaultConcurrency)
	v.SetDefault(KeyDeadline, time.Duration(0))
	v.SetDefault(KeyMaxBodyBytes, crawler.DefaultMaxBodyBytes)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyMetricsAddr, "")
}

// NormalizeStartURL prefixes http:// when raw carries no scheme and accepts
// only absolute http and https URLs.
func NormalizeStartURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: a start URL is required", ErrInvalidConfiguration)
	}
	if !schemePrefix.MatchString(raw) {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed start URL %q: %w", ErrInvalidConfiguration, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfiguration, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: start URL %q has no host", ErrInvalidConfiguration, raw)
	}
	return u.String(), nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlConfig().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Crawler.SaveDir) == "" {
		return fmt.Errorf("%w: crawler.save_dir must be set", ErrInvalidConfiguration)
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("%w: crawler.request_timeout must be > 0", ErrInvalidConfiguration)
	}
	if c.Crawler.Deadline < 0 {
		return fmt.Errorf("%w: crawler.deadline must not be negative", ErrInvalidConfiguration)
	}
	if c.Crawler.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: crawler.max_body_bytes must be > 0", ErrInvalidConfiguration)
	}
	return nil
}

// CrawlConfig projects the settings the crawl engine needs.
func (c Config) CrawlConfig() crawler.Config {
	return crawler.Config{
		StartURL:       c.Crawler.StartURL,
		MaxDepth:       c.Crawler.MaxDepth,
		Recursive:      c.Crawler.Recursive,
		SaveDir:        c.Crawler.SaveDir,
		Verbose:        c.Logging.Verbose,
		UserAgent:      c.Crawler.UserAgent,
		RequestTimeout: c.Crawler.RequestTimeout,
		Concurrency:    c.Crawler.Concurrency,
	}
}
