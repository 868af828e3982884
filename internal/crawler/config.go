package crawler

import (
	"fmt"
	"time"
)

// Crawl defaults.
const (
	DefaultUserAgent      = "SpiderBot"
	DefaultRecursiveDepth = 5
	DefaultSaveDir        = "./data"
	DefaultRequestTimeout = 5 * time.Second
	DefaultConcurrency    = 4
	DefaultMaxBodyBytes   = 10 * 1024 * 1024
)

// Config holds the settings for a single crawl run.
// It is built once from validated input and never mutated afterwards.
type Config struct {
	StartURL       string
	MaxDepth       int
	Recursive      bool
	SaveDir        string
	Verbose        bool
	UserAgent      string
	RequestTimeout time.Duration
	Concurrency    int
}

// Validate checks the invariants the engine relies on.
func (c Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("%w: start url must be set", ErrInvalidConfiguration)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth must be >= 1, got %d", ErrInvalidConfiguration, c.MaxDepth)
	}
	if !c.Recursive && c.MaxDepth != 1 {
		return fmt.Errorf("%w: max depth %d requires recursive mode", ErrInvalidConfiguration, c.MaxDepth)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be > 0", ErrInvalidConfiguration)
	}
	return nil
}
