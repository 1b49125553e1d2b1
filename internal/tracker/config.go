package tracker

import (
	"errors"
	"time"
)

// Defaults mirror the behavior of the browser tracker this controller follows.
const (
	DefaultMaxRetries     = 10
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultTimeout        = 30 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultGraceDelay     = 2 * time.Second
	DefaultBackoffBase    = time.Second
	DefaultBackoffMax     = 10 * time.Second
	DefaultCleanupTimeout = 5 * time.Second
	DefaultErrorMessage   = "Connection to the server was lost. Please refresh the page."
)

// Config tunes a Controller. Zero fields take the defaults above. A Config is
// copied at construction and never changes afterwards.
type Config struct {
	// MaxRetries is the number of consecutive failures that ends polling.
	MaxRetries int
	// PollInterval separates recurring polls.
	PollInterval time.Duration
	// Timeout is the hard ceiling on a single activation.
	Timeout time.Duration
	// RequestTimeout bounds each progress query.
	RequestTimeout time.Duration
	// GraceDelay keeps the final, fully completed snapshot on screen before stopping.
	GraceDelay time.Duration
	// BackoffBase and BackoffMax shape retry delays: min(base*2^n, max).
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// CleanupTimeout bounds the stop notification.
	CleanupTimeout time.Duration
	// ErrorMessage is shown once retries are exhausted.
	ErrorMessage string
}

// DefaultConfig returns a Config populated with every default.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = DefaultGraceDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}
	if c.ErrorMessage == "" {
		c.ErrorMessage = DefaultErrorMessage
	}
	return c
}

// Validate rejects combinations that cannot produce a working controller.
// It is called after defaults are applied.
func (c Config) Validate() error {
	if c.BackoffMax < c.BackoffBase {
		return errors.New("backoff max must be >= backoff base")
	}
	return nil
}
