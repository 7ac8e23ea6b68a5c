package pipeline

import (
	"time"
)

// Defaults applied by [Config.WithDefaults].
const (
	DefaultMaxAttempts     = 3
	DefaultRequestTimeout  = 60 * time.Second
	DefaultMaxRetryBackoff = 30 * time.Second
)

// Config is the policy surface of a generation run.
type Config struct {
	// MaxAttempts is the number of completion calls a stage may make before
	// the run fails with [ErrPipelineExhausted]. Default: 3.
	MaxAttempts int

	// Model overrides the provider's default model. Empty keeps the default.
	Model string

	// RequestTimeout bounds each completion call. Exceeding it counts as a
	// transient failure. Default: 60s.
	RequestTimeout time.Duration

	// Temperature is passed to the provider. Zero means provider default.
	Temperature float64

	// MaxTokens caps each completion. Zero means provider default.
	MaxTokens int

	// RetryBackoff is the wait before the first retry of a stage; each further
	// retry doubles it. Zero retries immediately.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the doubled backoff. Default: 30s.
	MaxRetryBackoff time.Duration
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	return c
}

// backoff returns the wait before retry number attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	if c.RetryBackoff <= 0 || attempt < 1 {
		return 0
	}
	d := c.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxRetryBackoff {
			return c.MaxRetryBackoff
		}
	}
	return min(d, c.MaxRetryBackoff)
}
