// Package retry re-attempts provider calls that failed with a transient
// error. careflow never retries on its own: the default configuration makes
// a single attempt and retries are enabled only by configuration.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds retry configuration parameters.
type Config struct {
	// MaxAttempts is the maximum number of attempts. The initial request
	// counts as attempt 1; values below 1 behave as 1.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	Multiplier float64

	// Jitter scales each delay by a random factor in [1-Jitter, 1+Jitter].
	Jitter float64

	// OnRetry, if set, is called before sleeping between attempts.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Disabled returns a configuration that makes exactly one attempt.
func Disabled() Config {
	return Config{MaxAttempts: 1}
}

// Backoff returns a configuration with exponential backoff:
// 1s initial delay, 30s cap, 2x multiplier, 10% jitter.
func Backoff(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Delay calculates the delay after the given attempt (0-indexed).
func (c Config) Delay(attempt int) time.Duration {
	attempt = max(attempt, 0)

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay *= 1.0 + (rand.Float64()*2-1)*c.Jitter
	}
	return time.Duration(delay)
}

func (c Config) attempts() int {
	return max(c.MaxAttempts, 1)
}
