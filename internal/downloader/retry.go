package downloader

import (
	"context"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
)

// downloadAttempts bounds how often one media request is tried.
const downloadAttempts = 3

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// OnRetry, if set, is called before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// downloadRetryConfig derives the media download policy from configuration.
func downloadRetryConfig(cfg config.DownloadConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:   downloadAttempts,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}
}

// nextDelay grows delay by the backoff factor, capped at MaxDelay.
func (c RetryConfig) nextDelay(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.BackoffFactor)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RetryWithCheck runs fn until it succeeds, shouldRetry rejects the error,
// attempts run out or ctx is done. It returns the last error seen.
func RetryWithCheck[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	var lastErr error
	var zero T

	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !shouldRetry(err) || attempt == attempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = cfg.nextDelay(delay)
	}

	return zero, lastErr
}
