package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/chanstats/telemetry"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction is the +/- fraction of each backoff that is randomized.
	JitterFraction float64
}

// DefaultRetryConfig retries three times starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.2,
	}
}

func (c RetryConfig) backOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.InitialBackoff
	bo.MaxInterval = c.MaxBackoff
	bo.Multiplier = c.Multiplier
	bo.RandomizationFactor = c.JitterFraction
	return bo
}

// withRetry runs fn until it succeeds, returns a fatal error, runs out of
// attempts or ctx is done. Attempts are bounded by MaxRetries only, never by
// elapsed time.
func withRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	fatal := false
	operation := func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		class := ClassifyError(err)
		telemetry.APIError(class.String())
		if class == ErrorClassFatal {
			fatal = true
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(cfg.backOff()),
		backoff.WithMaxTries(uint(max(cfg.MaxRetries, 0))+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(error, time.Duration) { telemetry.APIRetry() }),
	)
	if err == nil {
		return nil
	}
	// The final attempt comes back still wrapped when it was permanent.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if fatal || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}
