package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/logger"
)

// Operation is retried until it succeeds, exhausts the attempt budget,
// or fails with an error the predicate rejects.
type Operation func() error

// Config controls one retry loop.
type Config struct {
	// MaxAttempts caps total attempts; 0 means retry until success or
	// a non-retryable error.
	MaxAttempts int
	// Backoff produces the delay before each retry.
	Backoff BackoffStrategy
	// RetryIf decides whether an error is worth another attempt.
	// Defaults to DefaultRetryIf.
	RetryIf func(error) bool
	// Context cancels the wait between attempts.
	Context context.Context
	// OnRetry is called before each wait, if set.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger records retry attempts; nil disables retry logging.
	Logger logger.Logger
}

// DefaultConfig returns three attempts with exponential backoff.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries typed errors whose ErrorType is retryable and
// unknown errors; validation skips and context errors never retry.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := errs.AsSkip(err); ok {
		return false
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do runs op under cfg's retry policy. A nil cfg uses DefaultConfig.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
				"error":    err.Error(),
			})
		}
		if waitErr := Wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("retry cancelled: %w", waitErr)
		}
	}
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](op func() (T, error), cfg *Config) (T, error) {
	var result T
	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)
	return result, err
}

// Wait blocks for delay or until ctx is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
