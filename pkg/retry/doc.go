// Package retry runs operations under a bounded retry policy with
// pluggable backoff, used for transient network failures during page
// fetches and media downloads.
//
// The predicate decides what retries: by default, typed errors whose
// ErrorType is retryable (network, rate limit, server errors) and
// untyped errors. Validation skips, auth failures, 404s and context
// cancellation stop the loop immediately.
//
//	resp, err := retry.DoWithResult(func() (*http.Response, error) {
//		return client.Do(req)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.LinearBackoff{BaseDelay: time.Second, Increment: time.Second},
//		Context:     ctx,
//	})
//
// A nil Config retries three times with exponential backoff and
// jitter.
package retry
