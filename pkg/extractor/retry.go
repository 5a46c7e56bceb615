package extractor

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryPolicy parameterizes the retry combinator. Attempts counts the total
// number of tries, not just the retries.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// backoff returns the exponential delay before the given retry (0-indexed).
func (p RetryPolicy) backoff(retry int) time.Duration {
	d := p.Base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// isRetryable reports whether the HTTP fetch should be retried: network
// timeouts (including per-request client timeouts), 429, and 5xx. Other 4xx
// are not retried, and neither is a canceled parent context.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code == 429 || (code >= 500 && code < 600)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// contextError reports a canceled parent context. The run's context carries
// no deadline of its own, so deadline errors belong to individual requests
// and stay retryable.
func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return nil
}

// withRetry runs fn until it succeeds, the error is unretryable, or the
// attempt budget is exhausted. onRetry is invoked before each backoff sleep.
func withRetry(ctx context.Context, policy RetryPolicy, onRetry func(retry int, err error), fn func() (*page, error)) (*page, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		p, err := fn()
		if err == nil {
			return p, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == policy.MaxAttempts-1 {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		select {
		case <-time.After(policy.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
