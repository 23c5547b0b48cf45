package peers

import (
	"context"
	"errors"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry executes fn with retries, backoff, and cancellation support.
//
// fn must return nil on success.
// Any non-nil error is retryable unless wrapped with Permanent, in which case
// the unwrapped error is returned.
func Retry(
	ctx context.Context,
	policy RetryPolicy,
	fn func() error,
) error {

	var attempt int
	var backoff = policy.BaseBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		attempt++
		if attempt > policy.MaxRetries {
			return err
		}

		delay := backoff
		if policy.JitterFn != nil {
			delay += policy.JitterFn(backoff)
		}
		if delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}

		select {
		case <-time.After(delay):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
