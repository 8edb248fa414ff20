// Package clock provides the cooperative timeout and retry helpers used
// throughout the stack's goroutine-per-operation calls: hci.Handler.SendCommand,
// hci.Handler.CreateLEConnection and smp.readWithTimeout all race a worker
// goroutine against a timer and a close channel. This package factors that
// shape out so the adapter's background discovery worker (spec §7) can reuse
// it instead of re-deriving its own race.
package clock

import (
	"time"

	"github.com/nimbusvale/directble/codec"
)

// WithTimeout runs fn on its own goroutine and waits for it to finish,
// cancelling the wait (not the goroutine, which has no cancellation
// mechanism of its own) after timeout. abort, if non-nil, is closed
// concurrently with the timer case and takes the same precedence a closed
// handler does in hci.Handler.SendCommand: either one ends the wait.
//
// fn's goroutine is not killed when WithTimeout gives up on it; its result
// is simply dropped. Callers whose fn performs a blocking read (as
// smp.readWithTimeout's ch.Read does) rely on the underlying channel being
// closed elsewhere to eventually unblock that orphaned goroutine.
func WithTimeout(op string, timeout time.Duration, abort <-chan struct{}, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return codec.NewError(codec.KindTimeout, op, "no result within window", nil)
	case <-abort:
		return codec.NewError(codec.KindDisconnected, op, "aborted", nil)
	}
}

// RetryPolicy bounds how many times a transient failure is retried and how
// long to wait between attempts. A nil Backoff retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	// Retryable reports whether err should be retried. A nil Retryable
	// retries any non-nil error.
	Retryable func(err error) bool
}

// Retry runs fn until it succeeds, the policy's Retryable check rejects the
// error, or MaxAttempts is exhausted. It mirrors the adapter's background
// discovery-retry worker (spec §7): transient TRANSPORT and TIMEOUT errors
// are retried up to MAX_BACKGROUND_DISCOVERY_RETRY times, everything else
// surfaces immediately.
func Retry(policy RetryPolicy, fn func(attempt int) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if policy.Backoff != nil {
			time.Sleep(policy.Backoff(attempt))
		}
	}
	return lastErr
}

// RetryableKind builds a Retryable predicate that accepts only codec.Errors
// of one of the given kinds, falling through to false (no retry) for any
// other error shape — the policy spec §7 assigns TRANSPORT and TIMEOUT on
// discovery.
func RetryableKind(kinds ...codec.Kind) func(error) bool {
	return func(err error) bool {
		ce, ok := err.(*codec.Error)
		if !ok {
			return false
		}
		for _, k := range kinds {
			if ce.Kind == k {
				return true
			}
		}
		return false
	}
}
