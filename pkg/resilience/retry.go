package resilience

import (
	"errors"
	"time"
)

// RetryPolicy reruns an operation a bounded number of times with a fixed
// pause between attempts. Failures marked Permanent stop the loop early.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// NewRetryPolicy builds a policy allowing maxRetries attempts beyond the
// first. Non-positive arguments fall back to two retries at 200ms.
func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	p := RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 2
	}
	if p.Backoff <= 0 {
		p.Backoff = 200 * time.Millisecond
	}
	return p
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget
// is spent. The last error seen is returned.
func (r RetryPolicy) Do(fn func() error) error {
	budget := r.MaxRetries + 1
	var last error
	for attempt := 0; attempt < budget; attempt++ {
		if attempt > 0 {
			time.Sleep(r.Backoff)
		}
		last = fn()
		if last == nil {
			return nil
		}
		var perm PermanentError
		if errors.As(last, &perm) {
			return perm.Err
		}
	}
	return last
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return e.Err.Error() }

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so RetryPolicy.Do gives up after the current attempt.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}
