package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// RetryPolicy controls overload retry behavior for model calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Each subsequent
	// retry doubles it, plus up to 50% random jitter.
	BaseDelay time.Duration
}

// DefaultRetryPolicy matches the upstream guidance for transient
// overload: a handful of attempts with short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
	}
}

// IsOverloaded reports whether err is a transient upstream overload or
// rate-limit failure worth retrying. Anything else (auth errors, bad
// requests, transport failures) surfaces immediately.
func IsOverloaded(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		return true
	}
	return false
}

// Do runs fn, retrying on overload errors per the policy. It returns
// the last error once attempts are exhausted or on any non-overload
// failure. Context cancellation aborts the backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsOverloaded(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		if logger != nil {
			logger.Warn("model overloaded, backing off",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"wait", wait,
				"error", err,
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
