// Package retry runs backend operations with bounded exponential backoff
// and classifies which failures are worth another attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries

	// OnRetry, if set, is called before sleeping ahead of the next attempt.
	// attempt is the 1-based number of the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the registration retry policy:
// 3 attempts total with delays of roughly 500ms and 1s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do executes operation with the default policy.
func Do[T any](ctx context.Context, operation func(ctx context.Context) (T, error)) (T, error) {
	return DoWithPolicy(ctx, DefaultPolicy(), operation)
}

// DoWithPolicy executes operation until it succeeds, fails with an error that
// is not retryable, the attempts are used up, or ctx is done.
func DoWithPolicy[T any](ctx context.Context, p Policy, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var err error

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) {
			return result, err
		}

		// No delay after the last attempt
		if attempt < attempts-1 {
			delay := Backoff(attempt, p.BaseDelay, p.MaxDelay)
			if p.OnRetry != nil {
				p.OnRetry(attempt+1, delay, err)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, &ExhaustedError{Attempts: attempts, Last: err}
}

// Backoff returns the delay before the attempt following attempt (0-based),
// using exponential growth capped at maxDelay with jitter in [d/2, d).
func Backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	delay := baseDelay << attempt // 2^attempt * baseDelay
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable reports whether err belongs to the transient class:
// network failures, timeouts, rate limiting and 5xx server errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, apperr.ErrNetworkError) ||
		errors.Is(err, apperr.ErrTimeout) ||
		errors.Is(err, apperr.ErrRateLimited) ||
		errors.Is(err, apperr.ErrServerError) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// Returns 0 if the header is empty or not a number.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
