package workflow

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts     = 3
	defaultBackoffInterval = 500 * time.Millisecond
)

// BackoffStrategy computes the delay before the next attempt. The attempt
// argument is the 1-based number of the attempt that just failed.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval between every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(_ int) time.Duration {
	return b.Interval
}

// ExponentialBackoff doubles the delay after each failed attempt, capped at
// Max when Max is set.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := b.Initial

	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}

	return delay
}

// RetryPolicy bounds how often a step handler is re-invoked after transient
// failures. The policy is uniform across action types; non-retryable errors
// (see Retryable) fail fast regardless of remaining attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffStrategy

	// AttemptTimeout bounds a single handler attempt when > 0. The base
	// design runs attempts without a wall-clock limit.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is three attempts with a fixed short delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     FixedBackoff{Interval: defaultBackoffInterval},
	}
}

// AttemptFunc is one handler invocation.
type AttemptFunc func(ctx context.Context) (map[string]any, error)

// Do invokes fn until it succeeds, the error is not retryable, or the attempt
// budget is exhausted. onFailure is called after every failed attempt with
// its 1-based number. Returns the successful output, the number of attempts
// made, and the final error. Backoff sleeps honor context cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn AttemptFunc, onFailure func(attempt int, err error)) (map[string]any, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := p.attempt(ctx, fn)
		if err == nil {
			return output, attempt, nil
		}

		lastErr = err

		if onFailure != nil {
			onFailure(attempt, err)
		}

		if !Retryable(err) || attempt == maxAttempts {
			return nil, attempt, lastErr
		}

		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return nil, attempt, lastErr
		}
	}

	return nil, maxAttempts, lastErr
}

func (p RetryPolicy) attempt(ctx context.Context, fn AttemptFunc) (map[string]any, error) {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	return fn(attemptCtx)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}

	return p.Backoff.Delay(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
