// Package polling drives bounded status loops against asynchronous
// providers.
package polling

import (
	"context"
	"fmt"
	"time"

	"genesis/internal/domain"
)

// Budget bounds a poll loop: at most MaxAttempts status calls with Interval
// between consecutive calls.
type Budget struct {
	Interval    time.Duration
	MaxAttempts int
}

// Wall is the worst case time spent sleeping.
func (b Budget) Wall() time.Duration {
	if b.MaxAttempts <= 1 {
		return 0
	}
	return b.Interval * time.Duration(b.MaxAttempts-1)
}

// Poll calls statusFn until isSuccess or isFailure matches. Anything else is
// treated as still pending. It returns domain.ErrPollingTimeout after exactly
// MaxAttempts calls, ctx.Err() when ctx ends while waiting, and aborts on the
// first statusFn error. A failure status is returned with
// domain.ErrProviderGeneration so callers can still inspect the value.
func Poll[T any](
	ctx context.Context,
	b Budget,
	statusFn func(ctx context.Context) (T, error),
	isSuccess func(T) bool,
	isFailure func(T) bool,
) (T, int, error) {
	var zero T
	if b.MaxAttempts <= 0 {
		return zero, 0, fmt.Errorf("polling: max attempts must be positive")
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}

		status, err := statusFn(ctx)
		if err != nil {
			return zero, attempt, err
		}
		if isSuccess(status) {
			return status, attempt, nil
		}
		if isFailure(status) {
			return status, attempt, domain.ErrProviderGeneration
		}
		if attempt == b.MaxAttempts {
			break
		}

		if timer == nil {
			timer = time.NewTimer(b.Interval)
		} else {
			timer.Reset(b.Interval)
		}
		select {
		case <-ctx.Done():
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, b.MaxAttempts, fmt.Errorf("%w: %d attempts every %s", domain.ErrPollingTimeout, b.MaxAttempts, b.Interval)
}
