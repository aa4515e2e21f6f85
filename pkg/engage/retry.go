package engage

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the exponential backoff duration for attempt n, capped.
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 100 * time.Millisecond
	}
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	max := 5 * time.Second
	if d > max {
		return max
	}
	return d
}

// Retry runs fn up to attempts times, backing off between tries, but only
// while the failure is ErrUnavailable. Guard failures fail identically on
// retry, so they are returned immediately.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(i + 1)):
		}
	}
	return err
}
