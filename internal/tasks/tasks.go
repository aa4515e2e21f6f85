package tasks

import (
	"context"
	"time"

	"github.com/shiftline/marketplace/pkg/models"
)

// Handler is the function that processes a task.
type Handler func(ctx context.Context, t *models.Task) error

// BackoffDuration returns exponential backoff duration for attempt n.
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// simple exponential: base 2^attempt seconds, capped
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
