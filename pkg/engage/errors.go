package engage

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every lifecycle component. Guard failures are
// surfaced to the caller as-is; only ErrUnavailable is worth retrying.
var (
	// ErrUnauthorized means the caller is the wrong role or party for the
	// attempted transition.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState means a guard failed against current status. A lost
	// race between the two engagement parties surfaces as this error.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound means the referenced job, application or conversation
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means the store or transport failed; the calling
	// layer may retry with backoff.
	ErrUnavailable = errors.New("store unavailable")
)

// ValidationError describes malformed caller input (rating, review, message
// content). It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Canonical rating validation failures.
var (
	ErrRatingRequired = &ValidationError{Field: "score", Reason: "rating is required and must be an integer between 1 and 5"}
	ErrReviewTooShort = &ValidationError{Field: "review", Reason: "review must be at least 10 characters after trimming"}
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
