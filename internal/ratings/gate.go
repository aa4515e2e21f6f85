// Package ratings owns the post-completion mandatory-rating obligation. The
// pending queue is a derived view over job and rating state, recomputed from
// the store on every consultation; nothing here caches the answer.
package ratings

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"log/slog"

	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

// MinReviewLen is the minimum review length in characters after trimming.
const MinReviewLen = 10

// fetchAttempts bounds re-fetch retries when the store is unavailable.
const fetchAttempts = 3

type Gate struct {
	jobs    repository.JobRepo
	apps    repository.ApplicationRepo
	ratings repository.RatingRepo
	logger  *slog.Logger
}

func New(jobs repository.JobRepo, apps repository.ApplicationRepo, ratings repository.RatingRepo, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{jobs: jobs, apps: apps, ratings: ratings, logger: logger}
}

// PendingObligations lists the user's unresolved rating obligations, FIFO by
// job completion time. The UI presents them strictly in this order.
func (g *Gate) PendingObligations(ctx context.Context, userID int64) ([]models.Obligation, error) {
	var out []models.Obligation
	err := engage.Retry(ctx, fetchAttempts, func(ctx context.Context) error {
		var ferr error
		out, ferr = g.ratings.PendingObligations(ctx, userID)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BlocksUsage is the global precondition: true while any obligation is
// unresolved. It always consults the store; when the store cannot answer
// after bounded retries, the gate fails closed rather than report a stale
// "unblocked" from missing data.
func (g *Gate) BlocksUsage(ctx context.Context, userID int64) (bool, error) {
	obs, err := g.PendingObligations(ctx, userID)
	if err != nil {
		return true, err
	}
	return len(obs) > 0, nil
}

// Submit validates and persists the caller's rating for a completed job,
// discharging exactly that obligation. The counterpart's obligation is
// independent and unaffected.
func (g *Gate) Submit(ctx context.Context, actor engage.Actor, jobID int64, score int, review string) (*models.Rating, error) {
	if score == 0 {
		return nil, engage.ErrRatingRequired
	}
	if score < 1 || score > 5 {
		return nil, engage.ErrRatingRequired
	}
	review = strings.TrimSpace(review)
	// characters, not bytes: a multibyte review counts by runes
	if utf8.RuneCountInString(review) < MinReviewLen {
		return nil, engage.ErrReviewTooShort
	}

	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	if job.Status != models.JobCompleted {
		return nil, fmt.Errorf("job %d is %s, ratings require completion: %w", jobID, job.Status, engage.ErrInvalidState)
	}
	if job.AcceptedApplicationID == nil {
		return nil, fmt.Errorf("job %d has no engagement: %w", jobID, engage.ErrInvalidState)
	}

	app, err := g.apps.GetApplication(ctx, *job.AcceptedApplicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("accepted application %d: %w", *job.AcceptedApplicationID, engage.ErrNotFound)
	}

	var rateeID int64
	switch actor.ID {
	case job.EmployerID:
		rateeID = app.ApplicantID
	case app.ApplicantID:
		rateeID = job.EmployerID
	default:
		return nil, fmt.Errorf("not an engagement party: %w", engage.ErrUnauthorized)
	}

	rating := &models.Rating{JobID: jobID, RaterID: actor.ID, RateeID: rateeID, Score: score, Review: review}
	// UNIQUE(job_id, rater_id) makes a duplicate submission lose here.
	id, err := g.ratings.CreateRating(ctx, rating)
	if err != nil {
		return nil, err
	}
	rating.ID = id
	return rating, nil
}
