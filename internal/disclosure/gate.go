// Package disclosure owns the phone-number-sharing protocol layered on an
// accepted engagement. Numbers are private by default; each party shares
// their own number explicitly, and calling unlocks only on mutual consent.
package disclosure

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type Gate struct {
	jobs   repository.JobRepo
	apps   repository.ApplicationRepo
	users  repository.UserRepo
	med    *mediator.Mediator
	logger *slog.Logger
}

func New(jobs repository.JobRepo, apps repository.ApplicationRepo, users repository.UserRepo, med *mediator.Mediator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{jobs: jobs, apps: apps, users: users, med: med, logger: logger}
}

// appendAttempts bounds retries of the number_shared append when the store
// is unavailable.
const appendAttempts = 3

// Share discloses the caller's own number into the engagement conversation.
// Guard: job accepted, caller is a party, caller has not shared yet. The
// flag update is a conditional write, so a repeat share loses with
// ErrInvalidState. The number_shared message is the persisted record of the
// disclosure, appended after the flag commit is acknowledged; a store
// failure there is retried and then surfaced rather than dropped.
func (g *Gate) Share(ctx context.Context, actor engage.Actor, jobID int64) error {
	job, workerID, err := g.loadEngagement(ctx, jobID)
	if err != nil {
		return err
	}
	if actor.ID != job.EmployerID && actor.ID != workerID {
		return fmt.Errorf("not an engagement party: %w", engage.ErrUnauthorized)
	}

	caller, err := g.users.GetUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if caller == nil {
		return fmt.Errorf("user %d: %w", actor.ID, engage.ErrNotFound)
	}

	byEmployer := actor.ID == job.EmployerID
	if err := g.jobs.MarkPhoneShared(ctx, jobID, byEmployer); err != nil {
		return err
	}

	err = engage.Retry(ctx, appendAttempts, func(ctx context.Context) error {
		conv, cerr := g.med.EnsureConversation(ctx, job.EmployerID, workerID, jobID)
		if cerr != nil {
			return cerr
		}
		return g.med.PostNumberShared(ctx, conv, mediator.NumberSharedData{Name: caller.Name, Phone: caller.Phone, JobID: jobID})
	})
	if err != nil {
		g.logger.Error("record number_shared message", "job_id", jobID, "err", err)
	}
	return err
}

// CanCall reports whether voice-calling is permitted: true iff both sides
// shared. One-sided disclosure never unlocks calling.
func (g *Gate) CanCall(ctx context.Context, actor engage.Actor, jobID int64) (bool, error) {
	job, workerID, err := g.loadEngagement(ctx, jobID)
	if err != nil {
		return false, err
	}
	if actor.ID != job.EmployerID && actor.ID != workerID {
		return false, fmt.Errorf("not an engagement party: %w", engage.ErrUnauthorized)
	}
	return job.PhoneSharedByEmployer && job.PhoneSharedByWorker, nil
}

func (g *Gate) loadEngagement(ctx context.Context, jobID int64) (*models.Job, int64, error) {
	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if job == nil {
		return nil, 0, fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	if job.AcceptedApplicationID == nil {
		return nil, 0, fmt.Errorf("job %d has no accepted application: %w", jobID, engage.ErrInvalidState)
	}
	app, err := g.apps.GetApplication(ctx, *job.AcceptedApplicationID)
	if err != nil {
		return nil, 0, err
	}
	if app == nil {
		return nil, 0, fmt.Errorf("accepted application %d: %w", *job.AcceptedApplicationID, engage.ErrNotFound)
	}
	return job, app.ApplicantID, nil
}
