// Package lifecycle owns the job/application state machine. Every transition
// validates role and current state, commits through a single conditional
// write, and only then fans out its system message and notification.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/internal/notify"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

type Engine struct {
	jobs     repository.JobRepo
	apps     repository.ApplicationRepo
	med      *mediator.Mediator
	notifier *notify.Notifier
	logger   *slog.Logger
}

func New(jobs repository.JobRepo, apps repository.ApplicationRepo, med *mediator.Mediator, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{jobs: jobs, apps: apps, med: med, notifier: notifier, logger: logger}
}

// Apply creates a pending application on an open (or already applied) job.
// Other workers may keep applying until the employer accepts someone.
func (e *Engine) Apply(ctx context.Context, actor engage.Actor, jobID int64, note string) (*models.Application, error) {
	if actor.Role != models.RoleWorker {
		return nil, fmt.Errorf("only workers apply: %w", engage.ErrUnauthorized)
	}

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	if job.EmployerID == actor.ID {
		return nil, fmt.Errorf("cannot apply to own job: %w", engage.ErrUnauthorized)
	}
	if job.Status != models.JobOpen && job.Status != models.JobApplied {
		return nil, fmt.Errorf("job %d is %s: %w", jobID, job.Status, engage.ErrInvalidState)
	}

	app := &models.Application{JobID: jobID, ApplicantID: actor.ID, Status: models.ApplicationPending, Note: note}
	id, err := e.apps.CreateApplication(ctx, app)
	if err != nil {
		// the partial unique index reports a second active application
		return nil, err
	}
	app.ID = id

	// First applicant flips the job to applied; later applicants find it
	// there already, which is fine.
	if job.Status == models.JobOpen {
		if err := e.jobs.TransitionJob(ctx, jobID, []models.JobStatus{models.JobOpen}, models.JobApplied); err != nil {
			if !errors.Is(err, engage.ErrInvalidState) {
				return nil, err
			}
		}
	}

	e.notifier.Notify(ctx, notify.Push{UserID: job.EmployerID, Event: "job_applied", Title: "New application", Data: map[string]any{"job_id": jobID, "application_id": id}})
	return app, nil
}

// Accept commits the employer's choice of application. The conditional job
// update is the authoritative commit: of two racing accepts exactly one
// succeeds and the other observes ErrInvalidState.
func (e *Engine) Accept(ctx context.Context, actor engage.Actor, jobID, applicationID int64) error {
	job, app, err := e.loadPair(ctx, jobID, applicationID)
	if err != nil {
		return err
	}
	if job.EmployerID != actor.ID {
		return fmt.Errorf("only the job's employer accepts: %w", engage.ErrUnauthorized)
	}
	if app.Status != models.ApplicationPending {
		return fmt.Errorf("application %d is %s: %w", applicationID, app.Status, engage.ErrInvalidState)
	}

	// The application commits first so a racing withdraw loses its own
	// conditional write instead of landing between the two rows. The job
	// update stays the authoritative commit for competing accepts; losing
	// it restores the application to pending.
	if err := e.apps.TransitionApplication(ctx, applicationID, []models.ApplicationStatus{models.ApplicationPending}, models.ApplicationAccepted); err != nil {
		return err
	}
	if err := e.jobs.AcceptJob(ctx, jobID, applicationID); err != nil {
		if rerr := e.apps.TransitionApplication(ctx, applicationID, []models.ApplicationStatus{models.ApplicationAccepted}, models.ApplicationPending); rerr != nil {
			e.logger.Error("restore application after lost accept", "application_id", applicationID, "err", rerr)
		}
		return err
	}

	// Siblings stay pending on purpose: the employer decides their fate
	// explicitly.

	conv, err := e.med.EnsureConversation(ctx, job.EmployerID, app.ApplicantID, jobID)
	if err != nil {
		e.logger.Error("ensure conversation after accept", "job_id", jobID, "err", err)
	} else if err := e.med.PostSystemMessage(ctx, conv, mediator.TplJobAccepted, nil); err != nil {
		e.logger.Error("post accept message", "job_id", jobID, "err", err)
	}

	e.notifier.Notify(ctx, notify.Push{UserID: app.ApplicantID, Event: "job_accepted", Title: "You got the job", Data: map[string]any{"job_id": jobID}})
	return nil
}

// Reject declines a pending application. The job itself is untouched.
func (e *Engine) Reject(ctx context.Context, actor engage.Actor, jobID, applicationID int64) error {
	job, app, err := e.loadPair(ctx, jobID, applicationID)
	if err != nil {
		return err
	}
	if job.EmployerID != actor.ID {
		return fmt.Errorf("only the job's employer rejects: %w", engage.ErrUnauthorized)
	}
	if job.Terminal() {
		return fmt.Errorf("job %d is %s: %w", jobID, job.Status, engage.ErrInvalidState)
	}

	if err := e.apps.TransitionApplication(ctx, applicationID, []models.ApplicationStatus{models.ApplicationPending}, models.ApplicationRejected); err != nil {
		return err
	}

	e.notifier.Notify(ctx, notify.Push{UserID: app.ApplicantID, Event: "job_rejected", Title: "Application declined", Data: map[string]any{"job_id": jobID}})
	return nil
}

// Withdraw retracts the applicant's own pending application. Withdrawal
// after acceptance is refused: a stale screen acting on an accepted
// application loses with ErrInvalidState.
func (e *Engine) Withdraw(ctx context.Context, actor engage.Actor, applicationID int64) error {
	app, err := e.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("application %d: %w", applicationID, engage.ErrNotFound)
	}
	if app.ApplicantID != actor.ID {
		return fmt.Errorf("only the applicant withdraws: %w", engage.ErrUnauthorized)
	}

	if err := e.apps.TransitionApplication(ctx, applicationID, []models.ApplicationStatus{models.ApplicationPending}, models.ApplicationWithdrawn); err != nil {
		return err
	}

	// Last active application gone: the job goes back to open for others.
	active, err := e.apps.CountActive(ctx, app.JobID)
	if err != nil {
		return err
	}
	if active == 0 {
		if err := e.jobs.RevertToOpen(ctx, app.JobID); err != nil && !errors.Is(err, engage.ErrInvalidState) {
			return err
		}
	}
	return nil
}

// Start marks the accepted engagement as underway. Either party may do it.
func (e *Engine) Start(ctx context.Context, actor engage.Actor, jobID int64) error {
	job, workerID, err := e.loadEngagement(ctx, jobID)
	if err != nil {
		return err
	}
	if actor.ID != job.EmployerID && actor.ID != workerID {
		return fmt.Errorf("not an engagement party: %w", engage.ErrUnauthorized)
	}

	if err := e.jobs.TransitionJob(ctx, jobID, []models.JobStatus{models.JobAccepted}, models.JobInProgress); err != nil {
		return err
	}

	counterpart := workerID
	if actor.ID == workerID {
		counterpart = job.EmployerID
	}
	e.notifier.Notify(ctx, notify.Push{UserID: counterpart, Event: "job_started", Title: "Work started", Data: map[string]any{"job_id": jobID}})
	return nil
}

// Finish completes the job. Either engagement party may do it; both acquire
// a rating obligation by virtue of the job becoming completed. No separate
// write exists, the pending view derives from job and rating state.
func (e *Engine) Finish(ctx context.Context, actor engage.Actor, jobID int64) error {
	job, workerID, err := e.loadEngagement(ctx, jobID)
	if err != nil {
		return err
	}
	if actor.ID != job.EmployerID && actor.ID != workerID {
		return fmt.Errorf("not an engagement party: %w", engage.ErrUnauthorized)
	}

	if err := e.jobs.CompleteJob(ctx, jobID); err != nil {
		return err
	}

	conv, err := e.med.EnsureConversation(ctx, job.EmployerID, workerID, jobID)
	if err != nil {
		e.logger.Error("ensure conversation after finish", "job_id", jobID, "err", err)
	} else if err := e.med.PostSystemMessage(ctx, conv, mediator.TplJobCompleted, nil); err != nil {
		e.logger.Error("post completion message", "job_id", jobID, "err", err)
	}

	e.notifier.Notify(ctx, notify.Push{UserID: job.EmployerID, Event: "job_completed", Title: "Job completed, rating required", Data: map[string]any{"job_id": jobID}})
	e.notifier.Notify(ctx, notify.Push{UserID: workerID, Event: "job_completed", Title: "Job completed, rating required", Data: map[string]any{"job_id": jobID}})
	return nil
}

// Cancel soft-cancels the posting. Jobs referenced by applications are never
// deleted; cancelled is their terminal state. Completed jobs cannot be
// cancelled, and a second cancel reports ErrInvalidState.
func (e *Engine) Cancel(ctx context.Context, actor engage.Actor, jobID int64) error {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	if job.EmployerID != actor.ID {
		return fmt.Errorf("only the job's employer cancels: %w", engage.ErrUnauthorized)
	}

	from := []models.JobStatus{models.JobOpen, models.JobApplied, models.JobAccepted, models.JobInProgress}
	if err := e.jobs.TransitionJob(ctx, jobID, from, models.JobCancelled); err != nil {
		return err
	}

	// An engagement conversation only exists once someone was accepted.
	if job.AcceptedApplicationID != nil {
		if app, err := e.apps.GetApplication(ctx, *job.AcceptedApplicationID); err == nil && app != nil {
			conv, err := e.med.EnsureConversation(ctx, job.EmployerID, app.ApplicantID, jobID)
			if err != nil {
				e.logger.Error("ensure conversation after cancel", "job_id", jobID, "err", err)
			} else if err := e.med.PostSystemMessage(ctx, conv, mediator.TplJobCancelled, nil); err != nil {
				e.logger.Error("post cancel message", "job_id", jobID, "err", err)
			}
			e.notifier.Notify(ctx, notify.Push{UserID: app.ApplicantID, Event: "job_cancelled", Title: "Job cancelled", Data: map[string]any{"job_id": jobID}})
		}
	}
	return nil
}

// Participants resolves the two engagement parties of a job that has an
// accepted application.
func (e *Engine) Participants(ctx context.Context, jobID int64) (employerID, workerID int64, err error) {
	job, workerID, err := e.loadEngagement(ctx, jobID)
	if err != nil {
		return 0, 0, err
	}
	return job.EmployerID, workerID, nil
}

func (e *Engine) loadPair(ctx context.Context, jobID, applicationID int64) (*models.Job, *models.Application, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	app, err := e.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	if app == nil || app.JobID != jobID {
		return nil, nil, fmt.Errorf("application %d on job %d: %w", applicationID, jobID, engage.ErrNotFound)
	}
	return job, app, nil
}

func (e *Engine) loadEngagement(ctx context.Context, jobID int64) (*models.Job, int64, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if job == nil {
		return nil, 0, fmt.Errorf("job %d: %w", jobID, engage.ErrNotFound)
	}
	if job.AcceptedApplicationID == nil {
		return nil, 0, fmt.Errorf("job %d has no accepted application: %w", jobID, engage.ErrInvalidState)
	}
	app, err := e.apps.GetApplication(ctx, *job.AcceptedApplicationID)
	if err != nil {
		return nil, 0, err
	}
	if app == nil {
		return nil, 0, fmt.Errorf("accepted application %d: %w", *job.AcceptedApplicationID, engage.ErrNotFound)
	}
	return job, app.ApplicantID, nil
}
