package repository

import (
	"context"

	"github.com/shiftline/marketplace/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Status-changing methods take the expected current statuses and commit with
// a single conditional write: when no row matches, they return
// engage.ErrInvalidState (or engage.ErrNotFound when the row is missing
// entirely), never silently succeed.

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	Status   models.JobStatus
	Category string
	Urgent   *bool
	Limit    int
	Offset   int
}

type JobRepo interface {
	CreateJob(ctx context.Context, j *models.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]models.Job, error)
	CountJobs(ctx context.Context, f JobFilter) (int64, error)

	// TransitionJob moves the job from one of the expected statuses to the
	// target status in a single conditional write.
	TransitionJob(ctx context.Context, id int64, from []models.JobStatus, to models.JobStatus) error

	// AcceptJob commits the accept side of an engagement: status moves to
	// accepted, the winning application id and accepted_at are recorded.
	// Legal from open or applied only.
	AcceptJob(ctx context.Context, id, applicationID int64) error

	// CompleteJob moves the job to completed and stamps completed_at.
	// Legal from accepted or in_progress.
	CompleteJob(ctx context.Context, id int64) error

	// RevertToOpen moves an applied job back to open after the last active
	// application went away.
	RevertToOpen(ctx context.Context, id int64) error

	// MarkPhoneShared sets the caller side's disclosure flag, only while
	// the job is accepted and the flag is still clear.
	MarkPhoneShared(ctx context.Context, id int64, byEmployer bool) error
}

type ApplicationRepo interface {
	// CreateApplication inserts a pending application. A second active
	// application by the same applicant on the same job violates a unique
	// index and surfaces engage.ErrInvalidState.
	CreateApplication(ctx context.Context, a *models.Application) (int64, error)
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	ListByJob(ctx context.Context, jobID int64) ([]models.Application, error)
	ListByApplicant(ctx context.Context, applicantID int64, limit, offset int) ([]models.Application, error)

	TransitionApplication(ctx context.Context, id int64, from []models.ApplicationStatus, to models.ApplicationStatus) error

	// CountActive counts pending+accepted applications on a job.
	CountActive(ctx context.Context, jobID int64) (int64, error)
}

type RatingRepo interface {
	// CreateRating inserts the rating; a duplicate (job, rater) violates a
	// unique index and surfaces engage.ErrInvalidState.
	CreateRating(ctx context.Context, r *models.Rating) (int64, error)
	GetRating(ctx context.Context, jobID, raterID int64) (*models.Rating, error)
	ListByRatee(ctx context.Context, rateeID int64, limit, offset int) ([]models.Rating, error)

	// PendingObligations is the derived view: completed jobs the user
	// participated in without their outbound rating, FIFO by completion.
	PendingObligations(ctx context.Context, userID int64) ([]models.Obligation, error)
}

type ConversationRepo interface {
	// EnsureConversation looks up or creates the thread for the ordered
	// pair plus job, never creating a duplicate.
	EnsureConversation(ctx context.Context, lo, hi, jobID int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListByParticipant(ctx context.Context, userID int64, limit, offset int) ([]models.Conversation, error)
	TouchLastMessage(ctx context.Context, id, at int64) error
}

type MessageRepo interface {
	CreateMessage(ctx context.Context, m *models.Message) (int64, error)
	ListByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)

	// MarkRead flags every message in the conversation not sent by
	// readerID as read.
	MarkRead(ctx context.Context, conversationID, readerID int64) error
}

type BlockRepo interface {
	CreateBlock(ctx context.Context, ownerID, blockedID int64) error
	DeleteBlock(ctx context.Context, ownerID, blockedID int64) error
	// Blocked reports whether either side blocks the other.
	Blocked(ctx context.Context, a, b int64) (bool, error)
	CreateReport(ctx context.Context, r *models.Report) (int64, error)
}

type TaskRepo interface {
	Enqueue(ctx context.Context, t *models.Task) (int64, error)
	FetchNext(ctx context.Context) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	MoveToDeadLetter(ctx context.Context, t *models.Task) error
}
