package models

import (
	"encoding/json"
	"time"
)

// Role is the marketplace-side identity of a user.
type Role string

const (
	RoleEmployer Role = "employer"
	RoleWorker   Role = "worker"
	RoleAdmin    Role = "admin"
)

// SystemSenderID is the reserved sender id for engine-generated messages.
// No user row ever gets id 0.
const SystemSenderID int64 = 0

type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobApplied    JobStatus = "applied"
	JobAccepted   JobStatus = "accepted"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

type MessageKind string

const (
	MessageUser         MessageKind = "user"
	MessageSystem       MessageKind = "system"
	MessageNumberShared MessageKind = "number_shared"
)

type User struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	Phone        string `json:"phone,omitempty" db:"phone"`
	Role         Role   `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
	Created      int64  `json:"created" db:"created"`
}

type Job struct {
	ID           int64     `json:"id" db:"id"`
	EmployerID   int64     `json:"employer_id" db:"employer_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description,omitempty" db:"description"`
	Category     string    `json:"category" db:"category"`
	Subcategory  string    `json:"subcategory,omitempty" db:"subcategory"`
	Location     string    `json:"location" db:"location"`
	SalaryMin    int64     `json:"salary_min" db:"salary_min"`
	SalaryMax    int64     `json:"salary_max" db:"salary_max"`
	SalaryPeriod string    `json:"salary_period" db:"salary_period"`
	Urgent       bool      `json:"urgent" db:"urgent"`
	Status       JobStatus `json:"status" db:"status"`

	// AcceptedApplicationID is set when the job reaches accepted and
	// identifies the engagement's worker side.
	AcceptedApplicationID *int64 `json:"accepted_application_id,omitempty" db:"accepted_application_id"`

	PhoneSharedByEmployer bool `json:"phone_shared_by_employer" db:"phone_shared_by_employer"`
	PhoneSharedByWorker   bool `json:"phone_shared_by_worker" db:"phone_shared_by_worker"`

	PostedAt    int64  `json:"posted_at" db:"posted_at"`
	AcceptedAt  *int64 `json:"accepted_at,omitempty" db:"accepted_at"`
	CompletedAt *int64 `json:"completed_at,omitempty" db:"completed_at"`
}

// Terminal reports whether no further lifecycle transition is legal.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobCancelled
}

type Application struct {
	ID          int64             `json:"id" db:"id"`
	JobID       int64             `json:"job_id" db:"job_id"`
	ApplicantID int64             `json:"applicant_id" db:"applicant_id"`
	Status      ApplicationStatus `json:"status" db:"status"`
	Note        string            `json:"note,omitempty" db:"note"`
	AppliedAt   int64             `json:"applied_at" db:"applied_at"`
}

// Active reports whether the application still counts against the
// one-active-application-per-job rule.
func (a *Application) Active() bool {
	return a.Status == ApplicationPending || a.Status == ApplicationAccepted
}

// Conversation pairs two users, optionally bound to a job. ParticipantLo and
// ParticipantHi hold the pair in ascending id order so the pairing key is
// order-independent. JobID 0 means the thread is not tied to a job.
type Conversation struct {
	ID            int64  `json:"id" db:"id"`
	ParticipantLo int64  `json:"participant_lo" db:"participant_lo"`
	ParticipantHi int64  `json:"participant_hi" db:"participant_hi"`
	JobID         int64  `json:"job_id,omitempty" db:"job_id"`
	LastMessageAt *int64 `json:"last_message_at,omitempty" db:"last_message_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantLo == userID || c.ParticipantHi == userID
}

// Counterpart returns the other participant. Callers must have checked
// HasParticipant first.
func (c *Conversation) Counterpart(userID int64) int64 {
	if c.ParticipantLo == userID {
		return c.ParticipantHi
	}
	return c.ParticipantLo
}

type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversation_id" db:"conversation_id"`
	SenderID       int64       `json:"sender_id" db:"sender_id"`
	Content        string      `json:"content" db:"content"`
	Kind           MessageKind `json:"kind" db:"kind"`
	Created        int64       `json:"created" db:"created"`
	Read           bool        `json:"read" db:"read"`
}

type Rating struct {
	ID      int64  `json:"id" db:"id"`
	JobID   int64  `json:"job_id" db:"job_id"`
	RaterID int64  `json:"rater_id" db:"rater_id"`
	RateeID int64  `json:"ratee_id" db:"ratee_id"`
	Score   int    `json:"score" db:"score"`
	Review  string `json:"review" db:"review"`
	Created int64  `json:"created" db:"created"`
}

// Obligation is one entry of the derived pending-rating view: a completed job
// the user participated in whose outbound rating does not exist yet.
type Obligation struct {
	Job           Job   `json:"job"`
	CounterpartID int64 `json:"counterpart_id"`
	CompletedAt   int64 `json:"completed_at"`
}

type Block struct {
	ID        int64 `json:"id" db:"id"`
	OwnerID   int64 `json:"owner_id" db:"owner_id"`
	BlockedID int64 `json:"blocked_id" db:"blocked_id"`
	Created   int64 `json:"created" db:"created"`
}

type Report struct {
	ID         int64  `json:"id" db:"id"`
	ReporterID int64  `json:"reporter_id" db:"reporter_id"`
	ReportedID int64  `json:"reported_id" db:"reported_id"`
	Reason     string `json:"reason,omitempty" db:"reason"`
	Created    int64  `json:"created" db:"created"`
}

// Task is a queued background unit of work (notification fan-out).
type Task struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
