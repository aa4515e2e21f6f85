package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

// Repo is an in-memory implementation of the repository interfaces with the
// same conditional-write semantics as the store. Tests inject failures
// through the Err fields.
type Repo struct {
	mu sync.Mutex

	users         map[int64]*models.User
	jobs          map[int64]*models.Job
	applications  map[int64]*models.Application
	ratings       map[int64]*models.Rating
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.Message
	blocks        map[[2]int64]bool
	reports       map[int64]*models.Report
	tasks         []*models.Task
	nextID        int64

	// Err, when set, is returned by every call. ErrOnce is returned by the
	// next call only and then cleared.
	Err     error
	ErrOnce error
}

var (
	_ repository.UserRepo         = (*Repo)(nil)
	_ repository.JobRepo          = (*Repo)(nil)
	_ repository.ApplicationRepo  = (*Repo)(nil)
	_ repository.RatingRepo       = (*Repo)(nil)
	_ repository.ConversationRepo = (*Repo)(nil)
	_ repository.MessageRepo      = (*Repo)(nil)
	_ repository.BlockRepo        = (*Repo)(nil)
	_ repository.TaskRepo         = (*Repo)(nil)
)

func NewRepo() *Repo {
	return &Repo{
		users:         make(map[int64]*models.User),
		jobs:          make(map[int64]*models.Job),
		applications:  make(map[int64]*models.Application),
		ratings:       make(map[int64]*models.Rating),
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.Message),
		blocks:        make(map[[2]int64]bool),
		reports:       make(map[int64]*models.Report),
	}
}

func (m *Repo) fail() error {
	if m.ErrOnce != nil {
		err := m.ErrOnce
		m.ErrOnce = nil
		return err
	}
	return m.Err
}

func (m *Repo) id() int64 {
	m.nextID++
	return m.nextID
}

// SeedUser inserts a user and returns it, for test setup.
func (m *Repo) SeedUser(name string, role models.Role) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: m.id(), Name: name, Email: name + "@example.com", Phone: "555-0100", Role: role, Created: time.Now().Unix()}
	m.users[u.ID] = u
	return u
}

// SeedJob inserts an open job owned by employerID.
func (m *Repo) SeedJob(employerID int64, title string) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &models.Job{
		ID:           m.id(),
		EmployerID:   employerID,
		Title:        title,
		Category:     "general",
		SalaryPeriod: "hour",
		Status:       models.JobOpen,
		PostedAt:     time.Now().Unix(),
	}
	m.jobs[j.ID] = j
	return j
}

// --- UserRepo ---

func (m *Repo) CreateUser(_ context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	for _, e := range m.users {
		if e.Email == u.Email {
			return 0, engage.ErrInvalidState
		}
	}
	cp := *u
	cp.ID = m.id()
	m.users[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Repo) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *Repo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- JobRepo ---

func (m *Repo) CreateJob(_ context.Context, j *models.Job) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	cp := *j
	cp.ID = m.id()
	if cp.PostedAt == 0 {
		cp.PostedAt = time.Now().Unix()
	}
	m.jobs[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Repo) GetJob(_ context.Context, id int64) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *Repo) ListJobs(_ context.Context, f repository.JobFilter) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Job
	for _, j := range m.jobs {
		if matchJob(j, f) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (m *Repo) CountJobs(_ context.Context, f repository.JobFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	var n int64
	for _, j := range m.jobs {
		if matchJob(j, f) {
			n++
		}
	}
	return n, nil
}

func matchJob(j *models.Job, f repository.JobFilter) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Category != "" && j.Category != f.Category {
		return false
	}
	if f.Urgent != nil && j.Urgent != *f.Urgent {
		return false
	}
	return true
}

func (m *Repo) TransitionJob(_ context.Context, id int64, from []models.JobStatus, to models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return engage.ErrNotFound
	}
	for _, s := range from {
		if j.Status == s {
			j.Status = to
			return nil
		}
	}
	return engage.ErrInvalidState
}

func (m *Repo) AcceptJob(_ context.Context, id, applicationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return engage.ErrNotFound
	}
	if j.Status != models.JobOpen && j.Status != models.JobApplied {
		return engage.ErrInvalidState
	}
	now := time.Now().Unix()
	j.Status = models.JobAccepted
	j.AcceptedApplicationID = &applicationID
	j.AcceptedAt = &now
	return nil
}

func (m *Repo) CompleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return engage.ErrNotFound
	}
	if j.Status != models.JobAccepted && j.Status != models.JobInProgress {
		return engage.ErrInvalidState
	}
	now := time.Now().Unix()
	j.Status = models.JobCompleted
	j.CompletedAt = &now
	return nil
}

func (m *Repo) RevertToOpen(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return engage.ErrNotFound
	}
	if j.Status != models.JobApplied {
		return engage.ErrInvalidState
	}
	j.Status = models.JobOpen
	return nil
}

func (m *Repo) MarkPhoneShared(_ context.Context, id int64, byEmployer bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return engage.ErrNotFound
	}
	if j.Status != models.JobAccepted {
		return engage.ErrInvalidState
	}
	if byEmployer {
		if j.PhoneSharedByEmployer {
			return engage.ErrInvalidState
		}
		j.PhoneSharedByEmployer = true
	} else {
		if j.PhoneSharedByWorker {
			return engage.ErrInvalidState
		}
		j.PhoneSharedByWorker = true
	}
	return nil
}

// --- ApplicationRepo ---

func (m *Repo) CreateApplication(_ context.Context, a *models.Application) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	// the insert is conditional on job status, mirroring the store
	j, ok := m.jobs[a.JobID]
	if !ok || (j.Status != models.JobOpen && j.Status != models.JobApplied) {
		return 0, engage.ErrInvalidState
	}
	for _, e := range m.applications {
		if e.JobID == a.JobID && e.ApplicantID == a.ApplicantID && e.Active() {
			return 0, engage.ErrInvalidState
		}
	}
	cp := *a
	cp.ID = m.id()
	if cp.AppliedAt == 0 {
		cp.AppliedAt = time.Now().Unix()
	}
	m.applications[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Repo) GetApplication(_ context.Context, id int64) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	a, ok := m.applications[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *Repo) ListByJob(_ context.Context, jobID int64) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Application
	for _, a := range m.applications {
		if a.JobID == jobID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *Repo) ListByApplicant(_ context.Context, applicantID int64, limit, offset int) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Application
	for _, a := range m.applications {
		if a.ApplicantID == applicantID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return page(out, limit, offset), nil
}

func (m *Repo) TransitionApplication(_ context.Context, id int64, from []models.ApplicationStatus, to models.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	a, ok := m.applications[id]
	if !ok {
		return engage.ErrNotFound
	}
	for _, s := range from {
		if a.Status == s {
			a.Status = to
			return nil
		}
	}
	return engage.ErrInvalidState
}

func (m *Repo) CountActive(_ context.Context, jobID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	var n int64
	for _, a := range m.applications {
		if a.JobID == jobID && a.Active() {
			n++
		}
	}
	return n, nil
}

// --- RatingRepo ---

func (m *Repo) CreateRating(_ context.Context, r *models.Rating) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	for _, e := range m.ratings {
		if e.JobID == r.JobID && e.RaterID == r.RaterID {
			return 0, engage.ErrInvalidState
		}
	}
	cp := *r
	cp.ID = m.id()
	if cp.Created == 0 {
		cp.Created = time.Now().Unix()
	}
	m.ratings[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Repo) GetRating(_ context.Context, jobID, raterID int64) (*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	for _, r := range m.ratings {
		if r.JobID == jobID && r.RaterID == raterID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Repo) ListByRatee(_ context.Context, rateeID int64, limit, offset int) ([]models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Rating
	for _, r := range m.ratings {
		if r.RateeID == rateeID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return page(out, limit, offset), nil
}

func (m *Repo) PendingObligations(_ context.Context, userID int64) ([]models.Obligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Obligation
	for _, j := range m.jobs {
		if j.Status != models.JobCompleted || j.AcceptedApplicationID == nil {
			continue
		}
		app, ok := m.applications[*j.AcceptedApplicationID]
		if !ok {
			continue
		}
		var counterpart int64
		switch userID {
		case j.EmployerID:
			counterpart = app.ApplicantID
		case app.ApplicantID:
			counterpart = j.EmployerID
		default:
			continue
		}
		rated := false
		for _, r := range m.ratings {
			if r.JobID == j.ID && r.RaterID == userID {
				rated = true
				break
			}
		}
		if rated {
			continue
		}
		var at int64
		if j.CompletedAt != nil {
			at = *j.CompletedAt
		}
		out = append(out, models.Obligation{Job: *j, CounterpartID: counterpart, CompletedAt: at})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CompletedAt != out[k].CompletedAt {
			return out[i].CompletedAt < out[k].CompletedAt
		}
		return out[i].Job.ID < out[k].Job.ID
	})
	return out, nil
}

// --- ConversationRepo ---

func (m *Repo) EnsureConversation(_ context.Context, lo, hi, jobID int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return nil, engage.ErrInvalidState
	}
	for _, c := range m.conversations {
		if c.ParticipantLo == lo && c.ParticipantHi == hi && c.JobID == jobID {
			cp := *c
			return &cp, nil
		}
	}
	c := &models.Conversation{ID: m.id(), ParticipantLo: lo, ParticipantHi: hi, JobID: jobID}
	m.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *Repo) GetConversation(_ context.Context, id int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	c, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *Repo) ListByParticipant(_ context.Context, userID int64, limit, offset int) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		li, lk := int64(0), int64(0)
		if out[i].LastMessageAt != nil {
			li = *out[i].LastMessageAt
		}
		if out[k].LastMessageAt != nil {
			lk = *out[k].LastMessageAt
		}
		if li != lk {
			return li > lk
		}
		return out[i].ID > out[k].ID
	})
	return page(out, limit, offset), nil
}

func (m *Repo) TouchLastMessage(_ context.Context, id, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	c, ok := m.conversations[id]
	if !ok {
		return engage.ErrNotFound
	}
	c.LastMessageAt = &at
	return nil
}

// --- MessageRepo ---

func (m *Repo) CreateMessage(_ context.Context, msg *models.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	cp := *msg
	cp.ID = m.id()
	if cp.Created == 0 {
		cp.Created = time.Now().Unix()
	}
	m.messages[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Repo) ListByConversation(_ context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return page(out, limit, offset), nil
}

func (m *Repo) MarkRead(_ context.Context, conversationID, readerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.SenderID != readerID {
			msg.Read = true
		}
	}
	return nil
}

// --- BlockRepo ---

func (m *Repo) CreateBlock(_ context.Context, ownerID, blockedID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if ownerID == blockedID {
		return engage.ErrInvalidState
	}
	m.blocks[[2]int64{ownerID, blockedID}] = true
	return nil
}

func (m *Repo) DeleteBlock(_ context.Context, ownerID, blockedID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.blocks, [2]int64{ownerID, blockedID})
	return nil
}

func (m *Repo) Blocked(_ context.Context, a, b int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	return m.blocks[[2]int64{a, b}] || m.blocks[[2]int64{b, a}], nil
}

func (m *Repo) CreateReport(_ context.Context, r *models.Report) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	cp := *r
	cp.ID = m.id()
	if cp.Created == 0 {
		cp.Created = time.Now().Unix()
	}
	m.reports[cp.ID] = &cp
	return cp.ID, nil
}

// Reports returns every report recorded so far.
func (m *Repo) Reports() []models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Messages returns every message across all conversations, oldest first.
func (m *Repo) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, *msg)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// --- TaskRepo ---

func (m *Repo) Enqueue(_ context.Context, t *models.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	cp := *t
	cp.ID = m.id()
	cp.Status = "pending"
	cp.Created = time.Now()
	cp.Updated = cp.Created
	m.tasks = append(m.tasks, &cp)
	return cp.ID, nil
}

func (m *Repo) FetchNext(_ context.Context) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	now := time.Now()
	for _, t := range m.tasks {
		ready := t.Status == "pending" || (t.Status == "retry" && t.NextTryAt != nil && !t.NextTryAt.After(now))
		if !ready {
			continue
		}
		t.Status = "running"
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *Repo) UpdateTask(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	for i, e := range m.tasks {
		if e.ID == t.ID {
			cp := *t
			cp.Updated = time.Now()
			m.tasks[i] = &cp
			return nil
		}
	}
	return engage.ErrNotFound
}

func (m *Repo) MoveToDeadLetter(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	for i, e := range m.tasks {
		if e.ID == t.ID {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

// Tasks returns a snapshot of the queue.
func (m *Repo) Tasks() []models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
