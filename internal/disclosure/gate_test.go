package disclosure_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shiftline/marketplace/internal/disclosure"
	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
	"github.com/shiftline/marketplace/pkg/repository/mock"
)

type fixture struct {
	gate     *disclosure.Gate
	repo     *mock.Repo
	employer *models.User
	worker   *models.User
	outsider *models.User
	job      *models.Job
}

// setup builds an accepted engagement between employer and worker.
func setup(t *testing.T) *fixture {
	t.Helper()
	repo := mock.NewRepo()
	med := mediator.New(repo, repo, repo, nil, nil)
	engine := lifecycle.New(repo, repo, med, nil, nil)
	gate := disclosure.New(repo, repo, repo, med, nil)

	ctx := context.Background()
	employer := repo.SeedUser("erin", models.RoleEmployer)
	worker := repo.SeedUser("wes", models.RoleWorker)
	outsider := repo.SeedUser("oz", models.RoleWorker)
	job := repo.SeedJob(employer.ID, "Repair the roof")

	app, err := engine.Apply(ctx, engage.Actor{ID: worker.ID, Role: worker.Role}, job.ID, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := engine.Accept(ctx, engage.Actor{ID: employer.ID, Role: employer.Role}, job.ID, app.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	return &fixture{gate: gate, repo: repo, employer: employer, worker: worker, outsider: outsider, job: job}
}

func actor(u *models.User) engage.Actor {
	return engage.Actor{ID: u.ID, Role: u.Role}
}

func TestMutualConsentUnlocksCalling(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// nothing shared yet
	can, err := f.gate.CanCall(ctx, actor(f.employer), f.job.ID)
	if err != nil {
		t.Fatalf("can-call: %v", err)
	}
	if can {
		t.Fatal("calling unlocked before any disclosure")
	}

	if err := f.gate.Share(ctx, actor(f.employer), f.job.ID); err != nil {
		t.Fatalf("employer share: %v", err)
	}

	// one-sided disclosure keeps calling locked for both parties
	for _, u := range []*models.User{f.employer, f.worker} {
		can, err := f.gate.CanCall(ctx, actor(u), f.job.ID)
		if err != nil {
			t.Fatalf("can-call for %s: %v", u.Name, err)
		}
		if can {
			t.Fatalf("calling unlocked for %s after one-sided share", u.Name)
		}
	}

	if err := f.gate.Share(ctx, actor(f.worker), f.job.ID); err != nil {
		t.Fatalf("worker share: %v", err)
	}

	for _, u := range []*models.User{f.employer, f.worker} {
		can, err := f.gate.CanCall(ctx, actor(u), f.job.ID)
		if err != nil {
			t.Fatalf("can-call for %s: %v", u.Name, err)
		}
		if !can {
			t.Fatalf("calling still locked for %s after mutual share", u.Name)
		}
	}
}

func TestRepeatShareRefused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.gate.Share(ctx, actor(f.employer), f.job.ID); err != nil {
		t.Fatalf("first share: %v", err)
	}
	if err := f.gate.Share(ctx, actor(f.employer), f.job.ID); !errors.Is(err, engage.ErrInvalidState) {
		t.Fatalf("repeat share err = %v, want ErrInvalidState", err)
	}

	// exactly one number_shared message was appended
	var shared int
	for _, msg := range f.repo.Messages() {
		if msg.Kind == models.MessageNumberShared {
			shared++
		}
	}
	if shared != 1 {
		t.Fatalf("number_shared messages = %d, want 1", shared)
	}
}

func TestShareRecordsNumberInConversation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.gate.Share(ctx, actor(f.worker), f.job.ID); err != nil {
		t.Fatalf("share: %v", err)
	}

	var found bool
	for _, msg := range f.repo.Messages() {
		if msg.Kind != models.MessageNumberShared {
			continue
		}
		found = true
		if msg.SenderID != models.SystemSenderID {
			t.Fatalf("number_shared sender = %d, want system", msg.SenderID)
		}
		if !strings.Contains(msg.Content, f.worker.Name) || !strings.Contains(msg.Content, f.worker.Phone) {
			t.Fatalf("number_shared content %q missing name or phone", msg.Content)
		}
	}
	if !found {
		t.Fatal("no number_shared message recorded")
	}
}

func TestShareGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.gate.Share(ctx, actor(f.outsider), f.job.ID); !errors.Is(err, engage.ErrUnauthorized) {
		t.Fatalf("outsider share err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.gate.CanCall(ctx, actor(f.outsider), f.job.ID); !errors.Is(err, engage.ErrUnauthorized) {
		t.Fatalf("outsider can-call err = %v, want ErrUnauthorized", err)
	}
	if err := f.gate.Share(ctx, actor(f.employer), 9999); !errors.Is(err, engage.ErrNotFound) {
		t.Fatalf("share on missing job err = %v, want ErrNotFound", err)
	}
}

// flakyConvStore fails EnsureConversation a fixed number of times before
// delegating, to exercise the audit-append retry.
type flakyConvStore struct {
	repository.ConversationRepo
	failures int
}

func (f *flakyConvStore) EnsureConversation(ctx context.Context, a, b, jobID int64) (*models.Conversation, error) {
	if f.failures > 0 {
		f.failures--
		return nil, engage.ErrUnavailable
	}
	return f.ConversationRepo.EnsureConversation(ctx, a, b, jobID)
}

// acceptedEngagement drives a fresh job to accepted on the given repo.
func acceptedEngagement(t *testing.T, repo *mock.Repo) (*models.User, *models.User, *models.Job) {
	t.Helper()
	ctx := context.Background()
	med := mediator.New(repo, repo, repo, nil, nil)
	engine := lifecycle.New(repo, repo, med, nil, nil)

	employer := repo.SeedUser("erin", models.RoleEmployer)
	worker := repo.SeedUser("wes", models.RoleWorker)
	job := repo.SeedJob(employer.ID, "Repair the roof")

	app, err := engine.Apply(ctx, actor(worker), job.ID, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := engine.Accept(ctx, actor(employer), job.ID, app.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return employer, worker, job
}

func TestShareRetriesTransientAppendFailure(t *testing.T) {
	repo := mock.NewRepo()
	ctx := context.Background()
	_, worker, job := acceptedEngagement(t, repo)

	flaky := &flakyConvStore{ConversationRepo: repo, failures: 1}
	med := mediator.New(flaky, repo, repo, nil, nil)
	gate := disclosure.New(repo, repo, repo, med, nil)

	if err := gate.Share(ctx, actor(worker), job.ID); err != nil {
		t.Fatalf("share with transient store failure: %v", err)
	}

	var shared int
	for _, msg := range repo.Messages() {
		if msg.Kind == models.MessageNumberShared {
			shared++
		}
	}
	if shared != 1 {
		t.Fatalf("number_shared messages = %d, want 1", shared)
	}
}

func TestShareSurfacesLostAuditMessage(t *testing.T) {
	repo := mock.NewRepo()
	ctx := context.Background()
	employer, _, job := acceptedEngagement(t, repo)

	flaky := &flakyConvStore{ConversationRepo: repo, failures: 10}
	med := mediator.New(flaky, repo, repo, nil, nil)
	gate := disclosure.New(repo, repo, repo, med, nil)

	if err := gate.Share(ctx, actor(employer), job.ID); !errors.Is(err, engage.ErrUnavailable) {
		t.Fatalf("share with store down err = %v, want ErrUnavailable", err)
	}

	// the flag commit survives the lost append, so consent state is intact
	// and a repeat share reports the committed flag
	got, _ := repo.GetJob(ctx, job.ID)
	if !got.PhoneSharedByEmployer {
		t.Fatal("phone_shared flag lost with the failed append")
	}
	if err := gate.Share(ctx, actor(employer), job.ID); !errors.Is(err, engage.ErrInvalidState) {
		t.Fatalf("repeat share err = %v, want ErrInvalidState", err)
	}
}

func TestShareRequiresAcceptedEngagement(t *testing.T) {
	repo := mock.NewRepo()
	med := mediator.New(repo, repo, repo, nil, nil)
	gate := disclosure.New(repo, repo, repo, med, nil)
	ctx := context.Background()

	employer := repo.SeedUser("erin", models.RoleEmployer)
	job := repo.SeedJob(employer.ID, "Open job, nobody accepted")

	if err := gate.Share(ctx, actor(employer), job.ID); !errors.Is(err, engage.ErrInvalidState) {
		t.Fatalf("share without engagement err = %v, want ErrInvalidState", err)
	}
}
