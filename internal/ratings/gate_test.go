package ratings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/internal/ratings"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository/mock"
)

type fixture struct {
	gate     *ratings.Gate
	engine   *lifecycle.Engine
	repo     *mock.Repo
	employer *models.User
	worker   *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := mock.NewRepo()
	med := mediator.New(repo, repo, repo, nil, nil)
	return &fixture{
		gate:     ratings.New(repo, repo, repo, nil),
		engine:   lifecycle.New(repo, repo, med, nil, nil),
		repo:     repo,
		employer: repo.SeedUser("erin", models.RoleEmployer),
		worker:   repo.SeedUser("wes", models.RoleWorker),
	}
}

func actor(u *models.User) engage.Actor {
	return engage.Actor{ID: u.ID, Role: u.Role}
}

// completeJob drives a job through apply, accept, finish.
func (f *fixture) completeJob(t *testing.T, title string) *models.Job {
	t.Helper()
	ctx := context.Background()
	job := f.repo.SeedJob(f.employer.ID, title)
	app, err := f.engine.Apply(ctx, actor(f.worker), job.ID, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := f.engine.Accept(ctx, actor(f.employer), job.ID, app.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.engine.Finish(ctx, actor(f.employer), job.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return job
}

func TestCompletionCreatesBilateralObligations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	job := f.completeJob(t, "Paint the fence")

	for _, u := range []*models.User{f.employer, f.worker} {
		obs, err := f.gate.PendingObligations(ctx, u.ID)
		if err != nil {
			t.Fatalf("pending for %s: %v", u.Name, err)
		}
		if len(obs) != 1 {
			t.Fatalf("obligations for %s = %d, want 1", u.Name, len(obs))
		}
		if obs[0].Job.ID != job.ID {
			t.Fatalf("obligation job = %d, want %d", obs[0].Job.ID, job.ID)
		}
		blocked, err := f.gate.BlocksUsage(ctx, u.ID)
		if err != nil {
			t.Fatalf("blocks usage: %v", err)
		}
		if !blocked {
			t.Fatalf("%s should be blocked after completion", u.Name)
		}
	}

	// counterpart ids point at each other
	empObs, _ := f.gate.PendingObligations(ctx, f.employer.ID)
	if empObs[0].CounterpartID != f.worker.ID {
		t.Fatalf("employer counterpart = %d, want %d", empObs[0].CounterpartID, f.worker.ID)
	}
}

func TestSubmitDischargesOnlyOwnObligation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	job := f.completeJob(t, "Fix the sink")

	rating, err := f.gate.Submit(ctx, actor(f.employer), job.ID, 5, "Quick, clean, and very professional")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rating.RateeID != f.worker.ID {
		t.Fatalf("ratee = %d, want %d", rating.RateeID, f.worker.ID)
	}

	blocked, _ := f.gate.BlocksUsage(ctx, f.employer.ID)
	if blocked {
		t.Fatal("employer still blocked after submitting")
	}
	// the worker's obligation is independent and untouched
	blocked, _ = f.gate.BlocksUsage(ctx, f.worker.ID)
	if !blocked {
		t.Fatal("worker unblocked by the employer's rating")
	}
}

func TestSubmitValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	job := f.completeJob(t, "Mow the lawn")

	tests := []struct {
		name    string
		score   int
		review  string
		wantErr error
	}{
		{"MissingScore", 0, "long enough review text", engage.ErrRatingRequired},
		{"ScoreTooLow", -1, "long enough review text", engage.ErrRatingRequired},
		{"ScoreTooHigh", 6, "long enough review text", engage.ErrRatingRequired},
		{"ReviewTooShort", 4, "meh", engage.ErrReviewTooShort},
		{"ReviewOnlyWhitespacePadding", 4, "   short    ", engage.ErrReviewTooShort},
		{"MultibyteReviewTooShort", 4, "好好好好", engage.ErrReviewTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.Submit(ctx, actor(f.employer), job.ID, tt.score, tt.review)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !engage.IsValidation(err) {
				t.Fatalf("err %v should be a validation error", err)
			}
		})
	}

	// validation failures never discharge the obligation
	blocked, _ := f.gate.BlocksUsage(ctx, f.employer.ID)
	if !blocked {
		t.Fatal("employer unblocked by rejected submissions")
	}
}

func TestSubmitCountsReviewRunes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	job := f.completeJob(t, "Trim the hedge")

	// twelve bytes but only four characters
	if _, err := f.gate.Submit(ctx, actor(f.employer), job.ID, 4, "好好好好"); !errors.Is(err, engage.ErrReviewTooShort) {
		t.Fatalf("multibyte short review err = %v, want ErrReviewTooShort", err)
	}
	// ten characters pass regardless of byte width
	if _, err := f.gate.Submit(ctx, actor(f.employer), job.ID, 4, "非常好的雇主准时付款"); err != nil {
		t.Fatalf("ten-rune review: %v", err)
	}
}

func TestSubmitGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	job := f.completeJob(t, "Clean the garage")
	review := "long enough review text"

	outsider := f.repo.SeedUser("oz", models.RoleWorker)
	if _, err := f.gate.Submit(ctx, actor(outsider), job.ID, 4, review); !errors.Is(err, engage.ErrUnauthorized) {
		t.Fatalf("outsider submit err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.gate.Submit(ctx, actor(f.employer), 9999, 4, review); !errors.Is(err, engage.ErrNotFound) {
		t.Fatalf("missing job err = %v, want ErrNotFound", err)
	}

	open := f.repo.SeedJob(f.employer.ID, "Still open")
	if _, err := f.gate.Submit(ctx, actor(f.employer), open.ID, 4, review); !errors.Is(err, engage.ErrInvalidState) {
		t.Fatalf("incomplete job err = %v, want ErrInvalidState", err)
	}

	if _, err := f.gate.Submit(ctx, actor(f.employer), job.ID, 4, review); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// the unique (job, rater) pair makes the duplicate lose
	if _, err := f.gate.Submit(ctx, actor(f.employer), job.ID, 2, review); !errors.Is(err, engage.ErrInvalidState) {
		t.Fatalf("duplicate submit err = %v, want ErrInvalidState", err)
	}
}

func TestObligationsAreFIFO(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.completeJob(t, "First job")
	second := f.completeJob(t, "Second job")

	// force distinct completion stamps; the mock stamps with current time
	// so completing in order suffices unless both land in the same second,
	// in which case job id breaks the tie the same way.
	obs, err := f.gate.PendingObligations(ctx, f.worker.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("obligations = %d, want 2", len(obs))
	}
	if obs[0].Job.ID != first.ID || obs[1].Job.ID != second.ID {
		t.Fatalf("obligation order = [%d, %d], want [%d, %d]", obs[0].Job.ID, obs[1].Job.ID, first.ID, second.ID)
	}

	// discharging the head leaves the tail in place
	if _, err := f.gate.Submit(ctx, actor(f.worker), first.ID, 5, "great employer to work with"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	obs, _ = f.gate.PendingObligations(ctx, f.worker.ID)
	if len(obs) != 1 || obs[0].Job.ID != second.ID {
		t.Fatalf("remaining obligations: %+v", obs)
	}
}

func TestBlocksUsageFailsClosed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.completeJob(t, "Any job")

	f.repo.Err = engage.ErrUnavailable
	blocked, err := f.gate.BlocksUsage(ctx, f.employer.ID)
	if err == nil {
		t.Fatal("expected error from unavailable store")
	}
	if !blocked {
		t.Fatal("gate must fail closed when the store cannot answer")
	}
	f.repo.Err = nil
}

func TestPendingRetriesTransientFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.completeJob(t, "Any job")

	// first fetch fails, the bounded retry succeeds
	f.repo.ErrOnce = engage.ErrUnavailable
	obs, err := f.gate.PendingObligations(ctx, f.worker.ID)
	if err != nil {
		t.Fatalf("pending after transient failure: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("obligations = %d, want 1", len(obs))
	}
}
