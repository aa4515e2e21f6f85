package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shiftline/marketplace/api"
	"github.com/shiftline/marketplace/internal/disclosure"
	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/internal/ratings"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository/mock"
)

// identityMiddleware stands in for the JWT middleware, injecting the actor's
// claims straight into the request context.
func identityMiddleware(actor engage.Actor) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), api.CtxUserID, actor.ID)
			ctx = context.WithValue(ctx, api.CtxUserRole, string(actor.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// testRouter wires the protected surface against the in-memory repo, with the
// given actor authenticated on every request.
func testRouter(repo *mock.Repo, actor engage.Actor) *mux.Router {
	med := mediator.New(repo, repo, repo, nil, nil)
	engine := lifecycle.New(repo, repo, med, nil, nil)
	disclosureGate := disclosure.New(repo, repo, repo, med, nil)
	ratingGate := ratings.New(repo, repo, repo, nil)

	jobsHandler := api.NewJobsHandler(repo, repo, engine, disclosureGate)
	appsHandler := api.NewApplicationsHandler(repo, engine)
	convsHandler := api.NewConversationsHandler(repo, repo, med)
	ratingsHandler := api.NewRatingsHandler(ratingGate)
	usersHandler := api.NewUsersHandler(repo, repo, med)

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(identityMiddleware(actor))
	v1.Use(api.RatingGateMiddleware(ratingGate))

	v1.HandleFunc("/jobs", jobsHandler.CreateJob).Methods("POST")
	v1.HandleFunc("/jobs", jobsHandler.ListJobs).Methods("GET")
	v1.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods("GET")
	v1.HandleFunc("/jobs/{id}/apply", jobsHandler.Apply).Methods("POST")
	v1.HandleFunc("/jobs/{id}/applications/{appID}/accept", jobsHandler.Accept).Methods("POST")
	v1.HandleFunc("/jobs/{id}/applications/{appID}/reject", jobsHandler.Reject).Methods("POST")
	v1.HandleFunc("/jobs/{id}/start", jobsHandler.Start).Methods("POST")
	v1.HandleFunc("/jobs/{id}/finish", jobsHandler.Finish).Methods("POST")
	v1.HandleFunc("/jobs/{id}/cancel", jobsHandler.Cancel).Methods("POST")
	v1.HandleFunc("/jobs/{id}/share-number", jobsHandler.ShareNumber).Methods("POST")
	v1.HandleFunc("/jobs/{id}/can-call", jobsHandler.CanCall).Methods("GET")
	v1.HandleFunc("/applications", appsHandler.ListMine).Methods("GET")
	v1.HandleFunc("/applications/{id}/withdraw", appsHandler.Withdraw).Methods("POST")
	v1.HandleFunc("/conversations", convsHandler.List).Methods("GET")
	v1.HandleFunc("/conversations/{id}/messages", convsHandler.ListMessages).Methods("GET")
	v1.HandleFunc("/conversations/{id}/messages", convsHandler.PostMessage).Methods("POST")
	v1.HandleFunc("/ratings/pending", ratingsHandler.Pending).Methods("GET")
	v1.HandleFunc("/ratings", ratingsHandler.Submit).Methods("POST")
	v1.HandleFunc("/users/{id}/block", usersHandler.Block).Methods("POST")
	v1.HandleFunc("/users/{id}/unblock", usersHandler.Unblock).Methods("POST")
	v1.HandleFunc("/users/{id}/report", usersHandler.Report).Methods("POST")
	return r
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func asActor(u *models.User) engage.Actor {
	return engage.Actor{ID: u.ID, Role: u.Role}
}

// completeEngagement drives a job to completed between employer and worker.
func completeEngagement(t *testing.T, repo *mock.Repo, employer, worker *models.User, title string) *models.Job {
	t.Helper()
	ctx := context.Background()
	med := mediator.New(repo, repo, repo, nil, nil)
	engine := lifecycle.New(repo, repo, med, nil, nil)

	job := repo.SeedJob(employer.ID, title)
	app, err := engine.Apply(ctx, asActor(worker), job.ID, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := engine.Accept(ctx, asActor(employer), job.ID, app.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := engine.Finish(ctx, asActor(employer), job.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return job
}
