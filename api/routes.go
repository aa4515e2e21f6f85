package api

import (
	"log/slog"

	"github.com/gorilla/mux"
	"github.com/shiftline/marketplace/internal/config"
	"github.com/shiftline/marketplace/internal/db"
	"github.com/shiftline/marketplace/internal/disclosure"
	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/internal/mediator"
	"github.com/shiftline/marketplace/internal/notify"
	"github.com/shiftline/marketplace/internal/ratings"
	"github.com/shiftline/marketplace/internal/repository/sqlite"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, conn *db.DB, notifier *notify.Notifier, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	SetLogger(log)

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Repository
	repo := sqlite.New(conn, log)

	// Core services
	med := mediator.New(repo, repo, repo, notifier, log)
	engine := lifecycle.New(repo, repo, med, notifier, log)
	disclosureGate := disclosure.New(repo, repo, repo, med, log)
	ratingGate := ratings.New(repo, repo, repo, log)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration)
	jobsHandler := NewJobsHandler(repo, repo, engine, disclosureGate)
	appsHandler := NewApplicationsHandler(repo, engine)
	convsHandler := NewConversationsHandler(repo, repo, med)
	ratingsHandler := NewRatingsHandler(ratingGate)
	usersHandler := NewUsersHandler(repo, repo, med)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))
	apiV1.Use(RatingGateMiddleware(ratingGate))

	// Jobs and lifecycle endpoints
	apiV1.HandleFunc("/jobs", jobsHandler.CreateJob).Methods("POST")
	apiV1.HandleFunc("/jobs", jobsHandler.ListJobs).Methods("GET")
	apiV1.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods("GET")
	apiV1.HandleFunc("/jobs/{id}/apply", jobsHandler.Apply).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/applications/{appID}/accept", jobsHandler.Accept).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/applications/{appID}/reject", jobsHandler.Reject).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/start", jobsHandler.Start).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/finish", jobsHandler.Finish).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/cancel", jobsHandler.Cancel).Methods("POST")

	// Phone disclosure endpoints
	apiV1.HandleFunc("/jobs/{id}/share-number", jobsHandler.ShareNumber).Methods("POST")
	apiV1.HandleFunc("/jobs/{id}/can-call", jobsHandler.CanCall).Methods("GET")

	// Applications endpoints
	apiV1.HandleFunc("/applications", appsHandler.ListMine).Methods("GET")
	apiV1.HandleFunc("/applications/{id}/withdraw", appsHandler.Withdraw).Methods("POST")

	// Conversations endpoints
	apiV1.HandleFunc("/conversations", convsHandler.List).Methods("GET")
	apiV1.HandleFunc("/conversations/{id}/messages", convsHandler.ListMessages).Methods("GET")
	apiV1.HandleFunc("/conversations/{id}/messages", convsHandler.PostMessage).Methods("POST")

	// Ratings endpoints, exempt from the rating gate so blocked callers can
	// work their queue down
	apiV1.HandleFunc("/ratings/pending", ratingsHandler.Pending).Methods("GET")
	apiV1.HandleFunc("/ratings", ratingsHandler.Submit).Methods("POST")

	// Users endpoints
	apiV1.HandleFunc("/users/{id}/block", usersHandler.Block).Methods("POST")
	apiV1.HandleFunc("/users/{id}/unblock", usersHandler.Unblock).Methods("POST")
	apiV1.HandleFunc("/users/{id}/report", usersHandler.Report).Methods("POST")

	return r
}
