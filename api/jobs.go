package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/qri-io/jsonschema"
	"github.com/shiftline/marketplace/internal/disclosure"
	"github.com/shiftline/marketplace/internal/lifecycle"
	"github.com/shiftline/marketplace/pkg/engage"
	"github.com/shiftline/marketplace/pkg/models"
	"github.com/shiftline/marketplace/pkg/repository"
)

// jobPostingSchema validates the posting payload before it reaches the
// store. Compile checked once at handler construction.
const jobPostingSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "category", "salary_period"],
  "properties": {
    "title": {"type": "string", "minLength": 3},
    "description": {"type": "string"},
    "category": {"type": "string", "minLength": 1},
    "subcategory": {"type": "string"},
    "location": {"type": "string"},
    "salary_min": {"type": "integer", "minimum": 0},
    "salary_max": {"type": "integer", "minimum": 0},
    "salary_period": {"type": "string", "enum": ["hour", "day", "week", "month", "job"]},
    "urgent": {"type": "boolean"}
  }
}`

type JobsHandler struct {
	jobRepo    repository.JobRepo
	appRepo    repository.ApplicationRepo
	engine     *lifecycle.Engine
	disclosure *disclosure.Gate
	schema     *jsonschema.Schema
}

func NewJobsHandler(jr repository.JobRepo, ar repository.ApplicationRepo, engine *lifecycle.Engine, dg *disclosure.Gate) *JobsHandler {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(jobPostingSchema), rs); err != nil {
		panic(fmt.Sprintf("job posting schema invalid: %v", err))
	}
	return &JobsHandler{jobRepo: jr, appRepo: ar, engine: engine, disclosure: dg, schema: rs}
}

type postJobRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Subcategory  string `json:"subcategory"`
	Location     string `json:"location"`
	SalaryMin    int64  `json:"salary_min"`
	SalaryMax    int64  `json:"salary_max"`
	SalaryPeriod string `json:"salary_period"`
	Urgent       bool   `json:"urgent"`
}

func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	if actor.Role != models.RoleEmployer {
		http.Error(w, "Only employers post jobs", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	keyErrs, err := h.schema.ValidateBytes(r.Context(), body)
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(keyErrs) > 0 {
		writeJSON(w, map[string]any{"error": "invalid job posting", "details": keyErrs}, http.StatusBadRequest)
		return
	}

	var req postJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.SalaryMax > 0 && req.SalaryMax < req.SalaryMin {
		http.Error(w, "salary_max below salary_min", http.StatusBadRequest)
		return
	}

	job := &models.Job{
		EmployerID:   actor.ID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		Location:     req.Location,
		SalaryMin:    req.SalaryMin,
		SalaryMax:    req.SalaryMax,
		SalaryPeriod: req.SalaryPeriod,
		Urgent:       req.Urgent,
		Status:       models.JobOpen,
	}
	id, err := h.jobRepo.CreateJob(r.Context(), job)
	if err != nil {
		writeErr(w, err)
		return
	}
	job.ID = id

	writeJSON(w, job, http.StatusCreated)
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.JobFilter{
		Status:   models.JobStatus(q.Get("status")),
		Category: q.Get("category"),
	}
	if v := q.Get("urgent"); v != "" {
		urgent := v == "true" || v == "1"
		f.Urgent = &urgent
	}
	f.Limit = 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			f.Limit = v
		}
	}
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			f.Offset = v
		}
	}

	jobs, err := h.jobRepo.ListJobs(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	total, err := h.jobRepo.CountJobs(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}

	writeJSON(w, map[string]any{
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
		"items":  jobs,
	}, http.StatusOK)
}

// GetJob returns the job and every application with its own state, so the
// employer's workflow sees exactly what happened to each applicant.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.jobRepo.GetJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	apps, err := h.appRepo.ListByJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if apps == nil {
		apps = []models.Application{}
	}

	writeJSON(w, map[string]any{"job": job, "applications": apps}, http.StatusOK)
}

type applyRequest struct {
	Note string `json:"note"`
}

func (h *JobsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req applyRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	app, err := h.engine.Apply(r.Context(), actor, jobID, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, app, http.StatusCreated)
}

func (h *JobsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.pairTransition(w, r, h.engine.Accept)
}

func (h *JobsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.pairTransition(w, r, h.engine.Reject)
}

func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.jobTransition(w, r, h.engine.Start)
}

func (h *JobsHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.jobTransition(w, r, h.engine.Finish)
}

func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.jobTransition(w, r, h.engine.Cancel)
}

func (h *JobsHandler) ShareNumber(w http.ResponseWriter, r *http.Request) {
	h.jobTransition(w, r, h.disclosure.Share)
}

func (h *JobsHandler) CanCall(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	canCall, err := h.disclosure.CanCall(r.Context(), actor, jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"can_call": canCall}, http.StatusOK)
}

func (h *JobsHandler) jobTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor engage.Actor, jobID int64) error) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := fn(r.Context(), actor, jobID); err != nil {
		writeErr(w, err)
		return
	}

	job, err := h.jobRepo.GetJob(r.Context(), jobID)
	if err != nil || job == nil {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) pairTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor engage.Actor, jobID, applicationID int64) error) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "Missing identity", http.StatusUnauthorized)
		return
	}
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appID, ok := pathID(w, r, "appID")
	if !ok {
		return
	}

	if err := fn(r.Context(), actor, jobID, appID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// pathID parses a numeric mux path variable, answering 400 itself on bad
// input.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
