package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dvloznov/budgetsync/internal/api/middleware"
	"github.com/dvloznov/budgetsync/internal/jobs"
	"github.com/dvloznov/budgetsync/internal/report"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ReportHistory is the read side of report.Service.
type ReportHistory interface {
	History(ctx context.Context, userID string) ([]report.Report, error)
}

// ReportsHandler handles /api/reports. Generation is asynchronous: a POST
// publishes a job and returns its id.
type ReportsHandler struct {
	history   ReportHistory
	publisher jobs.Publisher
	userID    string
	log       zerolog.Logger
}

func NewReportsHandler(history ReportHistory, publisher jobs.Publisher, userID string, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{history: history, publisher: publisher, userID: userID, log: log}
}

// List handles GET /api/reports, newest first.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.history.History(r.Context(), h.userID)
	if err != nil {
		writeErr(w, h.log, err, "Failed to list reports")
		return
	}
	if reports == nil {
		reports = []report.Report{}
	}
	middleware.WriteJSON(w, http.StatusOK, reports)
}

// Create handles POST /api/reports with {"consent": true}.
func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Consent bool `json:"consent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Consent {
		writeErr(w, h.log, report.ErrConsentRequired, "")
		return
	}

	job := &jobs.ReportJob{UserID: h.userID, Consent: req.Consent}
	if err := h.publisher.PublishReport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue report job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue report job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Report job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, h.log.With().Str("job_id", jobID).Logger(), err, "Failed to get job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: query.Get("user_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeErr(w, h.log, err, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
