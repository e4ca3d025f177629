package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creatorscout/internal/model"
	"creatorscout/internal/search"
)

type Handler struct {
	dispatcher   *search.Dispatcher
	orchestrator *search.Orchestrator
}

func NewHandler(dispatcher *search.Dispatcher, orchestrator *search.Orchestrator) *Handler {
	return &Handler{dispatcher: dispatcher, orchestrator: orchestrator}
}

type dispatchRequest struct {
	Platform      string   `json:"platform"`
	SearchType    string   `json:"searchType"`
	Terms         []string `json:"terms,omitempty"`
	SeedIdentity  string   `json:"seedIdentity,omitempty"`
	TargetResults int      `json:"targetResults"`
}

type dispatchResponse struct {
	JobID string `json:"jobId"`
}

type jobResponse struct {
	JobID            string           `json:"jobId"`
	Platform         model.Platform   `json:"platform"`
	SearchType       model.SearchType `json:"searchType"`
	Status           model.Status     `json:"status"`
	SeedTerms        []string         `json:"seedTerms"`
	AllTermsUsed     []string         `json:"allTermsUsed"`
	TargetResults    int              `json:"targetResults"`
	ProcessedResults int              `json:"processedResults"`
	ProgressPercent  int              `json:"progressPercent"`
	ExpansionRuns    int              `json:"expansionRuns"`
	TickCount        int              `json:"tickCount"`
	Metrics          model.JobMetrics `json:"metrics"`
	CreatedAt        time.Time        `json:"createdAt"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
}

func jobToResponse(job *model.Job) jobResponse {
	return jobResponse{
		JobID:            job.ID,
		Platform:         job.Platform,
		SearchType:       job.SearchType,
		Status:           job.Status,
		SeedTerms:        job.SeedTerms,
		AllTermsUsed:     job.AllTermsUsed,
		TargetResults:    job.TargetResults,
		ProcessedResults: job.ProcessedResults,
		ProgressPercent:  job.ProgressPercent(),
		ExpansionRuns:    job.ExpansionRuns,
		TickCount:        job.TickCount,
		Metrics:          job.Metrics,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
}

// dispatch accepts a search request and returns immediately with the new
// job id. All provider work happens later, on ticks.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	id, err := h.dispatcher.Dispatch(r.Context(), search.DispatchRequest{
		Platform:      req.Platform,
		SearchType:    req.SearchType,
		Terms:         req.Terms,
		SeedIdentity:  req.SeedIdentity,
		TargetResults: req.TargetResults,
	})
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, dispatchResponse{JobID: id})
}

type tickRequest struct {
	JobID string `json:"jobId"`
}

// tick runs one tick synchronously. The queue consumer is the normal
// driver; this endpoint exists for operators and tests.
func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "jobId is required")
		return
	}
	res, err := h.orchestrator.Tick(r.Context(), req.JobID)
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.orchestrator.Snapshot(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.orchestrator.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
