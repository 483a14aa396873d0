package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storyreel/backend/internal/models"
	"github.com/storyreel/backend/internal/render"
)

// RenderService is the slice of the job manager the API needs.
type RenderService interface {
	Submit(ctx context.Context, projectID uuid.UUID, settings models.RenderSettings) (*models.RenderJob, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

// QueueStats exposes queue depth for the health endpoint.
type QueueStats interface {
	Length(ctx context.Context) (int64, error)
}

// Defaults are applied to submission requests that omit settings fields.
type Defaults struct {
	Width  int
	Height int
	FPS    int
}

type Handler struct {
	repo     render.Repository
	renders  RenderService
	queue    QueueStats
	defaults Defaults
	validate *validator.Validate
}

var resolutionRe = regexp.MustCompile(`^\d{3,4}x\d{3,4}$`)

func NewHandler(repo render.Repository, renders RenderService, queue QueueStats, defaults Defaults) *Handler {
	v := validator.New()
	v.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
		return resolutionRe.MatchString(fl.Field().String())
	})

	return &Handler{
		repo:     repo,
		renders:  renders,
		queue:    queue,
		defaults: defaults,
		validate: v,
	}
}

// CreateRender handles POST /v1/projects/{projectId}/renders.
// Returns the job id immediately; the caller polls or subscribes for results.
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	var req models.CreateRenderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render settings: "+err.Error())
		return
	}

	settings, err := h.settingsFrom(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.renders.Submit(r.Context(), projectID, settings)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to submit render job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateRenderResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetRender handles GET /v1/renders/{id}.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.repo.GetJob(r.Context(), id)
	if errors.Is(err, render.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Render job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get render job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// ListRenders handles GET /v1/renders with project_id, status, limit, and
// offset query parameters.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) {
	var projectID *uuid.UUID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid project_id filter")
			return
		}
		projectID = &parsed
	}

	status := r.URL.Query().Get("status")
	if status != "" {
		switch models.JobStatus(status) {
		case models.JobStatusPending, models.JobStatusProcessing,
			models.JobStatusCompleted, models.JobStatusFailed:
			// valid
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter. Allowed: pending, processing, completed, failed")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	jobs, total, err := h.repo.ListJobs(r.Context(), projectID, status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list render jobs")
		return
	}
	if jobs == nil {
		jobs = []models.RenderJob{}
	}

	respondJSON(w, http.StatusOK, models.ListRenderJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CancelRender handles DELETE /v1/renders/{id}.
func (h *Handler) CancelRender(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	err = h.renders.Cancel(r.Context(), id)
	if errors.Is(err, render.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Render job not found")
		return
	}
	if errors.Is(err, render.ErrTerminalJob) {
		respondError(w, http.StatusConflict, "Render job already finished")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cancel render job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}

	if h.queue != nil {
		if depth, err := h.queue.Length(r.Context()); err == nil {
			resp["queue_depth"] = depth
		} else {
			resp["status"] = "degraded"
			resp["queue_error"] = err.Error()
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) settingsFrom(req models.CreateRenderRequest) (models.RenderSettings, error) {
	settings := models.RenderSettings{
		Width:           h.defaults.Width,
		Height:          h.defaults.Height,
		FPS:             h.defaults.FPS,
		Quality:         models.QualityStandard,
		MotionIntensity: models.MotionStandard,
	}

	if req.Resolution != "" {
		parts := strings.SplitN(req.Resolution, "x", 2)
		w, _ := strconv.Atoi(parts[0])
		ht, _ := strconv.Atoi(parts[1])
		settings.Width, settings.Height = w, ht
	}
	if req.FPS != 0 {
		settings.FPS = req.FPS
	}
	if req.Quality != "" {
		settings.Quality = models.QualityTier(req.Quality)
	}
	if req.MotionIntensity != "" {
		settings.MotionIntensity = models.MotionIntensity(req.MotionIntensity)
	}

	return settings, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
