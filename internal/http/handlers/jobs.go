package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"comfybridge/internal/domain"
	"comfybridge/internal/storage"
	"comfybridge/pkg/metrics"
)

const maxUploadBytes = 32 << 20

type jobDocument struct {
	ID             string           `json:"id"`
	Status         domain.JobStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	Prompt         string           `json:"prompt"`
	HasResult      bool             `json:"has_result"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	ProcessingTime *float64         `json:"processing_time_seconds,omitempty"`
}

func toDocument(job domain.Job) jobDocument {
	doc := jobDocument{
		ID:           job.ID,
		Status:       job.Status,
		CreatedAt:    job.CreatedAt,
		Prompt:       job.Prompt,
		HasResult:    job.ResultPath != "",
		ErrorMessage: job.ErrorMessage,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		seconds := job.CompletedAt.Sub(*job.StartedAt).Seconds()
		doc.ProcessingTime = &seconds
	}
	return doc
}

// CreateJob accepts a multipart submission (image file, prompt, optional
// negative_prompt and seed), saves the image into the ComfyUI input
// directory, and registers a queued job.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image file is required")
		return
	}
	defer file.Close()

	prompt := r.FormValue("prompt")

	var negativePrompt *string
	if values, ok := r.MultipartForm.Value["negative_prompt"]; ok && len(values) > 0 {
		negativePrompt = &values[0]
	}

	var seed *int64
	if raw := r.FormValue("seed"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "seed must be an integer")
			return
		}
		seed = &parsed
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read image upload")
		return
	}

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".png"
	}
	key := fmt.Sprintf("td_input_%s_%d%s", uuid.NewString()[:8], time.Now().UnixMilli(), ext)
	savedKey, err := a.Uploads.Write(r.Context(), key, data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: failed to save input image")
		a.error(w, http.StatusInternalServerError, "storage_error", domain.ErrStorage.Error())
		return
	}
	inputPath := a.Uploads.Abs(savedKey)

	job := a.Store.Create(inputPath, prompt, negativePrompt, seed)
	metrics.IncJobsCreated()
	a.refreshStatusMetrics()

	a.Logger.Info().
		Str("job_id", job.ID).
		Int("image_bytes", len(data)).
		Msg("api: job queued")

	a.json(w, http.StatusOK, map[string]any{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Job queued for processing",
	})
}

// GetJob returns the status document for one job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Store.Get(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %s not found", id))
		return
	}
	a.json(w, http.StatusOK, toDocument(job))
}

// GetJobResult streams the result artifact of a completed job. Incomplete
// jobs are rejected with 400; a completed job whose file has since vanished
// yields 404.
func (a *App) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Store.Get(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %s not found", id))
		return
	}
	if job.Status != domain.JobStatusDone {
		a.error(w, http.StatusBadRequest, "not_complete",
			fmt.Sprintf("%s: status is %s", domain.ErrNotComplete.Error(), job.Status))
		return
	}
	if job.ResultPath == "" {
		a.error(w, http.StatusNotFound, "not_found", "result file not found")
		return
	}
	if _, err := os.Stat(job.ResultPath); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "result file not found")
		return
	}
	ext := filepath.Ext(job.ResultPath)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "result_"+job.ID+ext))
	http.ServeFile(w, r, job.ResultPath)
}

// DeleteJob removes the record and unlinks the files it owned. In-flight
// backend work for the job is not cancelled; a later worker report against
// the deleted id gets 404 and the worker treats that as a no-op.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	files, err := a.Store.Delete(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %s not found", id))
		return
	}
	for _, path := range files {
		if err := storage.Remove(path); err != nil {
			a.Logger.Warn().Err(err).Str("job_id", id).Str("path", path).Msg("api: failed to remove job file")
		}
	}
	a.refreshStatusMetrics()
	a.json(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Job %s deleted", id)})
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status domain.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.JobStatus(raw)
		if !status.Valid() {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown status %q", raw))
			return
		}
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs := a.Store.List(status, limit)
	docs := make([]jobDocument, 0, len(jobs))
	for _, job := range jobs {
		docs = append(docs, toDocument(job))
	}
	_, total := a.Store.Counts()

	a.json(w, http.StatusOK, map[string]any{
		"total":    total,
		"returned": len(docs),
		"jobs":     docs,
	})
}
