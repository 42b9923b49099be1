package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"comfybridge/internal/domain"
	"comfybridge/pkg/metrics"
)

// NextQueued hands the oldest queued job's dispatch payload to the worker.
// The job is not reserved here; the single worker claims it with a follow-up
// start report.
func (a *App) NextQueued(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Store.NextQueued()
	if !ok {
		a.json(w, http.StatusOK, map[string]any{"job_id": nil})
		return
	}
	a.json(w, http.StatusOK, domain.Dispatch{
		JobID:          job.ID,
		InputImagePath: job.InputImagePath,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Seed:           job.Seed,
	})
}

// StartJob marks a job running. Worker-only.
func (a *App) StartJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.advance(w, id, "started", func() error {
		return a.Store.MarkRunning(id)
	}) {
		return
	}
	a.Logger.Info().Str("job_id", id).Msg("api: job started")
}

// CompleteJob marks a job done with its result path. Worker-only.
func (a *App) CompleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resultPath := r.PostFormValue("result_path")
	if resultPath == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "result_path is required")
		return
	}
	if !a.advance(w, id, "done", func() error {
		return a.Store.MarkDone(id, resultPath)
	}) {
		return
	}
	a.Logger.Info().Str("job_id", id).Str("result_path", resultPath).Msg("api: job completed")
}

// ErrorJob marks a job failed with a human-readable message. Worker-only.
func (a *App) ErrorJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	message := r.PostFormValue("error_message")
	if message == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "error_message is required")
		return
	}
	if !a.advance(w, id, "error", func() error {
		return a.Store.MarkError(id, message)
	}) {
		return
	}
	a.Logger.Error().Str("job_id", id).Str("error_message", message).Msg("api: job failed")
}

// advance runs one state transition and writes the response. Unknown ids get
// 404. An illegal transition is tolerated as a no-op with a warning, since
// the worker may re-send a report after a retry. Returns true when the
// transition was applied.
func (a *App) advance(w http.ResponseWriter, id, outcome string, fn func() error) bool {
	err := fn()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %s not found", id))
		return false
	case errors.Is(err, domain.ErrInvalidTransition):
		a.Logger.Warn().Err(err).Str("job_id", id).Msg("api: ignoring illegal state transition")
		a.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return false
	case err != nil:
		a.error(w, http.StatusInternalServerError, "internal", "failed to update job")
		return false
	}
	metrics.IncJobReport(outcome)
	a.refreshStatusMetrics()
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
	return true
}
