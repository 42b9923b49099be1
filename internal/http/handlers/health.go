package handlers

import (
	"net/http"
	"time"

	"comfybridge/internal/domain"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	counts, total := a.Store.Counts()
	a.json(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"jobs_count": total,
		"queued":     counts[domain.JobStatusQueued],
		"running":    counts[domain.JobStatusRunning],
		"done":       counts[domain.JobStatusDone],
		"error":      counts[domain.JobStatusError],
	})
}
