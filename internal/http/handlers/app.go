package handlers

import (
	"encoding/json"
	"net/http"

	"comfybridge/internal/infra"
	"comfybridge/internal/jobstore"
	"comfybridge/internal/storage"
	"comfybridge/pkg/metrics"
)

// App bundles the dependencies the control-plane handlers need.
type App struct {
	Store   *jobstore.Store
	Uploads *storage.FileStore
	Logger  infra.Logger
}

func NewApp(store *jobstore.Store, uploads *storage.FileStore, logger infra.Logger) *App {
	return &App{Store: store, Uploads: uploads, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

// refreshStatusMetrics pushes the store's per-status counts to prometheus.
// Called after every mutation so the gauges track the live job map.
func (a *App) refreshStatusMetrics() {
	counts, _ := a.Store.Counts()
	for status, count := range counts {
		metrics.SetJobStatusCount(string(status), count)
	}
}
