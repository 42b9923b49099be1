package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comfybridge/internal/http/handlers"
	"comfybridge/internal/middleware"
)

// NewRouter assembles the broker's control-plane surface. CORS is wide open
// because TouchDesigner clients call in from arbitrary origins.
func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/health", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJob)
		r.Get("/", app.ListJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetJob)
			r.Delete("/", app.DeleteJob)
			r.Get("/result", app.GetJobResult)

			// Worker-only state-advance calls.
			r.Post("/start", app.StartJob)
			r.Post("/complete", app.CompleteJob)
			r.Post("/error", app.ErrorJob)
		})
	})

	r.Get("/queue/next", app.NextQueued)

	return r
}
