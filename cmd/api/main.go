package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	jitterbug "github.com/lthibault/jitterbug/v2"

	"comfybridge/internal/http/handlers"
	"comfybridge/internal/http/httpapi"
	"comfybridge/internal/infra"
	"comfybridge/internal/jobstore"
	"comfybridge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Uploads land directly in the ComfyUI input directory so the backend
	// can read them by filename.
	uploads, err := storage.NewFileStore(cfg.ComfyInputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure upload storage")
	}

	store := jobstore.New()
	app := handlers.NewApp(store, uploads, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go runSweeper(ctx, cfg, store, logger)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// runSweeper periodically evicts job records older than JobMaxAge and
// unlinks the files they owned. A timer-driven sweep keeps eviction
// deterministic instead of tying it to store size.
func runSweeper(ctx context.Context, cfg *infra.Config, store *jobstore.Store, logger infra.Logger) {
	ticker := jitterbug.New(cfg.SweepInterval, &jitterbug.Norm{Stdev: cfg.SweepInterval / 20})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		files := store.Sweep(cfg.JobMaxAge)
		if len(files) == 0 {
			continue
		}
		for _, path := range files {
			if err := storage.Remove(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("sweep: failed to remove job file")
			}
		}
		logger.Info().Int("files", len(files)).Msg("sweep: evicted expired jobs")
	}
}
