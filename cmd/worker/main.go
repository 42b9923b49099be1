package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"comfybridge/internal/comfy"
	"comfybridge/internal/infra"
	"comfybridge/internal/worker"
	"comfybridge/internal/workflow"
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

	graph, err := workflow.Load(cfg.WorkflowPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.WorkflowPath).Msg("worker: failed to load workflow template")
	}
	if err := cfg.Bindings.Validate(graph); err != nil {
		logger.Fatal().Err(err).Msg("worker: workflow bindings do not match template")
	}

	broker := worker.NewBrokerClient(cfg.BrokerBaseURL, nil)
	comfyClient := comfy.NewClient(comfy.Options{BaseURL: cfg.ComfyBaseURL})

	w := worker.New(broker, comfyClient, graph, cfg.Bindings, worker.Config{
		PollInterval:         cfg.WorkerPollInterval,
		BackendPollInterval:  cfg.ComfyPollInterval,
		JobTimeout:           cfg.JobTimeout,
		OutputRoot:           cfg.ComfyOutputDir,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		ErrorCooldown:        cfg.ErrorCooldown,
	}, logger)

	logger.Info().
		Str("broker", cfg.BrokerBaseURL).
		Str("comfy", cfg.ComfyBaseURL).
		Str("workflow", cfg.WorkflowPath).
		Msg("worker: starting")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
