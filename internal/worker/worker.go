// Package worker orchestrates one job end-to-end: dequeue from the broker,
// materialize the workflow template, drive the ComfyUI execution to a
// terminal state, locate the artifact, and report the outcome back.
package worker

import (
	"context"
	"fmt"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"

	"comfybridge/internal/comfy"
	"comfybridge/internal/domain"
	"comfybridge/internal/infra"
	"comfybridge/internal/workflow"
)

// Config carries the worker's tunables.
type Config struct {
	PollInterval         time.Duration
	BackendPollInterval  time.Duration
	JobTimeout           time.Duration
	OutputRoot           string
	MaxConsecutiveErrors int
	ErrorCooldown        time.Duration
}

// Worker runs the dequeue-process-report loop.
type Worker struct {
	broker   *BrokerClient
	comfy    *comfy.Client
	graph    workflow.Graph
	bindings workflow.Bindings
	cfg      Config
	logger   infra.Logger
}

// New assembles a worker. The graph is the already-loaded workflow template;
// bindings must have been validated against it.
func New(broker *BrokerClient, comfyClient *comfy.Client, graph workflow.Graph, bindings workflow.Bindings, cfg Config, logger infra.Logger) *Worker {
	if cfg.MaxConsecutiveErrors < 1 {
		cfg.MaxConsecutiveErrors = 5
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = 10 * time.Second
	}
	return &Worker{
		broker:   broker,
		comfy:    comfyClient,
		graph:    graph,
		bindings: bindings,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run polls the broker until the context is cancelled. Job-level failures
// are always converted into an error report and never abort the loop;
// loop-level failures (broker unreachable) are counted and trigger an
// extended cooldown once MaxConsecutiveErrors is reached.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("worker: started")

	ticker := jitterbug.New(w.cfg.PollInterval, &jitterbug.Norm{Stdev: w.cfg.PollInterval / 10})
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		job, err := w.broker.NextJob(ctx)
		if err != nil {
			consecutiveErrors++
			w.logger.Error().Err(err).
				Int("consecutive_errors", consecutiveErrors).
				Msg("worker: failed to reach broker")
			if consecutiveErrors >= w.cfg.MaxConsecutiveErrors {
				w.logger.Error().
					Dur("cooldown", w.cfg.ErrorCooldown).
					Msg("worker: too many consecutive errors, backing off")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.cfg.ErrorCooldown):
				}
				consecutiveErrors = 0
			}
			continue
		}
		consecutiveErrors = 0
		if job == nil {
			continue
		}

		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *domain.Dispatch) {
	w.logger.Info().Str("job_id", job.JobID).Msg("worker: picked job")

	if err := w.broker.MarkStarted(ctx, job.JobID); err != nil {
		// The record may already be gone; skip rather than run work nobody
		// is waiting for.
		w.logger.Error().Err(err).Str("job_id", job.JobID).Msg("worker: failed to mark job started")
		return
	}

	resultPath, err := w.process(ctx, job)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.JobID).Msg("worker: job failed")
		if reportErr := w.broker.MarkError(ctx, job.JobID, err.Error()); reportErr != nil {
			w.logger.Error().Err(reportErr).Str("job_id", job.JobID).Msg("worker: failed to report job error")
		}
		return
	}

	if err := w.broker.MarkComplete(ctx, job.JobID, resultPath); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.JobID).Msg("worker: failed to report job completion")
		return
	}
	w.logger.Info().Str("job_id", job.JobID).Str("result_path", resultPath).Msg("worker: job completed")
}

func (w *Worker) process(ctx context.Context, job *domain.Dispatch) (string, error) {
	req, err := workflow.Build(w.graph, w.bindings, workflow.Params{
		JobID:          job.JobID,
		ImagePath:      job.InputImagePath,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Seed:           job.Seed,
	})
	if err != nil {
		return "", fmt.Errorf("build workflow: %w", err)
	}
	for _, name := range req.Skipped {
		w.logger.Warn().Str("job_id", job.JobID).Str("input", name).Msg("worker: workflow has no node bound for input")
	}

	promptID, err := w.comfy.Submit(ctx, req.Graph)
	if err != nil {
		return "", err
	}
	w.logger.Info().
		Str("job_id", job.JobID).
		Str("prompt_id", promptID).
		Int64("seed", req.Seed).
		Msg("worker: queued comfy prompt")

	entry, err := w.comfy.PollUntilDone(ctx, promptID, w.cfg.BackendPollInterval, w.cfg.JobTimeout)
	if err != nil {
		return "", err
	}

	resultPath, missing, err := comfy.ResolveOutput(entry, w.cfg.OutputRoot)
	for _, path := range missing {
		w.logger.Warn().Str("job_id", job.JobID).Str("path", path).Msg("worker: manifest entry not found on disk")
	}
	if err != nil {
		return "", err
	}
	return resultPath, nil
}
