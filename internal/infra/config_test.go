package infra

import (
	"testing"
	"time"

	"comfybridge/internal/workflow"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.ComfyBaseURL != "http://127.0.0.1:8111" {
		t.Fatalf("ComfyBaseURL = %q", cfg.ComfyBaseURL)
	}
	if cfg.WorkerPollInterval != 500*time.Millisecond {
		t.Fatalf("WorkerPollInterval = %v", cfg.WorkerPollInterval)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Fatalf("JobTimeout = %v", cfg.JobTimeout)
	}
	if cfg.JobMaxAge != time.Hour {
		t.Fatalf("JobMaxAge = %v", cfg.JobMaxAge)
	}
	if got := cfg.Bindings.Seed; got != (workflow.NodeBinding{Node: "72", Field: "noise_seed"}) {
		t.Fatalf("seed binding = %+v", got)
	}
	if got := cfg.Bindings.ImageInput; got != (workflow.NodeBinding{Node: "240", Field: "image"}) {
		t.Fatalf("image binding = %+v", got)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("JOB_MAX_AGE", "30m")
	t.Setenv("WORKER_MAX_CONSECUTIVE_ERRORS", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.WorkerPollInterval != 250*time.Millisecond {
		t.Fatalf("WorkerPollInterval = %v", cfg.WorkerPollInterval)
	}
	if cfg.JobMaxAge != 30*time.Minute {
		t.Fatalf("JobMaxAge = %v", cfg.JobMaxAge)
	}
	if cfg.MaxConsecutiveErrors != 3 {
		t.Fatalf("MaxConsecutiveErrors = %d", cfg.MaxConsecutiveErrors)
	}
}

func TestLoadConfigBindingEnv(t *testing.T) {
	t.Setenv("WORKFLOW_BIND_SEED", "100:seed")
	t.Setenv("WORKFLOW_BIND_NEGATIVE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Bindings.Seed; got != (workflow.NodeBinding{Node: "100", Field: "seed"}) {
		t.Fatalf("seed binding = %+v", got)
	}
	// An explicitly empty binding env unbinds the input.
	if cfg.Bindings.NegativePrompt.Bound() {
		t.Fatalf("negative binding should be unbound, got %+v", cfg.Bindings.NegativePrompt)
	}
	// Malformed values fall back to the default.
	t.Setenv("WORKFLOW_BIND_SEED", "no-colon")
	cfg, err = LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Bindings.Seed; got != (workflow.NodeBinding{Node: "72", Field: "noise_seed"}) {
		t.Fatalf("seed binding = %+v", got)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("WORKER_POLL_INTERVAL", "-1s")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for negative poll interval")
	}
	t.Setenv("WORKER_POLL_INTERVAL", "500ms")

	t.Setenv("JOB_TIMEOUT", "-10m")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for negative job timeout")
	}
	t.Setenv("JOB_TIMEOUT", "10m")

	t.Setenv("WORKER_MAX_CONSECUTIVE_ERRORS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero max consecutive errors")
	}
}
