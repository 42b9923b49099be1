package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"comfybridge/internal/workflow"
)

// Config represents application configuration loaded from environment
// variables. One struct serves both the broker and the worker process.
type Config struct {
	AppEnv string
	Port   string

	// ComfyUI backend.
	ComfyBaseURL   string
	ComfyInputDir  string
	ComfyOutputDir string

	// Worker.
	BrokerBaseURL        string
	WorkflowPath         string
	WorkerPollInterval   time.Duration
	ComfyPollInterval    time.Duration
	JobTimeout           time.Duration
	MaxConsecutiveErrors int
	ErrorCooldown        time.Duration

	// Broker job eviction.
	JobMaxAge     time.Duration
	SweepInterval time.Duration

	// Workflow node bindings: which graph node/field receives each job input.
	Bindings workflow.Bindings

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Binding envs use "node:field" form, e.g.
// WORKFLOW_BIND_SEED=72:noise_seed. An empty value unbinds the input.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		ComfyBaseURL:         getEnv("COMFY_BASE_URL", "http://127.0.0.1:8111"),
		ComfyInputDir:        getEnv("COMFY_INPUT_DIR", "ComfyUI/input"),
		ComfyOutputDir:       getEnv("COMFY_OUTPUT_DIR", "ComfyUI/output"),
		BrokerBaseURL:        getEnv("BROKER_BASE_URL", "http://127.0.0.1:8080"),
		WorkflowPath:         getEnv("WORKFLOW_PATH", "workflows/ltxv_image_to_video.json"),
		WorkerPollInterval:   getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		ComfyPollInterval:    getEnvDuration("COMFY_POLL_INTERVAL", time.Second),
		JobTimeout:           getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		MaxConsecutiveErrors: getEnvInt("WORKER_MAX_CONSECUTIVE_ERRORS", 5),
		ErrorCooldown:        getEnvDuration("WORKER_ERROR_COOLDOWN", 10*time.Second),
		JobMaxAge:            getEnvDuration("JOB_MAX_AGE", time.Hour),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", time.Minute),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		Bindings: workflow.Bindings{
			ImageInput:     getEnvBinding("WORKFLOW_BIND_IMAGE", workflow.NodeBinding{Node: "240", Field: "image"}),
			PositivePrompt: getEnvBinding("WORKFLOW_BIND_POSITIVE", workflow.NodeBinding{Node: "6", Field: "text"}),
			NegativePrompt: getEnvBinding("WORKFLOW_BIND_NEGATIVE", workflow.NodeBinding{Node: "7", Field: "text"}),
			Seed:           getEnvBinding("WORKFLOW_BIND_SEED", workflow.NodeBinding{Node: "72", Field: "noise_seed"}),
			OutputPrefix:   getEnvBinding("WORKFLOW_BIND_OUTPUT", workflow.NodeBinding{Node: "241", Field: "filename_prefix"}),
		},
	}

	if cfg.Port == "" {
		return nil, fmt.Errorf("PORT must not be empty")
	}
	if cfg.WorkerPollInterval <= 0 || cfg.ComfyPollInterval <= 0 {
		return nil, fmt.Errorf("poll intervals must be positive")
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT must be positive")
	}
	if cfg.MaxConsecutiveErrors < 1 {
		return nil, fmt.Errorf("WORKER_MAX_CONSECUTIVE_ERRORS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBinding(key string, fallback workflow.NodeBinding) workflow.NodeBinding {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return workflow.NodeBinding{}
	}
	node, field, found := strings.Cut(v, ":")
	if !found || node == "" || field == "" {
		return fallback
	}
	return workflow.NodeBinding{Node: node, Field: field}
}
