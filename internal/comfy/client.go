// Package comfy speaks the ComfyUI wire protocol: graph submission over
// POST /prompt and completion tracking over GET /history. It is the only
// package that knows the backend's request and response shapes.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"comfybridge/internal/workflow"
)

var (
	// ErrBackendUnavailable marks a submission that never reached the backend.
	ErrBackendUnavailable = errors.New("comfy backend unavailable")
	// ErrExecutionFailed marks a run the backend reported as failed.
	ErrExecutionFailed = errors.New("comfy execution failed")
	// ErrTimeout marks a run that produced no terminal state within budget.
	// The backend keeps no cancel primitive, so backend-side work may still
	// finish after this is returned.
	ErrTimeout = errors.New("comfy execution timed out")
	// ErrNoOutput marks a successful run whose manifest resolved to no file.
	ErrNoOutput = errors.New("no output produced")
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client drives one ComfyUI instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
}

// NewClient builds a client. Each client carries a stable random client_id,
// matching how ComfyUI distinguishes submitters.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:8111"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		clientID:   uuid.NewString(),
	}
}

type promptRequest struct {
	Prompt   workflow.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
	Error    string `json:"error"`
}

// Submit queues a concrete graph for execution and returns the backend's
// prompt id. Any failure to obtain one wraps ErrBackendUnavailable.
func (c *Client) Submit(ctx context.Context, graph workflow.Graph) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("comfy: encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("comfy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: submit returned http %d", ErrBackendUnavailable, resp.StatusCode)
	}
	var out promptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", ErrBackendUnavailable, err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("%w: submit response missing prompt_id", ErrBackendUnavailable)
	}
	return out.PromptID, nil
}

// OutputFile is one manifest entry produced by an output node.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the per-node output manifest. SaveImage nodes emit images,
// SaveVideo emits videos, VHS_VideoCombine emits gifs.
type NodeOutput struct {
	Images []OutputFile `json:"images"`
	Videos []OutputFile `json:"videos"`
	Gifs   []OutputFile `json:"gifs"`
}

// ExecutionStatus is the terminal-status block of a history entry.
type ExecutionStatus struct {
	StatusStr string          `json:"status_str"`
	Completed bool            `json:"completed"`
	Messages  json.RawMessage `json:"messages"`
}

// HistoryEntry is the backend's record of one submitted graph.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  ExecutionStatus       `json:"status"`
}

// history fetches the execution record for a prompt id, or nil while the
// backend has not recorded it yet.
func (c *Client) history(ctx context.Context, promptID string) (*HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build history request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("comfy: history returned http %d", resp.StatusCode)
	}
	entries := map[string]*HistoryEntry{}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("comfy: decode history: %w", err)
	}
	return entries[promptID], nil
}

// PollUntilDone fetches the execution history at interval until the entry is
// terminal or the timeout elapses. Connection errors during polling are
// retried at the same cadence; they are indistinguishable from "still
// running" until the deadline, at which point they surface as ErrTimeout.
func (c *Client) PollUntilDone(ctx context.Context, promptID string, interval, timeout time.Duration) (*HistoryEntry, error) {
	deadline := time.Now().Add(timeout)
	for {
		entry, err := c.history(ctx, promptID)
		if err == nil && entry != nil {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, statusMessage(entry.Status))
			}
			if len(entry.Outputs) > 0 {
				return entry, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: prompt %s produced no terminal state within %s", ErrTimeout, promptID, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func statusMessage(status ExecutionStatus) string {
	if len(status.Messages) == 0 {
		return "unknown error"
	}
	return string(status.Messages)
}
