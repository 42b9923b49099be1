package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"comfybridge/internal/domain"
)

// BrokerClient speaks the broker's worker-facing endpoints: dequeue plus the
// three state-advance reports.
type BrokerClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewBrokerClient builds a client for the broker control plane.
func NewBrokerClient(baseURL string, httpClient *http.Client) *BrokerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BrokerClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NextJob fetches the next queued job, or nil when the queue is empty.
func (c *BrokerClient) NextJob(ctx context.Context) (*domain.Dispatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue/next", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: fetch next job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker: next job returned http %d", resp.StatusCode)
	}
	var dispatch domain.Dispatch
	if err := json.NewDecoder(resp.Body).Decode(&dispatch); err != nil {
		return nil, fmt.Errorf("broker: decode dispatch: %w", err)
	}
	if dispatch.JobID == "" {
		return nil, nil
	}
	return &dispatch, nil
}

// MarkStarted reports a job as running.
func (c *BrokerClient) MarkStarted(ctx context.Context, jobID string) error {
	return c.report(ctx, jobID, "start", nil)
}

// MarkComplete reports a job as done with its result path.
func (c *BrokerClient) MarkComplete(ctx context.Context, jobID, resultPath string) error {
	return c.report(ctx, jobID, "complete", url.Values{"result_path": {resultPath}})
}

// MarkError reports a job as failed with a human-readable message.
func (c *BrokerClient) MarkError(ctx context.Context, jobID, message string) error {
	return c.report(ctx, jobID, "error", url.Values{"error_message": {message}})
}

func (c *BrokerClient) report(ctx context.Context, jobID, action string, form url.Values) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	endpoint := fmt.Sprintf("%s/jobs/%s/%s", c.baseURL, jobID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker: report %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker: report %s returned http %d", action, resp.StatusCode)
	}
	return nil
}
