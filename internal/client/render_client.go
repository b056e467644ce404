package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/skify/api/internal/config"
)

// RenderingProvider is the external service that applies a style profile
// to a video and produces export artifacts.
type RenderingProvider interface {
	SubmitRender(ctx context.Context, req *RenderRequest) (*RenderTask, error)
	SubmitExport(ctx context.Context, req *ExportRequest) (*RenderTask, error)
	GetRenderStatus(ctx context.Context, taskID string) (*RenderTask, error)
	PollRender(ctx context.Context, taskID string, interval time.Duration, onProgress func(percent int)) (*RenderTask, error)
	IsConfigured() bool
}

// RenderRequest applies a style profile to a target video.
type RenderRequest struct {
	VideoRef string          `json:"video_ref"`
	Style    json.RawMessage `json:"style"`
}

// ExportRequest produces the final downloadable artifact.
type ExportRequest struct {
	VideoRef  string `json:"video_ref"`
	Quality   string `json:"quality"`
	Watermark bool   `json:"watermark"`
}

// RenderTask is the provider's view of one render/export task.
type RenderTask struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"` // pending | rendering | done | error
	Progress  int    `json:"progress,omitempty"`
	OutputRef string `json:"output_ref,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Render provider task states.
const (
	RenderStatusDone  = "done"
	RenderStatusError = "error"
)

// RenderClient implements RenderingProvider against the render HTTP API.
type RenderClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewRenderClient(cfg *config.RenderConfig) *RenderClient {
	return &RenderClient{
		httpClient: &http.Client{Timeout: 300 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *RenderClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// SubmitRender starts applying a style profile to a video.
func (c *RenderClient) SubmitRender(ctx context.Context, req *RenderRequest) (*RenderTask, error) {
	var result RenderTask
	if err := c.post(ctx, "/v1/render", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitExport starts producing the final artifact.
func (c *RenderClient) SubmitExport(ctx context.Context, req *ExportRequest) (*RenderTask, error) {
	var result RenderTask
	if err := c.post(ctx, "/v1/export", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRenderStatus retrieves the state of a running task.
func (c *RenderClient) GetRenderStatus(ctx context.Context, taskID string) (*RenderTask, error) {
	var result RenderTask
	if err := c.get(ctx, fmt.Sprintf("/v1/tasks/%s", taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PollRender polls until the task finishes, forwarding provider progress
// percentages to onProgress. The caller bounds the wait through ctx.
func (c *RenderClient) PollRender(ctx context.Context, taskID string, interval time.Duration, onProgress func(percent int)) (*RenderTask, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		result, err := c.GetRenderStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Render API] poll task=%s error: %v", taskID, err)
			continue
		}
		if result.Progress > 0 && onProgress != nil {
			onProgress(result.Progress)
		}
		switch result.Status {
		case RenderStatusDone:
			return result, nil
		case RenderStatusError:
			return nil, fmt.Errorf("render failed: %s", result.Error)
		}
	}
}

func (c *RenderClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *RenderClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *RenderClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("render API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
