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

// AnalysisProvider is the external AI service that extracts a style
// profile (effects, transitions, color grading, audio features, text
// overlays) from a video. The pipeline treats the extraction as opaque.
type AnalysisProvider interface {
	SubmitAnalysis(ctx context.Context, videoRef string) (*AnalysisTask, error)
	GetAnalysisStatus(ctx context.Context, taskID string) (*AnalysisTask, error)
	PollAnalysis(ctx context.Context, taskID string, interval time.Duration, onPhase func(phase string)) (*AnalysisTask, error)
	IsConfigured() bool
}

// AnalysisTask is the provider's view of one extraction task.
type AnalysisTask struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"` // pending | visual | audio | text | done | error
	Phase  string          `json:"phase,omitempty"`
	Style  json.RawMessage `json:"style,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Analysis provider task states.
const (
	AnalysisStatusDone  = "done"
	AnalysisStatusError = "error"
)

// Analysis sub-phases, reported back as job sub-stages.
const (
	PhaseVisual = "visual_analysis"
	PhaseAudio  = "audio_analysis"
	PhaseText   = "text_analysis"
)

// AnalysisClient implements AnalysisProvider against the style-extraction
// HTTP API.
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewAnalysisClient(cfg *config.AnalysisConfig) *AnalysisClient {
	return &AnalysisClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *AnalysisClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// SubmitAnalysis starts a style extraction for the given video.
func (c *AnalysisClient) SubmitAnalysis(ctx context.Context, videoRef string) (*AnalysisTask, error) {
	req := map[string]string{"video_ref": videoRef}
	var result AnalysisTask
	if err := c.post(ctx, "/v1/analysis", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAnalysisStatus retrieves the state of a running extraction.
func (c *AnalysisClient) GetAnalysisStatus(ctx context.Context, taskID string) (*AnalysisTask, error) {
	var result AnalysisTask
	if err := c.get(ctx, fmt.Sprintf("/v1/analysis/%s", taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PollAnalysis polls until the extraction finishes, invoking onPhase each
// time the provider reports a new sub-phase. The caller bounds the wait
// through ctx.
func (c *AnalysisClient) PollAnalysis(ctx context.Context, taskID string, interval time.Duration, onPhase func(phase string)) (*AnalysisTask, error) {
	lastPhase := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		result, err := c.GetAnalysisStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Analysis API] poll task=%s error: %v", taskID, err)
			continue
		}
		if result.Phase != "" && result.Phase != lastPhase {
			lastPhase = result.Phase
			if onPhase != nil {
				onPhase(result.Phase)
			}
		}
		switch result.Status {
		case AnalysisStatusDone:
			return result, nil
		case AnalysisStatusError:
			return nil, fmt.Errorf("analysis failed: %s", result.Error)
		}
	}
}

func (c *AnalysisClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
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

func (c *AnalysisClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *AnalysisClient) doRequest(req *http.Request, result interface{}) error {
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
		return fmt.Errorf("analysis API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
