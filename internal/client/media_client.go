package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skify/api/internal/config"
)

// MediaFetcher downloads a viral clip from a social platform by URL and
// stages it for the pipeline.
type MediaFetcher interface {
	FetchVideo(ctx context.Context, platform, url string) (*FetchedVideo, error)
	IsConfigured() bool
}

// FetchedVideo references a clip staged by the fetcher service.
type FetchedVideo struct {
	VideoRef string  `json:"video_ref"`
	Duration float64 `json:"duration,omitempty"`
	Title    string  `json:"title,omitempty"`
}

// MediaClient implements MediaFetcher against the downloader HTTP API.
type MediaClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewMediaClient(cfg *config.MediaConfig) *MediaClient {
	return &MediaClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *MediaClient) IsConfigured() bool {
	return c.baseURL != ""
}

// FetchVideo resolves a platform URL into a staged video reference.
func (c *MediaClient) FetchVideo(ctx context.Context, platform, url string) (*FetchedVideo, error) {
	body := map[string]string{"platform": platform, "url": url}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/fetch", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("media API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result FetchedVideo
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
