package model

import (
	"encoding/json"
	"time"
)

// JobError is the terminal error recorded on a failed job. Kind is one of
// the pipeline error kinds; Message keeps the original diagnostic text.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job represents one durable unit of asynchronous pipeline work.
// Result and Error are mutually exclusive and only set once the job
// reaches a terminal status.
type Job struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId,omitempty"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	SubStage    string          `json:"subStage,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	RetryCount  int             `json:"retryCount"`
	Version     int64           `json:"version"`
}

// ImportJobPayload carries the inputs for a platform import job.
type ImportJobPayload struct {
	Platform Platform `json:"platform"`
	URL      string   `json:"url"`
}

// AnalysisJobPayload carries the inputs for a viral analysis job.
type AnalysisJobPayload struct {
	VideoRef string `json:"videoRef"`
}

// TemplateSaveJobPayload persists an analysis result as a reusable template.
type TemplateSaveJobPayload struct {
	Name     string          `json:"name,omitempty"`
	VideoRef string          `json:"videoRef"`
	Style    json.RawMessage `json:"style"`
}

// ApplicationJobPayload applies a saved template to a user video.
type ApplicationJobPayload struct {
	TemplateID string `json:"templateId"`
	VideoRef   string `json:"videoRef"`
}

// ExportJobPayload produces the final downloadable artifact.
type ExportJobPayload struct {
	VideoRef  string        `json:"videoRef"`
	Quality   ExportQuality `json:"quality"`
	Watermark bool          `json:"watermark"`
}

// ImportResult is the result payload of a completed import job.
type ImportResult struct {
	VideoRef string  `json:"videoRef"`
	Platform string  `json:"platform"`
	Duration float64 `json:"duration,omitempty"`
}

// AnalysisResult is the result payload of a completed viral analysis job.
// Style is the provider's extraction, opaque beyond shape validation.
type AnalysisResult struct {
	VideoRef string          `json:"videoRef"`
	Style    json.RawMessage `json:"style"`
}

// TemplateSaveResult references the persisted template artifact.
type TemplateSaveResult struct {
	TemplateID  string `json:"templateId"`
	ArtifactKey string `json:"artifactKey,omitempty"`
}

// ApplicationResult references the rendered (styled) user video.
type ApplicationResult struct {
	OutputRef string `json:"outputRef"`
}

// ExportResult references the final downloadable artifact.
type ExportResult struct {
	DownloadURL string        `json:"downloadUrl"`
	Quality     ExportQuality `json:"quality"`
	Watermark   bool          `json:"watermark"`
	SizeBytes   int64         `json:"sizeBytes,omitempty"`
}
