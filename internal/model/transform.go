package model

import "time"

// TransformStartRequest starts a full viral-style transform workflow.
// Exactly one of ViralURL (platform import) or ViralVideoRef (already
// uploaded clip) must be given.
type TransformStartRequest struct {
	ViralURL      string               `json:"viralUrl" validate:"omitempty,url"`
	Platform      Platform             `json:"platform" validate:"omitempty,oneof=tiktok instagram youtube"`
	ViralVideoRef string               `json:"viralVideoRef" validate:"omitempty"`
	TemplateName  string               `json:"templateName" validate:"omitempty,max=120"`
	Export        ExportOptionsRequest `json:"export" validate:"required"`
}

// ExportOptionsRequest carries export settings for the final stage.
type ExportOptionsRequest struct {
	Quality   ExportQuality `json:"quality" validate:"required,oneof=720p 1080p 4k"`
	Watermark bool          `json:"watermark"`
}

// TransformStartResponse acknowledges a queued workflow.
type TransformStartResponse struct {
	WorkflowID string         `json:"workflowId"`
	Status     WorkflowStatus `json:"status"`
	JobID      string         `json:"jobId"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// AttachVideoRequest supplies the user video once the template is ready.
type AttachVideoRequest struct {
	VideoRef string `json:"videoRef" validate:"required"`
}

// JobStatusResponse is the polled snapshot of one job.
type JobStatusResponse struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	SubStage    string     `json:"subStage,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// WorkflowStatusResponse is the polled snapshot of one workflow.
type WorkflowStatusResponse struct {
	ID         string             `json:"id"`
	Status     WorkflowStatus     `json:"status"`
	TemplateID string             `json:"templateId,omitempty"`
	StyledRef  string             `json:"styledRef,omitempty"`
	StageJobs  map[JobType]string `json:"stageJobs"`
	Error      *JobError          `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// TemplateResponse is the public view of a saved template.
type TemplateResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SourceVideo string    `json:"sourceVideo"`
	UsageCount  int64     `json:"usageCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
