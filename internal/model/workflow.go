package model

import "time"

// Workflow tracks one end-to-end viral-style transform: import/analyze a
// viral clip, save its style as a template, apply the template to the
// user's video, export the result. Stage jobs run one at a time; the
// orchestrator records each stage's job id as it is enqueued.
type Workflow struct {
	ID            string             `json:"id"`
	Status        WorkflowStatus     `json:"status"`
	ViralVideoRef string             `json:"viralVideoRef,omitempty"`
	UserVideoRef  string             `json:"userVideoRef,omitempty"`
	TemplateID    string             `json:"templateId,omitempty"`
	TemplateName  string             `json:"templateName,omitempty"`
	StyledRef     string             `json:"styledRef,omitempty"`
	ExportOptions ExportOptions      `json:"exportOptions"`
	StageJobs     map[JobType]string `json:"stageJobs"`
	Error         *JobError          `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Version       int64              `json:"version"`
}

// ExportOptions are captured at workflow creation and consumed by the
// export stage once rendering finishes.
type ExportOptions struct {
	Quality   ExportQuality `json:"quality"`
	Watermark bool          `json:"watermark"`
}
