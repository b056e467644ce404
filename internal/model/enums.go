package model

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job types (one per pipeline stage)
type JobType string

const (
	JobTypeViralAnalysis       JobType = "viral_analysis"
	JobTypeTemplateSave        JobType = "template_save"
	JobTypeTemplateApplication JobType = "template_application"
	JobTypeExport              JobType = "export"
	JobTypeImportTikTok        JobType = "import_tiktok"
	JobTypeImportInstagram     JobType = "import_instagram"
	JobTypeImportYouTube       JobType = "import_youtube"
)

var ValidJobTypes = []JobType{
	JobTypeViralAnalysis, JobTypeTemplateSave, JobTypeTemplateApplication,
	JobTypeExport, JobTypeImportTikTok, JobTypeImportInstagram,
	JobTypeImportYouTube,
}

// Source platforms for viral clip imports
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

var ValidPlatforms = []Platform{PlatformTikTok, PlatformInstagram, PlatformYouTube}

// ImportJobType maps a platform to its import task type.
func ImportJobType(p Platform) (JobType, bool) {
	switch p {
	case PlatformTikTok:
		return JobTypeImportTikTok, true
	case PlatformInstagram:
		return JobTypeImportInstagram, true
	case PlatformYouTube:
		return JobTypeImportYouTube, true
	default:
		return "", false
	}
}

// Export quality presets
type ExportQuality string

const (
	ExportQuality720p  ExportQuality = "720p"
	ExportQuality1080p ExportQuality = "1080p"
	ExportQuality4K    ExportQuality = "4k"
)

var ValidExportQualities = []ExportQuality{
	ExportQuality720p, ExportQuality1080p, ExportQuality4K,
}

// Workflow status (the end-to-end transform state machine)
type WorkflowStatus string

const (
	WorkflowStatusImporting      WorkflowStatus = "importing"
	WorkflowStatusAnalyzing      WorkflowStatus = "analyzing"
	WorkflowStatusSavingTemplate WorkflowStatus = "saving_template"
	WorkflowStatusTemplateReady  WorkflowStatus = "template_ready"
	WorkflowStatusApplying       WorkflowStatus = "applying"
	WorkflowStatusExporting      WorkflowStatus = "exporting"
	WorkflowStatusCompleted      WorkflowStatus = "completed"
	WorkflowStatusFailed         WorkflowStatus = "failed"
)

// Terminal reports whether the workflow admits no further transitions.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}
