package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/queue"
	"github.com/skify/api/internal/store"
)

// TransformService is the surface the HTTP layer calls: it starts
// workflows, submits standalone stage jobs, answers status polls, and
// cancels work. All durable state lives behind the stores; the service
// itself is stateless.
type TransformService struct {
	jobs         store.JobStore
	workflows    store.WorkflowStore
	orchestrator *pipeline.Orchestrator
	tasks        queue.TaskQueue
}

func NewTransformService(jobs store.JobStore, workflows store.WorkflowStore, orchestrator *pipeline.Orchestrator, tasks queue.TaskQueue) *TransformService {
	return &TransformService{
		jobs:         jobs,
		workflows:    workflows,
		orchestrator: orchestrator,
		tasks:        tasks,
	}
}

// StartTransform begins a full viral-style transform workflow.
func (s *TransformService) StartTransform(ctx context.Context, req *model.TransformStartRequest) (*model.TransformStartResponse, error) {
	wf, job, err := s.orchestrator.Start(ctx, pipeline.StartParams{
		ViralURL:      req.ViralURL,
		Platform:      req.Platform,
		ViralVideoRef: req.ViralVideoRef,
		TemplateName:  req.TemplateName,
		Export: model.ExportOptions{
			Quality:   req.Export.Quality,
			Watermark: req.Export.Watermark,
		},
	})
	if err != nil {
		return nil, err
	}
	return &model.TransformStartResponse{
		WorkflowID: wf.ID,
		Status:     wf.Status,
		JobID:      job.ID,
		CreatedAt:  wf.CreatedAt,
	}, nil
}

// AttachVideo supplies the user video for the application stage.
func (s *TransformService) AttachVideo(ctx context.Context, workflowID, videoRef string) (*model.WorkflowStatusResponse, error) {
	wf, err := s.orchestrator.AttachUserVideo(ctx, workflowID, videoRef)
	if err != nil {
		return nil, err
	}
	return workflowSnapshot(wf), nil
}

// GetWorkflow returns the polled snapshot of one workflow.
func (s *TransformService) GetWorkflow(ctx context.Context, id string) (*model.WorkflowStatusResponse, error) {
	wf, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflowSnapshot(wf), nil
}

// SubmitJob creates and enqueues one standalone stage job outside any
// workflow. Metadata is validated synchronously; a bad payload never
// reaches the queue.
func (s *TransformService) SubmitJob(ctx context.Context, typ model.JobType, metadata json.RawMessage) (*model.Job, error) {
	if err := validateJobMetadata(typ, metadata); err != nil {
		return nil, err
	}
	job, err := s.jobs.Create(ctx, typ, "", metadata)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Enqueue(ctx, job.ID, typ, json.RawMessage(metadata)); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJobStatus returns the polled snapshot of one job. A missing job is
// pipeline.ErrJobNotFound, distinct from a job that exists but has not
// started.
func (s *TransformService) GetJobStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		ID:          job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Progress:    job.Progress,
		SubStage:    job.SubStage,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		RetryCount:  job.RetryCount,
	}, nil
}

// ErrJobNotCompleted flags a result request for an unfinished job.
var ErrJobNotCompleted = fmt.Errorf("job not completed")

// GetJobResult returns the result payload of a completed job.
func (s *TransformService) GetJobResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	return job.Result, nil
}

// CancelJob aborts a queued job immediately; a processing job is asked to
// stop at its next progress checkpoint.
func (s *TransformService) CancelJob(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	job, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.orchestrator.OnJobTerminal(ctx, job); err != nil {
		return nil, err
	}
	return &model.CancelResponse{
		Success: true,
		JobID:   job.ID,
		Status:  job.Status,
	}, nil
}

func workflowSnapshot(wf *model.Workflow) *model.WorkflowStatusResponse {
	return &model.WorkflowStatusResponse{
		ID:         wf.ID,
		Status:     wf.Status,
		TemplateID: wf.TemplateID,
		StyledRef:  wf.StyledRef,
		StageJobs:  wf.StageJobs,
		Error:      wf.Error,
		CreatedAt:  wf.CreatedAt,
		UpdatedAt:  wf.UpdatedAt,
	}
}

// validateJobMetadata enforces each stage's input contract at enqueue
// time so malformed work is rejected synchronously, never retried.
func validateJobMetadata(typ model.JobType, metadata json.RawMessage) error {
	switch typ {
	case model.JobTypeViralAnalysis:
		var p model.AnalysisJobPayload
		if err := unmarshalStrictish(metadata, &p); err != nil {
			return err
		}
		if p.VideoRef == "" {
			return pipeline.NewError(pipeline.KindValidation, "videoRef is required")
		}
	case model.JobTypeTemplateSave:
		var p model.TemplateSaveJobPayload
		if err := unmarshalStrictish(metadata, &p); err != nil {
			return err
		}
		if len(p.Style) == 0 {
			return pipeline.NewError(pipeline.KindValidation, "style is required")
		}
	case model.JobTypeTemplateApplication:
		var p model.ApplicationJobPayload
		if err := unmarshalStrictish(metadata, &p); err != nil {
			return err
		}
		if p.TemplateID == "" || p.VideoRef == "" {
			return pipeline.NewError(pipeline.KindValidation, "templateId and videoRef are required")
		}
	case model.JobTypeExport:
		var p model.ExportJobPayload
		if err := unmarshalStrictish(metadata, &p); err != nil {
			return err
		}
		if p.VideoRef == "" {
			return pipeline.NewError(pipeline.KindValidation, "videoRef is required")
		}
		if !validQuality(p.Quality) {
			return pipeline.NewError(pipeline.KindValidation, fmt.Sprintf("unsupported export quality %q", p.Quality))
		}
	case model.JobTypeImportTikTok, model.JobTypeImportInstagram, model.JobTypeImportYouTube:
		var p model.ImportJobPayload
		if err := unmarshalStrictish(metadata, &p); err != nil {
			return err
		}
		if p.URL == "" {
			return pipeline.NewError(pipeline.KindValidation, "url is required")
		}
	default:
		return pipeline.NewError(pipeline.KindValidation, fmt.Sprintf("unknown job type %q", typ))
	}
	return nil
}

func unmarshalStrictish(metadata json.RawMessage, v interface{}) error {
	if len(metadata) == 0 {
		return pipeline.NewError(pipeline.KindValidation, "metadata is required")
	}
	if err := json.Unmarshal(metadata, v); err != nil {
		return pipeline.WrapError(pipeline.KindValidation, "malformed metadata", err)
	}
	return nil
}

func validQuality(q model.ExportQuality) bool {
	for _, v := range model.ValidExportQualities {
		if q == v {
			return true
		}
	}
	return false
}
