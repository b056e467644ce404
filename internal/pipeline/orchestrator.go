package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/skify/api/internal/model"
)

// JobStore is the slice of the job store the orchestrator needs: it only
// ever creates stage jobs, never mutates them.
type JobStore interface {
	Create(ctx context.Context, typ model.JobType, workflowID string, metadata json.RawMessage) (*model.Job, error)
}

// WorkflowStore persists workflow state. Update applies fn atomically so
// stage transitions serialize per workflow even when two stage
// completions race.
type WorkflowStore interface {
	Create(ctx context.Context, wf *model.Workflow) (*model.Workflow, error)
	Get(ctx context.Context, id string) (*model.Workflow, error)
	Update(ctx context.Context, id string, fn func(*model.Workflow) (bool, error)) (*model.Workflow, error)
}

// TaskQueue hands a stage job to the background workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID string, taskType model.JobType, payload interface{}) error
}

// Orchestrator sequences the stages of a transform workflow. It holds no
// per-workflow goroutine: all state lives in the workflow store, and the
// orchestrator only reacts to stage-terminal events by enqueueing the next
// stage's task. Stage N+1 is never created before stage N is observed
// completed; a failed stage fails the whole workflow and nothing further
// is enqueued.
type Orchestrator struct {
	jobs      JobStore
	workflows WorkflowStore
	tasks     TaskQueue
}

func NewOrchestrator(jobs JobStore, workflows WorkflowStore, tasks TaskQueue) *Orchestrator {
	return &Orchestrator{jobs: jobs, workflows: workflows, tasks: tasks}
}

// StartParams describes a new workflow. Exactly one of ViralURL (with
// Platform) or ViralVideoRef must be set; the request validator enforces
// the field shapes, this layer enforces the closed sets.
type StartParams struct {
	ViralURL      string
	Platform      model.Platform
	ViralVideoRef string
	TemplateName  string
	Export        model.ExportOptions
}

// Start creates the workflow and enqueues its first stage (platform
// import, or analysis when the clip is already staged).
func (o *Orchestrator) Start(ctx context.Context, params StartParams) (*model.Workflow, *model.Job, error) {
	if err := validateStart(params); err != nil {
		return nil, nil, err
	}

	wf := &model.Workflow{
		Status:        model.WorkflowStatusAnalyzing,
		ViralVideoRef: params.ViralVideoRef,
		TemplateName:  params.TemplateName,
		ExportOptions: params.Export,
		StageJobs:     make(map[model.JobType]string),
	}

	var (
		jobType model.JobType
		payload interface{}
	)
	if params.ViralURL != "" {
		importType, ok := model.ImportJobType(params.Platform)
		if !ok {
			return nil, nil, NewError(KindValidation, fmt.Sprintf("unsupported platform %q", params.Platform))
		}
		wf.Status = model.WorkflowStatusImporting
		jobType = importType
		payload = model.ImportJobPayload{Platform: params.Platform, URL: params.ViralURL}
	} else {
		jobType = model.JobTypeViralAnalysis
		payload = model.AnalysisJobPayload{VideoRef: params.ViralVideoRef}
	}

	wf, err := o.workflows.Create(ctx, wf)
	if err != nil {
		return nil, nil, err
	}

	job, err := o.enqueueNext(ctx, wf, jobType, payload)
	if err != nil {
		return nil, nil, err
	}

	wf, err = o.workflows.Get(ctx, wf.ID)
	if err != nil {
		return nil, nil, err
	}
	return wf, job, nil
}

// AttachUserVideo records the user's target clip. If the template is
// already saved the application stage starts immediately; otherwise it
// starts as soon as template_save completes.
func (o *Orchestrator) AttachUserVideo(ctx context.Context, workflowID, videoRef string) (*model.Workflow, error) {
	if videoRef == "" {
		return nil, NewError(KindValidation, "videoRef is required")
	}

	ready := false
	wf, err := o.workflows.Update(ctx, workflowID, func(w *model.Workflow) (bool, error) {
		if w.Status.Terminal() {
			return false, NewError(KindValidation, "workflow already finished")
		}
		w.UserVideoRef = videoRef
		if w.Status == model.WorkflowStatusTemplateReady {
			w.Status = model.WorkflowStatusApplying
			ready = true
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if ready {
		if err := o.startApplication(ctx, wf); err != nil {
			return nil, err
		}
		return o.workflows.Get(ctx, workflowID)
	}
	return wf, nil
}

// OnJobTerminal is the completion hook the worker shell invokes after a
// job reaches a terminal status. Standalone jobs (no workflow) are
// ignored. Invocation is at-least-once safe: the status precondition in
// each transition makes a duplicate event a no-op.
func (o *Orchestrator) OnJobTerminal(ctx context.Context, job *model.Job) error {
	if job.WorkflowID == "" || !job.Status.Terminal() {
		return nil
	}

	if job.Status == model.JobStatusFailed {
		return o.failWorkflow(ctx, job)
	}

	switch job.Type {
	case model.JobTypeImportTikTok, model.JobTypeImportInstagram, model.JobTypeImportYouTube:
		return o.afterImport(ctx, job)
	case model.JobTypeViralAnalysis:
		return o.afterAnalysis(ctx, job)
	case model.JobTypeTemplateSave:
		return o.afterTemplateSave(ctx, job)
	case model.JobTypeTemplateApplication:
		return o.afterApplication(ctx, job)
	case model.JobTypeExport:
		return o.afterExport(ctx, job)
	default:
		log.Printf("[orchestrator] job %s has unknown type %s, ignoring", job.ID, job.Type)
		return nil
	}
}

func (o *Orchestrator) afterImport(ctx context.Context, job *model.Job) error {
	var result model.ImportResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return fmt.Errorf("failed to unmarshal import result for job %s: %w", job.ID, err)
	}

	wf, err := o.transition(ctx, job.WorkflowID, model.WorkflowStatusImporting, model.WorkflowStatusAnalyzing, func(w *model.Workflow) {
		w.ViralVideoRef = result.VideoRef
	})
	if err != nil || wf == nil {
		return err
	}

	_, err = o.enqueueNext(ctx, wf, model.JobTypeViralAnalysis, model.AnalysisJobPayload{VideoRef: result.VideoRef})
	return err
}

func (o *Orchestrator) afterAnalysis(ctx context.Context, job *model.Job) error {
	var result model.AnalysisResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return fmt.Errorf("failed to unmarshal analysis result for job %s: %w", job.ID, err)
	}

	wf, err := o.transition(ctx, job.WorkflowID, model.WorkflowStatusAnalyzing, model.WorkflowStatusSavingTemplate, nil)
	if err != nil || wf == nil {
		return err
	}

	_, err = o.enqueueNext(ctx, wf, model.JobTypeTemplateSave, model.TemplateSaveJobPayload{
		Name:     wf.TemplateName,
		VideoRef: result.VideoRef,
		Style:    result.Style,
	})
	return err
}

func (o *Orchestrator) afterTemplateSave(ctx context.Context, job *model.Job) error {
	var result model.TemplateSaveResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return fmt.Errorf("failed to unmarshal template result for job %s: %w", job.ID, err)
	}

	apply := false
	wf, err := o.workflows.Update(ctx, job.WorkflowID, func(w *model.Workflow) (bool, error) {
		if w.Status != model.WorkflowStatusSavingTemplate {
			return false, nil
		}
		w.TemplateID = result.TemplateID
		if w.UserVideoRef != "" {
			w.Status = model.WorkflowStatusApplying
			apply = true
		} else {
			w.Status = model.WorkflowStatusTemplateReady
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if apply {
		return o.startApplication(ctx, wf)
	}
	return nil
}

func (o *Orchestrator) afterApplication(ctx context.Context, job *model.Job) error {
	var result model.ApplicationResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return fmt.Errorf("failed to unmarshal application result for job %s: %w", job.ID, err)
	}

	wf, err := o.transition(ctx, job.WorkflowID, model.WorkflowStatusApplying, model.WorkflowStatusExporting, func(w *model.Workflow) {
		w.StyledRef = result.OutputRef
	})
	if err != nil || wf == nil {
		return err
	}

	_, err = o.enqueueNext(ctx, wf, model.JobTypeExport, model.ExportJobPayload{
		VideoRef:  result.OutputRef,
		Quality:   wf.ExportOptions.Quality,
		Watermark: wf.ExportOptions.Watermark,
	})
	return err
}

func (o *Orchestrator) afterExport(ctx context.Context, job *model.Job) error {
	_, err := o.transition(ctx, job.WorkflowID, model.WorkflowStatusExporting, model.WorkflowStatusCompleted, nil)
	return err
}

func (o *Orchestrator) failWorkflow(ctx context.Context, job *model.Job) error {
	_, err := o.workflows.Update(ctx, job.WorkflowID, func(w *model.Workflow) (bool, error) {
		if w.Status.Terminal() {
			return false, nil
		}
		w.Status = model.WorkflowStatusFailed
		w.Error = job.Error
		return true, nil
	})
	return err
}

// startApplication enqueues the template_application stage. The caller
// has already transitioned the workflow to applying.
func (o *Orchestrator) startApplication(ctx context.Context, wf *model.Workflow) error {
	_, err := o.enqueueNext(ctx, wf, model.JobTypeTemplateApplication, model.ApplicationJobPayload{
		TemplateID: wf.TemplateID,
		VideoRef:   wf.UserVideoRef,
	})
	return err
}

// transition advances the workflow from one status to the next, applying
// mutate under the same atomic update. Returns nil workflow (no error)
// when the precondition does not hold, which makes duplicate terminal
// events harmless.
func (o *Orchestrator) transition(ctx context.Context, workflowID string, from, to model.WorkflowStatus, mutate func(*model.Workflow)) (*model.Workflow, error) {
	advanced := false
	wf, err := o.workflows.Update(ctx, workflowID, func(w *model.Workflow) (bool, error) {
		if w.Status != from {
			return false, nil
		}
		w.Status = to
		if mutate != nil {
			mutate(w)
		}
		advanced = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !advanced {
		log.Printf("[orchestrator] workflow %s not in %s, skipping advance to %s", workflowID, from, to)
		return nil, nil
	}
	return wf, nil
}

// enqueueNext creates the stage job and hands its task to the queue,
// recording the job id on the workflow. If the stage cannot be enqueued
// the workflow is marked failed, since it can never make progress.
func (o *Orchestrator) enqueueNext(ctx context.Context, wf *model.Workflow, jobType model.JobType, payload interface{}) (*model.Job, error) {
	job, err := o.enqueueStage(ctx, wf.ID, jobType, payload)
	if err != nil {
		_, uerr := o.workflows.Update(ctx, wf.ID, func(w *model.Workflow) (bool, error) {
			if w.Status.Terminal() {
				return false, nil
			}
			w.Status = model.WorkflowStatusFailed
			w.Error = &model.JobError{Kind: string(KindStorage), Message: err.Error()}
			return true, nil
		})
		if uerr != nil {
			log.Printf("[orchestrator] failed to fail workflow %s: %v", wf.ID, uerr)
		}
		return nil, err
	}

	_, err = o.workflows.Update(ctx, wf.ID, func(w *model.Workflow) (bool, error) {
		w.StageJobs[jobType] = job.ID
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (o *Orchestrator) enqueueStage(ctx context.Context, workflowID string, jobType model.JobType, payload interface{}) (*model.Job, error) {
	metadata, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job, err := o.jobs.Create(ctx, jobType, workflowID, metadata)
	if err != nil {
		return nil, err
	}
	if err := o.tasks.Enqueue(ctx, job.ID, jobType, payload); err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] workflow %s: enqueued %s job %s", workflowID, jobType, job.ID)
	return job, nil
}

func validateStart(params StartParams) error {
	hasURL := params.ViralURL != ""
	hasRef := params.ViralVideoRef != ""
	switch {
	case hasURL && hasRef:
		return NewError(KindValidation, "viralUrl and viralVideoRef are mutually exclusive")
	case !hasURL && !hasRef:
		return NewError(KindValidation, "one of viralUrl or viralVideoRef is required")
	case hasURL && params.Platform == "":
		return NewError(KindValidation, "platform is required with viralUrl")
	}
	if !validQuality(params.Export.Quality) {
		return NewError(KindValidation, fmt.Sprintf("unsupported export quality %q", params.Export.Quality))
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
