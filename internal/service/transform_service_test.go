package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/queue"
	"github.com/skify/api/internal/store"
)

type recordingQueue struct {
	enqueued []string
}

func (q *recordingQueue) Enqueue(_ context.Context, jobID string, _ model.JobType, _ interface{}) error {
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

var _ queue.TaskQueue = (*recordingQueue)(nil)

func newService() (*TransformService, *store.MemoryJobStore, *recordingQueue) {
	jobs := store.NewMemoryJobStore()
	workflows := store.NewMemoryWorkflowStore()
	q := &recordingQueue{}
	orch := pipeline.NewOrchestrator(jobs, workflows, q)
	return NewTransformService(jobs, workflows, orch, q), jobs, q
}

func TestSubmitJob_Valid(t *testing.T) {
	svc, _, q := newService()

	job, err := svc.SubmitJob(context.Background(), model.JobTypeViralAnalysis, json.RawMessage(`{"videoRef":"media/viral.mp4"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != model.JobStatusQueued {
		t.Errorf("expected queued, got %s", job.Status)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != job.ID {
		t.Errorf("expected one enqueued task for %s, got %v", job.ID, q.enqueued)
	}
}

func TestSubmitJob_RejectsBadMetadata(t *testing.T) {
	svc, _, q := newService()
	ctx := context.Background()

	cases := []struct {
		name     string
		typ      model.JobType
		metadata string
	}{
		{"analysis missing videoRef", model.JobTypeViralAnalysis, `{}`},
		{"malformed json", model.JobTypeViralAnalysis, `{"videoRef":`},
		{"empty metadata", model.JobTypeViralAnalysis, ``},
		{"template missing style", model.JobTypeTemplateSave, `{"videoRef":"x"}`},
		{"application missing template", model.JobTypeTemplateApplication, `{"videoRef":"x"}`},
		{"export bad quality", model.JobTypeExport, `{"videoRef":"x","quality":"8k"}`},
		{"export missing videoRef", model.JobTypeExport, `{"quality":"720p"}`},
		{"import missing url", model.JobTypeImportTikTok, `{"platform":"tiktok"}`},
		{"unknown type", model.JobType("remix"), `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitJob(ctx, tc.typ, json.RawMessage(tc.metadata))
			var perr *pipeline.Error
			if !errors.As(err, &perr) || perr.Kind != pipeline.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if len(q.enqueued) != 0 {
		t.Errorf("rejected submissions must not enqueue, got %d", len(q.enqueued))
	}
}

func TestGetJobResult_GatesOnCompletion(t *testing.T) {
	svc, jobs, _ := newService()
	ctx := context.Background()

	job, err := svc.SubmitJob(ctx, model.JobTypeViralAnalysis, json.RawMessage(`{"videoRef":"media/viral.mp4"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.GetJobResult(ctx, job.ID); !errors.Is(err, ErrJobNotCompleted) {
		t.Errorf("expected ErrJobNotCompleted for queued job, got %v", err)
	}

	want := json.RawMessage(`{"videoRef":"media/viral.mp4","style":{}}`)
	if err := jobs.Complete(ctx, job.ID, want); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := svc.GetJobResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("expected stored result, got %s", got)
	}
}

func TestGetJobStatus_UnknownJob(t *testing.T) {
	svc, _, _ := newService()

	_, err := svc.GetJobStatus(context.Background(), "no-such-job")
	if !errors.Is(err, pipeline.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCancelJob(t *testing.T) {
	svc, jobs, _ := newService()
	ctx := context.Background()

	job, err := svc.SubmitJob(ctx, model.JobTypeExport, json.RawMessage(`{"videoRef":"media/styled.mp4","quality":"720p"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	resp, err := svc.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !resp.Success || resp.Status != model.JobStatusFailed {
		t.Errorf("unexpected cancel response %+v", resp)
	}

	// Cancelling a finished job reports the terminal conflict.
	if _, err := svc.CancelJob(ctx, job.ID); !errors.Is(err, pipeline.ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal, got %v", err)
	}

	got, _ := jobs.Get(ctx, job.ID)
	if got.Error == nil || got.Error.Kind != string(pipeline.KindCancelled) {
		t.Errorf("expected cancelled kind, got %+v", got.Error)
	}
}

func TestStartTransform_SnapshotFields(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	started, err := svc.StartTransform(ctx, &model.TransformStartRequest{
		ViralVideoRef: "media/viral.mp4",
		Export:        model.ExportOptionsRequest{Quality: model.ExportQuality720p},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.WorkflowID == "" || started.JobID == "" {
		t.Fatalf("expected ids in response, got %+v", started)
	}
	if started.Status != model.WorkflowStatusAnalyzing {
		t.Errorf("expected analyzing, got %s", started.Status)
	}

	snap, err := svc.GetWorkflow(ctx, started.WorkflowID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if snap.StageJobs[model.JobTypeViralAnalysis] != started.JobID {
		t.Errorf("expected stage job recorded, got %v", snap.StageJobs)
	}
}
