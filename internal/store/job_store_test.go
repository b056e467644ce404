package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

func createTestJob(t *testing.T, s *MemoryJobStore) *model.Job {
	t.Helper()
	job, err := s.Create(context.Background(), model.JobTypeViralAnalysis, "wf-1", json.RawMessage(`{"videoRef":"media/viral.mp4"}`))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestJobStore_CreateAndGet(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	job := createTestJob(t, s)
	if job.ID == "" {
		t.Fatal("expected non-empty job ID")
	}
	if job.Status != model.JobStatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if job.Version != 1 {
		t.Errorf("expected version 1, got %d", job.Version)
	}

	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.WorkflowID != "wf-1" {
		t.Errorf("expected workflow wf-1, got %s", got.WorkflowID)
	}
}

func TestJobStore_GetUnknown(t *testing.T) {
	s := NewMemoryJobStore()

	_, err := s.Get(context.Background(), "no-such-job")
	if !errors.Is(err, pipeline.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStore_ProgressIsMonotonic(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.UpdateProgress(ctx, job.ID, 60, "visual_analysis"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	// A stale report from a slower worker must not rewind progress.
	if err := s.UpdateProgress(ctx, job.ID, 30, "visual_analysis"); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	got, _ := s.Get(ctx, job.ID)
	if got.Progress != 60 {
		t.Errorf("expected progress 60, got %d", got.Progress)
	}
	if got.SubStage != "visual_analysis" {
		t.Errorf("expected sub-stage visual_analysis, got %s", got.SubStage)
	}
}

func TestJobStore_ConcurrentProgress(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	var wg sync.WaitGroup
	for _, p := range []int{10, 80, 40, 25, 95, 5} {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			if err := s.UpdateProgress(ctx, job.ID, p, ""); err != nil {
				t.Errorf("update progress: %v", err)
			}
		}(p)
	}
	wg.Wait()

	got, _ := s.Get(ctx, job.ID)
	if got.Progress != 95 {
		t.Errorf("expected progress 95 after concurrent updates, got %d", got.Progress)
	}
}

func TestJobStore_ProgressForUnknownJobIsDropped(t *testing.T) {
	s := NewMemoryJobStore()

	// Unknown ids are logged and dropped, never an error.
	if err := s.UpdateProgress(context.Background(), "no-such-job", 50, ""); err != nil {
		t.Errorf("expected nil error for unknown job, got %v", err)
	}
}

func TestJobStore_CompleteIsIdempotent(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	result := json.RawMessage(`{"styleJson":{}}`)
	if err := s.Complete(ctx, job.ID, result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A redelivered task completing again must be a no-op.
	if err := s.Complete(ctx, job.ID, json.RawMessage(`{"other":true}`)); err != nil {
		t.Fatalf("second complete: %v", err)
	}

	got, _ := s.Get(ctx, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if string(got.Result) != string(result) {
		t.Errorf("first result must win, got %s", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
}

func TestJobStore_FailDoesNotOverrideCompleted(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.Complete(ctx, job.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.Fail(ctx, job.ID, model.JobError{Kind: "provider_error", Message: "late failure"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := s.Get(ctx, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Errorf("terminal state must be sticky, got %s", got.Status)
	}
	if got.Error != nil {
		t.Errorf("expected no error on completed job, got %+v", got.Error)
	}
}

func TestJobStore_Fail(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.Fail(ctx, job.ID, model.JobError{Kind: "timeout", Message: "analysis timed out"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := s.Get(ctx, job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.Error == nil || got.Error.Kind != "timeout" {
		t.Errorf("expected timeout error, got %+v", got.Error)
	}
}

func TestJobStore_MarkProcessing(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.MarkProcessing(ctx, job.ID, 0); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	got, _ := s.Get(ctx, job.ID)
	if got.Status != model.JobStatusProcessing {
		t.Errorf("expected status processing, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}

	// A retry records the attempt count without resetting startedAt.
	started := *got.StartedAt
	if err := s.MarkProcessing(ctx, job.ID, 2); err != nil {
		t.Fatalf("mark processing retry: %v", err)
	}
	got, _ = s.Get(ctx, job.ID)
	if got.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", got.RetryCount)
	}
	if !got.StartedAt.Equal(started) {
		t.Error("startedAt must not reset on retry")
	}
}

func TestJobStore_CancelQueuedJob(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	cancelled, err := s.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.JobStatusFailed {
		t.Errorf("expected status failed, got %s", cancelled.Status)
	}
	if cancelled.Error == nil || cancelled.Error.Kind != string(pipeline.KindCancelled) {
		t.Errorf("expected cancelled error kind, got %+v", cancelled.Error)
	}

	// Queued jobs never started, so no cancel flag is raised.
	flagged, _ := s.CancelRequested(ctx, job.ID)
	if flagged {
		t.Error("queued job should not raise a cancel flag")
	}
}

func TestJobStore_CancelProcessingJobRaisesFlag(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.MarkProcessing(ctx, job.ID, 0); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if _, err := s.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	flagged, err := s.CancelRequested(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel requested: %v", err)
	}
	if !flagged {
		t.Error("expected cancel flag for in-flight job")
	}
}

func TestJobStore_CancelTerminalJob(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	if err := s.Complete(ctx, job.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := s.Cancel(ctx, job.ID)
	if !errors.Is(err, pipeline.ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestJobStore_VersionIncrements(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := createTestJob(t, s)

	_ = s.MarkProcessing(ctx, job.ID, 0)
	_ = s.UpdateProgress(ctx, job.ID, 40, "")
	_ = s.Complete(ctx, job.ID, json.RawMessage(`{}`))

	got, _ := s.Get(ctx, job.ID)
	if got.Version != 4 {
		t.Errorf("expected version 4 after three mutations, got %d", got.Version)
	}
}
