package store

import (
	"context"
	"errors"
	"testing"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

func createTestWorkflow(t *testing.T, s *MemoryWorkflowStore) *model.Workflow {
	t.Helper()
	wf, err := s.Create(context.Background(), &model.Workflow{
		Status:        model.WorkflowStatusImporting,
		ViralVideoRef: "media/viral.mp4",
		ExportOptions: model.ExportOptions{Quality: model.ExportQuality1080p},
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

func TestWorkflowStore_CreateAndGet(t *testing.T) {
	s := NewMemoryWorkflowStore()
	wf := createTestWorkflow(t, s)

	got, err := s.Get(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Status != model.WorkflowStatusImporting {
		t.Errorf("expected status importing, got %s", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
	if got.StageJobs == nil {
		t.Error("expected stage jobs map to be initialized")
	}
}

func TestWorkflowStore_GetUnknown(t *testing.T) {
	s := NewMemoryWorkflowStore()
	if _, err := s.Get(context.Background(), "no-such-workflow"); !errors.Is(err, pipeline.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestWorkflowStore_UpdateAppliesAndBumpsVersion(t *testing.T) {
	s := NewMemoryWorkflowStore()
	wf := createTestWorkflow(t, s)

	updated, err := s.Update(context.Background(), wf.ID, func(w *model.Workflow) (bool, error) {
		w.Status = model.WorkflowStatusAnalyzing
		w.StageJobs[model.JobTypeViralAnalysis] = "job-1"
		return true, nil
	})
	if err != nil {
		t.Fatalf("update workflow: %v", err)
	}
	if updated.Status != model.WorkflowStatusAnalyzing {
		t.Errorf("expected status analyzing, got %s", updated.Status)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}

	got, err := s.Get(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.StageJobs[model.JobTypeViralAnalysis] != "job-1" {
		t.Error("expected stage job id to be persisted")
	}
}

func TestWorkflowStore_UpdateErrorDiscardsMutation(t *testing.T) {
	s := NewMemoryWorkflowStore()
	wf := createTestWorkflow(t, s)

	boom := errors.New("precondition failed")
	_, err := s.Update(context.Background(), wf.ID, func(w *model.Workflow) (bool, error) {
		w.Status = model.WorkflowStatusFailed
		w.StageJobs[model.JobTypeExport] = "job-x"
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := s.Get(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Status != model.WorkflowStatusImporting {
		t.Errorf("expected status importing after failed update, got %s", got.Status)
	}
	if _, ok := got.StageJobs[model.JobTypeExport]; ok {
		t.Error("expected failed update to leave stage jobs untouched")
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
}

func TestWorkflowStore_UpdateNotDirtyKeepsStoredState(t *testing.T) {
	s := NewMemoryWorkflowStore()
	wf := createTestWorkflow(t, s)

	_, err := s.Update(context.Background(), wf.ID, func(w *model.Workflow) (bool, error) {
		w.Status = model.WorkflowStatusFailed
		return false, nil
	})
	if err != nil {
		t.Fatalf("update workflow: %v", err)
	}

	got, err := s.Get(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Status != model.WorkflowStatusImporting {
		t.Errorf("expected clean update to be discarded, got status %s", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
}
