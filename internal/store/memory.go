package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

// MemoryJobStore is an in-process JobStore with the same semantics as the
// redis implementation. Used in tests and for local development without a
// redis instance.
type MemoryJobStore struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	cancelled map[string]bool
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:      make(map[string]*model.Job),
		cancelled: make(map[string]bool),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, typ model.JobType, workflowID string, metadata json.RawMessage) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job := &model.Job{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Type:       typ,
		Status:     model.JobStatusQueued,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	s.jobs[job.ID] = job
	return snapshot(job), nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, pipeline.ErrJobNotFound
	}
	return snapshot(job), nil
}

func (s *MemoryJobStore) MarkProcessing(_ context.Context, id string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return pipeline.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusProcessing
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	job.RetryCount = retryCount
	touch(job)
	return nil
}

func (s *MemoryJobStore) UpdateProgress(_ context.Context, id string, progress int, subStage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		log.Printf("[store] progress update for unknown job %s dropped", id)
		return nil
	}
	if job.Status.Terminal() {
		return nil
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	if subStage != "" {
		job.SubStage = subStage
	}
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusProcessing
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	touch(job)
	return nil
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return pipeline.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.Result = result
	job.Error = nil
	job.CompletedAt = &now
	touch(job)
	return nil
}

func (s *MemoryJobStore) Fail(_ context.Context, id string, jobErr model.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return pipeline.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.Error = &jobErr
	job.Result = nil
	job.CompletedAt = &now
	touch(job)
	return nil
}

func (s *MemoryJobStore) Cancel(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, pipeline.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil, pipeline.ErrAlreadyTerminal
	}
	if job.Status == model.JobStatusProcessing {
		s.cancelled[id] = true
	}
	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.Error = &model.JobError{Kind: string(pipeline.KindCancelled), Message: "cancelled by user"}
	job.CompletedAt = &now
	touch(job)
	return snapshot(job), nil
}

func (s *MemoryJobStore) CancelRequested(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[id], nil
}

func touch(job *model.Job) {
	job.UpdatedAt = time.Now().UTC()
	job.Version++
}

func snapshot(job *model.Job) *model.Job {
	cp := *job
	return &cp
}
