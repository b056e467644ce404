package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

const workflowKeyPrefix = "workflow:"

// WorkflowStore persists workflow state. Update applies fn atomically so
// the orchestrator's stage transitions serialize per workflow even when
// two stage completions race.
type WorkflowStore interface {
	Create(ctx context.Context, wf *model.Workflow) (*model.Workflow, error)
	Get(ctx context.Context, id string) (*model.Workflow, error)
	Update(ctx context.Context, id string, fn func(*model.Workflow) (bool, error)) (*model.Workflow, error)
}

// RedisWorkflowStore backs workflows with JSON blobs and WATCH-based CAS.
type RedisWorkflowStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisWorkflowStore(client *redis.Client, retention time.Duration) *RedisWorkflowStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisWorkflowStore{client: client, retention: retention}
}

func (s *RedisWorkflowStore) Create(ctx context.Context, wf *model.Workflow) (*model.Workflow, error) {
	now := time.Now().UTC()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.StageJobs == nil {
		wf.StageJobs = make(map[model.JobType]string)
	}
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.Version = 1

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, workflowKeyPrefix+wf.ID, data, s.retention).Err(); err != nil {
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to persist workflow", err)
	}
	return wf, nil
}

func (s *RedisWorkflowStore) Get(ctx context.Context, id string) (*model.Workflow, error) {
	data, err := s.client.Get(ctx, workflowKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pipeline.ErrWorkflowNotFound
		}
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to read workflow", err)
	}
	var wf model.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}
	return &wf, nil
}

func (s *RedisWorkflowStore) Update(ctx context.Context, id string, fn func(*model.Workflow) (bool, error)) (*model.Workflow, error) {
	key := workflowKeyPrefix + id
	var updated *model.Workflow

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return pipeline.ErrWorkflowNotFound
			}
			return err
		}
		var wf model.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
		}
		dirty, err := fn(&wf)
		if err != nil {
			return err
		}
		updated = &wf
		if !dirty {
			return nil
		}
		wf.UpdatedAt = time.Now().UTC()
		wf.Version++
		out, err := json.Marshal(&wf)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.retention)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casAttempts; i++ {
		err = s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrWorkflowNotFound) {
			return nil, err
		}
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to update workflow "+id, err)
	}
	return updated, nil
}

// MemoryWorkflowStore is the in-process counterpart used in tests.
type MemoryWorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*model.Workflow
}

func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]*model.Workflow)}
}

func (s *MemoryWorkflowStore) Create(_ context.Context, wf *model.Workflow) (*model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.StageJobs == nil {
		wf.StageJobs = make(map[model.JobType]string)
	}
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.Version = 1
	s.workflows[wf.ID] = wf
	return copyWorkflow(wf), nil
}

func (s *MemoryWorkflowStore) Get(_ context.Context, id string) (*model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, pipeline.ErrWorkflowNotFound
	}
	return copyWorkflow(wf), nil
}

func (s *MemoryWorkflowStore) Update(_ context.Context, id string, fn func(*model.Workflow) (bool, error)) (*model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workflows[id]
	if !ok {
		return nil, pipeline.ErrWorkflowNotFound
	}
	// Mutate a copy so a callback that errors after touching the
	// workflow leaves the stored one untouched, same as the redis CAS.
	wf := copyWorkflow(stored)
	dirty, err := fn(wf)
	if err != nil {
		return nil, err
	}
	if dirty {
		wf.UpdatedAt = time.Now().UTC()
		wf.Version++
		s.workflows[id] = wf
	}
	return copyWorkflow(wf), nil
}

func copyWorkflow(wf *model.Workflow) *model.Workflow {
	cp := *wf
	cp.StageJobs = make(map[model.JobType]string, len(wf.StageJobs))
	for k, v := range wf.StageJobs {
		cp.StageJobs[k] = v
	}
	return &cp
}
