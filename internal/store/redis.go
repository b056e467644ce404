package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

const (
	jobKeyPrefix    = "job:"
	cancelKeyPrefix = "job:cancel:"

	// casAttempts bounds optimistic-locking retries before the write is
	// surfaced as a storage error.
	casAttempts = 8
)

// RedisJobStore persists job records as JSON blobs keyed by id. Mutations
// run inside a WATCH transaction so concurrent writers to the same record
// serialize through optimistic CAS instead of overwriting each other.
type RedisJobStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisJobStore(client *redis.Client, retention time.Duration) *RedisJobStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisJobStore{client: client, retention: retention}
}

func (s *RedisJobStore) Create(ctx context.Context, typ model.JobType, workflowID string, metadata json.RawMessage) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Type:       typ,
		Status:     model.JobStatusQueued,
		Progress:   0,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if err := s.save(ctx, job); err != nil {
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to persist job", err)
	}
	return job, nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pipeline.ErrJobNotFound
		}
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to read job", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) MarkProcessing(ctx context.Context, id string, retryCount int) error {
	return s.mutate(ctx, id, func(job *model.Job) (bool, error) {
		if job.Status.Terminal() {
			return false, nil
		}
		if job.Status == model.JobStatusQueued {
			job.Status = model.JobStatusProcessing
			now := time.Now().UTC()
			job.StartedAt = &now
		}
		job.RetryCount = retryCount
		return true, nil
	})
}

func (s *RedisJobStore) UpdateProgress(ctx context.Context, id string, progress int, subStage string) error {
	err := s.mutate(ctx, id, func(job *model.Job) (bool, error) {
		if job.Status.Terminal() {
			return false, nil
		}
		// Monotonic: a late writer can refresh the sub-stage label but
		// never pull progress back.
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
		return true, nil
	})
	if errors.Is(err, pipeline.ErrJobNotFound) {
		log.Printf("[store] progress update for unknown job %s dropped", id)
		return nil
	}
	return err
}

func (s *RedisJobStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	return s.mutate(ctx, id, func(job *model.Job) (bool, error) {
		if job.Status.Terminal() {
			return false, nil
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.Result = result
		job.Error = nil
		job.CompletedAt = &now
		return true, nil
	})
}

func (s *RedisJobStore) Fail(ctx context.Context, id string, jobErr model.JobError) error {
	return s.mutate(ctx, id, func(job *model.Job) (bool, error) {
		if job.Status.Terminal() {
			return false, nil
		}
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.Error = &jobErr
		job.Result = nil
		job.CompletedAt = &now
		return true, nil
	})
}

func (s *RedisJobStore) Cancel(ctx context.Context, id string) (*model.Job, error) {
	var wasProcessing bool
	err := s.mutate(ctx, id, func(job *model.Job) (bool, error) {
		if job.Status.Terminal() {
			return false, pipeline.ErrAlreadyTerminal
		}
		wasProcessing = job.Status == model.JobStatusProcessing
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.Error = &model.JobError{Kind: string(pipeline.KindCancelled), Message: "cancelled by user"}
		job.CompletedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if wasProcessing {
		// Best-effort flag for the in-flight handler to observe.
		if err := s.client.Set(ctx, cancelKeyPrefix+id, "1", s.retention).Err(); err != nil {
			log.Printf("[store] failed to raise cancel flag for job %s: %v", id, err)
		}
	}
	return s.Get(ctx, id)
}

func (s *RedisJobStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, cancelKeyPrefix+id).Result()
	if err != nil {
		return false, pipeline.WrapError(pipeline.KindStorage, "failed to read cancel flag", err)
	}
	return n > 0, nil
}

// mutate runs fn inside a WATCH transaction on the job key. fn returns
// whether the record changed; returning false commits nothing. The
// transaction retries on contention up to casAttempts times.
func (s *RedisJobStore) mutate(ctx context.Context, id string, fn func(*model.Job) (bool, error)) error {
	key := jobKeyPrefix + id
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return pipeline.ErrJobNotFound
			}
			return err
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
		}
		dirty, err := fn(&job)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}
		job.UpdatedAt = time.Now().UTC()
		job.Version++
		out, err := json.Marshal(&job)
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
	if err == nil || errors.Is(err, pipeline.ErrJobNotFound) || errors.Is(err, pipeline.ErrAlreadyTerminal) {
		return err
	}
	return pipeline.WrapError(pipeline.KindStorage, "failed to update job "+id, err)
}

func (s *RedisJobStore) save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, jobKeyPrefix+job.ID, data, s.retention).Err()
}
