package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

// Queue names. Analysis-bound work (imports, style extraction, template
// persistence) and render-bound work (application, export) are weighted
// separately since their resource profiles differ.
const (
	QueueAnalysis = "analysis"
	QueueRender   = "render"
)

// MaxAttempts is the per-task retry ceiling, after which the job record
// goes terminal failed.
const MaxAttempts = 3

// RetryBackoffBase is the first retry delay; each subsequent attempt
// doubles it.
const RetryBackoffBase = 2 * time.Second

// TaskEnvelope is the wire shape of every queued task.
type TaskEnvelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// TaskQueue enqueues one task per job. Delivery is at-least-once: a task
// leased by a crashed worker reappears after its lease expires, so
// handlers tolerate re-invocation.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID string, taskType model.JobType, payload interface{}) error
}

// AsynqQueue implements TaskQueue on a redis-backed asynq client.
type AsynqQueue struct {
	client    *asynq.Client
	retention time.Duration
}

func NewAsynqQueue(client *asynq.Client, retention time.Duration) *AsynqQueue {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &AsynqQueue{client: client, retention: retention}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, jobID string, taskType model.JobType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	data, err := json.Marshal(TaskEnvelope{JobID: jobID, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	task := asynq.NewTask(string(taskType), data)
	opts := []asynq.Option{
		asynq.Queue(queueFor(taskType)),
		asynq.MaxRetry(MaxAttempts),
		asynq.Timeout(TimeoutFor(taskType)),
		asynq.Retention(q.retention),
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return pipeline.WrapError(pipeline.KindStorage, "failed to enqueue task", err)
	}
	return nil
}

func queueFor(taskType model.JobType) string {
	switch taskType {
	case model.JobTypeTemplateApplication, model.JobTypeExport:
		return QueueRender
	default:
		return QueueAnalysis
	}
}

// TimeoutFor returns the wall-clock budget for one attempt of the given
// task type. The worker server treats an expired budget as a retryable
// handler failure.
func TimeoutFor(taskType model.JobType) time.Duration {
	switch taskType {
	case model.JobTypeViralAnalysis:
		return 120 * time.Second
	case model.JobTypeTemplateApplication:
		return 300 * time.Second
	case model.JobTypeExport:
		return 180 * time.Second
	case model.JobTypeTemplateSave:
		return 30 * time.Second
	case model.JobTypeImportTikTok, model.JobTypeImportInstagram, model.JobTypeImportYouTube:
		return 90 * time.Second
	default:
		return 60 * time.Second
	}
}

// RetryDelay implements asynq.RetryDelayFunc: exponential backoff doubling
// from RetryBackoffBase (2s, 4s, 8s, ...). asynq passes the number of
// times the task has already been retried, so n is 0 on the first failure.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	return RetryBackoffBase << n
}

// Queues returns the weighted queue map for the asynq server config.
func Queues() map[string]int {
	return map[string]int{
		QueueAnalysis: 6,
		QueueRender:   4,
	}
}
