package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/queue"
	"github.com/skify/api/internal/store"
	"github.com/skify/api/internal/websocket"
)

// ProgressFunc reports intermediate handler progress. It is the only
// storage access a stage handler gets: handlers never touch the job store
// directly. The returned error is non-nil when cooperative cancellation
// was requested, and the handler should stop with it.
type ProgressFunc func(percent int, subStage string) error

// HandlerFunc performs one pipeline stage for one job and returns the
// result payload to persist. Errors crossing this boundary are classified
// into the pipeline taxonomy by the runner.
type HandlerFunc func(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error)

// CompletionHook receives jobs that just went terminal. The orchestrator
// implements it to advance workflows.
type CompletionHook interface {
	OnJobTerminal(ctx context.Context, job *model.Job) error
}

// Runner is the shared execution shell around every stage handler. It
// owns the job-record bookkeeping: marking processing, threading the
// progress callback, translating failures, honoring the retry budget, and
// firing the completion hook. Tasks are delivered at least once, so a
// task whose job is already terminal is acknowledged without re-running.
type Runner struct {
	jobs store.JobStore
	hub  *websocket.Hub
	hook CompletionHook
}

func NewRunner(jobs store.JobStore, hub *websocket.Hub, hook CompletionHook) *Runner {
	return &Runner{jobs: jobs, hub: hub, hook: hook}
}

// Run executes handle for the task's job.
func (r *Runner) Run(ctx context.Context, t *asynq.Task, handle HandlerFunc) error {
	var envelope queue.TaskEnvelope
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal task envelope: %w", asynq.SkipRetry)
	}
	jobID := envelope.JobID

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			// Evicted while queued. Nothing to report against, drop it.
			log.Printf("[worker] job %s no longer in store, dropping task", jobID)
			return nil
		}
		return err
	}
	if job.Status.Terminal() {
		// Redelivery of an already-finished job (lease expiry after the
		// record was written, or a duplicate enqueue). First outcome wins.
		log.Printf("[worker] job %s already %s, skipping", jobID, job.Status)
		return nil
	}

	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if err := r.jobs.MarkProcessing(ctx, jobID, retryCount); err != nil {
		return err
	}
	log.Printf("[worker] job %s type=%s attempt=%d starting", jobID, job.Type, retryCount)

	result, err := handle(ctx, job, r.progressFunc(ctx, jobID))
	if err != nil {
		return r.handleFailure(ctx, jobID, retryCount, maxRetry, err)
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return r.handleFailure(ctx, jobID, retryCount, maxRetry,
			pipeline.WrapError(pipeline.KindProvider, "failed to marshal result", err))
	}
	if err := r.jobs.Complete(ctx, jobID, resultBytes); err != nil {
		return err
	}
	if r.hub != nil {
		r.hub.BroadcastComplete(jobID, result)
	}
	log.Printf("[worker] job %s completed", jobID)
	return r.fireHook(ctx, jobID)
}

// progressFunc builds the callback threaded into handlers. Each call
// writes through the store's monotonic progress update and doubles as the
// cooperative cancellation checkpoint.
func (r *Runner) progressFunc(ctx context.Context, jobID string) ProgressFunc {
	return func(percent int, subStage string) error {
		cancelled, err := r.jobs.CancelRequested(ctx, jobID)
		if err != nil {
			log.Printf("[worker] job %s cancel check failed: %v", jobID, err)
		} else if cancelled {
			return pipeline.NewError(pipeline.KindCancelled, "cancelled during processing")
		}
		if err := r.jobs.UpdateProgress(ctx, jobID, percent, subStage); err != nil {
			log.Printf("[worker] job %s progress update failed: %v", jobID, err)
		}
		if r.hub != nil {
			r.hub.BroadcastProgress(jobID, percent, model.JobStatusProcessing, subStage)
		}
		return nil
	}
}

// handleFailure maps a handler error onto the retry policy. Retryable
// errors bounce back to asynq until the attempt budget is spent, then the
// job goes terminal failed. Non-retryable errors fail the job immediately
// and skip further delivery.
func (r *Runner) handleFailure(ctx context.Context, jobID string, retryCount, maxRetry int, err error) error {
	perr := pipeline.Classify(err)
	if errors.Is(err, context.DeadlineExceeded) {
		perr = pipeline.WrapError(pipeline.KindTimeout, "stage exceeded its time budget", err)
	}

	jobErr := model.JobError{Kind: string(perr.Kind), Message: perr.Message}

	if !perr.Retryable() {
		if ferr := r.jobs.Fail(ctx, jobID, jobErr); ferr != nil {
			log.Printf("[worker] job %s: failed to record terminal error: %v", jobID, ferr)
		}
		r.broadcastError(jobID, jobErr)
		if herr := r.fireHook(ctx, jobID); herr != nil {
			log.Printf("[worker] job %s completion hook error: %v", jobID, herr)
		}
		log.Printf("[worker] job %s failed (%s), not retrying", jobID, perr.Kind)
		return fmt.Errorf("%v: %w", perr, asynq.SkipRetry)
	}

	if retryCount >= maxRetry {
		jobErr.Message = fmt.Sprintf("%s (retries exhausted after %d attempts)", perr.Message, retryCount+1)
		if ferr := r.jobs.Fail(ctx, jobID, jobErr); ferr != nil {
			log.Printf("[worker] job %s: failed to record terminal error: %v", jobID, ferr)
		}
		r.broadcastError(jobID, jobErr)
		if herr := r.fireHook(ctx, jobID); herr != nil {
			log.Printf("[worker] job %s completion hook error: %v", jobID, herr)
		}
		log.Printf("[worker] job %s failed (%s), retries exhausted", jobID, perr.Kind)
		return perr
	}

	log.Printf("[worker] job %s attempt %d failed (%s), will retry", jobID, retryCount, perr.Kind)
	return perr
}

func (r *Runner) fireHook(ctx context.Context, jobID string) error {
	if r.hook == nil {
		return nil
	}
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return r.hook.OnJobTerminal(ctx, job)
}

func (r *Runner) broadcastError(jobID string, jobErr model.JobError) {
	if r.hub != nil {
		r.hub.BroadcastError(jobID, jobErr.Kind, jobErr.Message)
	}
}

// decodePayload unmarshals the job metadata into the stage's payload
// type, reporting malformed metadata as a non-retryable validation error.
func decodePayload(job *model.Job, v interface{}) error {
	if err := json.Unmarshal(job.Metadata, v); err != nil {
		return pipeline.WrapError(pipeline.KindValidation, "malformed job metadata", err)
	}
	return nil
}
