package store

import (
	"context"
	"encoding/json"

	"github.com/skify/api/internal/model"
)

// JobStore is the single source of truth for job records. Implementations
// must serialize mutations per job id: concurrent writers to the same
// record go through an atomic read-modify-write, and progress never moves
// backwards regardless of write interleaving.
//
// Terminal states are sticky. Complete and Fail are no-ops when the job
// already finished, so at-least-once task delivery cannot flip a result.
type JobStore interface {
	// Create allocates an id, persists the record with status queued and
	// zero progress, and returns it.
	Create(ctx context.Context, typ model.JobType, workflowID string, metadata json.RawMessage) (*model.Job, error)

	// Get returns the current snapshot, or pipeline.ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// MarkProcessing moves a queued job to processing and records the
	// attempt count. Re-invocation on an already-processing job only
	// bumps the retry count.
	MarkProcessing(ctx context.Context, id string, retryCount int) error

	// UpdateProgress raises progress (never lowers it) and sets the
	// sub-stage label. An unknown id is logged and ignored: a job may be
	// evicted while its task is still in flight, and workers must not
	// crash over it. Terminal jobs are left untouched.
	UpdateProgress(ctx context.Context, id string, progress int, subStage string) error

	// Complete moves the job to completed with progress 100 and stores
	// the result. No-op if the job is already terminal.
	Complete(ctx context.Context, id string, result json.RawMessage) error

	// Fail moves the job to failed and stores the error. No-op if the
	// job is already terminal.
	Fail(ctx context.Context, id string, jobErr model.JobError) error

	// Cancel fails a non-terminal job with kind Cancelled. Returns
	// pipeline.ErrAlreadyTerminal if the job already finished. For a job
	// currently processing it additionally raises the cooperative
	// cancellation flag.
	Cancel(ctx context.Context, id string) (*model.Job, error)

	// CancelRequested reports whether cooperative cancellation was
	// requested for a processing job.
	CancelRequested(ctx context.Context, id string) (bool, error)
}
