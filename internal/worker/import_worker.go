package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

// ImportWorker runs the platform import jobs (import_tiktok,
// import_instagram, import_youtube): it resolves a share URL into a
// staged video reference via the media fetcher.
type ImportWorker struct {
	runner  *Runner
	fetcher client.MediaFetcher

	StepDelay time.Duration
}

func NewImportWorker(runner *Runner, fetcher client.MediaFetcher) *ImportWorker {
	return &ImportWorker{runner: runner, fetcher: fetcher, StepDelay: 1 * time.Second}
}

// ProcessTask handles import task processing.
func (w *ImportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.runner.Run(ctx, t, w.handle)
}

func (w *ImportWorker) handle(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error) {
	var payload model.ImportJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.URL == "" {
		return nil, pipeline.NewError(pipeline.KindValidation, "import job missing url")
	}

	if err := report(10, "fetching"); err != nil {
		return nil, err
	}

	if w.fetcher == nil || !w.fetcher.IsConfigured() {
		return w.handleMock(ctx, payload, report)
	}

	video, err := w.fetcher.FetchVideo(ctx, string(payload.Platform), payload.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, pipeline.WrapError(pipeline.KindProvider, "video fetch failed", err)
	}

	if err := report(90, "staging"); err != nil {
		return nil, err
	}
	return model.ImportResult{
		VideoRef: video.VideoRef,
		Platform: string(payload.Platform),
		Duration: video.Duration,
	}, nil
}

func (w *ImportWorker) handleMock(ctx context.Context, payload model.ImportJobPayload, report ProgressFunc) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.StepDelay):
	}
	if err := report(90, "staging"); err != nil {
		return nil, err
	}
	return model.ImportResult{
		VideoRef: fmt.Sprintf("media/imports/%s/%s.mp4", payload.Platform, uuid.New().String()),
		Platform: string(payload.Platform),
		Duration: 14.5,
	}, nil
}
