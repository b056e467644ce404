package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

// ExportWorker runs export jobs: it has the rendering provider produce
// the final artifact at the requested quality and exposes a download URL,
// signed against object storage when configured.
type ExportWorker struct {
	runner   *Runner
	provider client.RenderingProvider
	storage  client.StorageClient

	StepDelay time.Duration
}

func NewExportWorker(runner *Runner, provider client.RenderingProvider, storage client.StorageClient) *ExportWorker {
	return &ExportWorker{runner: runner, provider: provider, storage: storage, StepDelay: 2 * time.Second}
}

// ProcessTask handles export task processing.
func (w *ExportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.runner.Run(ctx, t, w.handle)
}

func (w *ExportWorker) handle(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error) {
	var payload model.ExportJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.VideoRef == "" {
		return nil, pipeline.NewError(pipeline.KindValidation, "export job missing videoRef")
	}
	if !validExportQuality(payload.Quality) {
		// Create-time validation catches this for API submissions; a
		// stale or hand-crafted task still must not reach the provider.
		return nil, pipeline.NewError(pipeline.KindValidation, fmt.Sprintf("unsupported export quality %q", payload.Quality))
	}

	if w.provider == nil || !w.provider.IsConfigured() {
		return w.handleMock(ctx, payload, report)
	}

	if err := report(5, "submitting"); err != nil {
		return nil, err
	}
	task, err := w.provider.SubmitExport(ctx, &client.ExportRequest{
		VideoRef:  payload.VideoRef,
		Quality:   string(payload.Quality),
		Watermark: payload.Watermark,
	})
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindProvider, "export submit failed", err)
	}

	result, err := w.provider.PollRender(ctx, task.TaskID, 3*time.Second, func(percent int) {
		scaled := 10 + percent*75/100
		_ = report(scaled, "rendering")
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, pipeline.WrapError(pipeline.KindProvider, "export failed", err)
	}
	if result.OutputRef == "" {
		return nil, pipeline.NewError(pipeline.KindProvider, "provider returned no output reference")
	}

	downloadURL := result.OutputRef
	if w.storage != nil {
		if err := report(92, "publishing"); err != nil {
			return nil, err
		}
		signed, serr := w.storage.GetSignedURL(ctx, result.OutputRef, 24*time.Hour)
		if serr != nil {
			log.Printf("[worker] job %s: signing download URL failed: %v", job.ID, serr)
		} else {
			downloadURL = signed
		}
	}

	return model.ExportResult{
		DownloadURL: downloadURL,
		Quality:     payload.Quality,
		Watermark:   payload.Watermark,
		SizeBytes:   result.SizeBytes,
	}, nil
}

func (w *ExportWorker) handleMock(ctx context.Context, payload model.ExportJobPayload, report ProgressFunc) (interface{}, error) {
	for _, step := range []struct {
		progress int
		subStage string
	}{
		{30, "rendering"},
		{70, "rendering"},
		{92, "publishing"},
	} {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.StepDelay):
		}
		if err := report(step.progress, step.subStage); err != nil {
			return nil, err
		}
	}
	return model.ExportResult{
		DownloadURL: fmt.Sprintf("https://cdn.skify.app/exports/%s-%s.mp4", payload.Quality, time.Now().UTC().Format("20060102150405")),
		Quality:     payload.Quality,
		Watermark:   payload.Watermark,
		SizeBytes:   48_500_000,
	}, nil
}

func validExportQuality(q model.ExportQuality) bool {
	for _, v := range model.ValidExportQualities {
		if q == v {
			return true
		}
	}
	return false
}
