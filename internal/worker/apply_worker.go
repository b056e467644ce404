package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/store"
)

// ApplyWorker runs template_application jobs: it resolves the template,
// hands the style and target clip to the rendering provider, and tracks
// render progress.
type ApplyWorker struct {
	runner    *Runner
	templates store.TemplateStore
	provider  client.RenderingProvider

	StepDelay time.Duration
}

func NewApplyWorker(runner *Runner, templates store.TemplateStore, provider client.RenderingProvider) *ApplyWorker {
	return &ApplyWorker{runner: runner, templates: templates, provider: provider, StepDelay: 2 * time.Second}
}

// ProcessTask handles template_application task processing.
func (w *ApplyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.runner.Run(ctx, t, w.handle)
}

func (w *ApplyWorker) handle(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error) {
	var payload model.ApplicationJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.TemplateID == "" || payload.VideoRef == "" {
		return nil, pipeline.NewError(pipeline.KindValidation, "application job missing templateId or videoRef")
	}

	tpl, err := w.templates.Get(ctx, payload.TemplateID)
	if err != nil {
		if errors.Is(err, pipeline.ErrTemplateNotFound) {
			return nil, pipeline.NewError(pipeline.KindValidation, fmt.Sprintf("template %s does not exist", payload.TemplateID))
		}
		return nil, err
	}
	if err := w.templates.IncrementUsage(ctx, tpl.ID); err != nil {
		log.Printf("[worker] job %s: usage bump failed for template %s: %v", job.ID, tpl.ID, err)
	}

	if w.provider == nil || !w.provider.IsConfigured() {
		return w.handleMock(ctx, payload, report)
	}

	if err := report(5, "submitting"); err != nil {
		return nil, err
	}
	task, err := w.provider.SubmitRender(ctx, &client.RenderRequest{
		VideoRef: payload.VideoRef,
		Style:    tpl.Style,
	})
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindProvider, "render submit failed", err)
	}

	result, err := w.provider.PollRender(ctx, task.TaskID, 3*time.Second, func(percent int) {
		// Provider progress spans the 10-90 band; the edges belong to
		// submit and finalize.
		scaled := 10 + percent*80/100
		_ = report(scaled, "rendering")
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, pipeline.WrapError(pipeline.KindProvider, "render failed", err)
	}
	if result.OutputRef == "" {
		return nil, pipeline.NewError(pipeline.KindProvider, "provider returned no output reference")
	}

	if err := report(95, "finalizing"); err != nil {
		return nil, err
	}
	return model.ApplicationResult{OutputRef: result.OutputRef}, nil
}

func (w *ApplyWorker) handleMock(ctx context.Context, payload model.ApplicationJobPayload, report ProgressFunc) (interface{}, error) {
	for _, progress := range []int{25, 50, 75, 90} {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.StepDelay):
		}
		if err := report(progress, "rendering"); err != nil {
			return nil, err
		}
	}
	return model.ApplicationResult{
		OutputRef: fmt.Sprintf("media/styled/%s-styled.mp4", payload.TemplateID),
	}, nil
}
