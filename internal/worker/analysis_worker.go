package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

// AnalysisWorker runs viral_analysis jobs: it hands the clip to the
// analysis provider and reports coarse checkpoints as the provider moves
// through its visual/audio/text sub-phases.
type AnalysisWorker struct {
	runner   *Runner
	provider client.AnalysisProvider

	// StepDelay paces the mock path used when no provider is configured.
	StepDelay time.Duration
}

func NewAnalysisWorker(runner *Runner, provider client.AnalysisProvider) *AnalysisWorker {
	return &AnalysisWorker{runner: runner, provider: provider, StepDelay: 2 * time.Second}
}

// ProcessTask handles viral_analysis task processing.
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.runner.Run(ctx, t, w.handle)
}

func (w *AnalysisWorker) handle(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error) {
	var payload model.AnalysisJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.VideoRef == "" {
		return nil, pipeline.NewError(pipeline.KindValidation, "analysis job missing videoRef")
	}

	if w.provider == nil || !w.provider.IsConfigured() {
		return w.handleMock(ctx, payload, report)
	}

	if err := report(5, "submitting"); err != nil {
		return nil, err
	}
	task, err := w.provider.SubmitAnalysis(ctx, payload.VideoRef)
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindProvider, "analysis submit failed", err)
	}

	result, err := w.provider.PollAnalysis(ctx, task.TaskID, 3*time.Second, func(phase string) {
		// Sub-phase checkpoints map onto fixed progress marks.
		switch phase {
		case client.PhaseVisual:
			_ = report(25, client.PhaseVisual)
		case client.PhaseAudio:
			_ = report(50, client.PhaseAudio)
		case client.PhaseText:
			_ = report(75, client.PhaseText)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, pipeline.WrapError(pipeline.KindProvider, "analysis failed", err)
	}
	if err := validateStyle(result.Style); err != nil {
		return nil, err
	}

	if err := report(95, "finalizing"); err != nil {
		return nil, err
	}
	return model.AnalysisResult{VideoRef: payload.VideoRef, Style: result.Style}, nil
}

// handleMock produces a sample extraction for development without a
// provider key.
func (w *AnalysisWorker) handleMock(ctx context.Context, payload model.AnalysisJobPayload, report ProgressFunc) (interface{}, error) {
	steps := []struct {
		progress int
		subStage string
	}{
		{25, client.PhaseVisual},
		{50, client.PhaseAudio},
		{75, client.PhaseText},
		{95, "finalizing"},
	}
	for _, step := range steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.StepDelay):
		}
		if err := report(step.progress, step.subStage); err != nil {
			return nil, err
		}
	}

	style, _ := json.Marshal(map[string]interface{}{
		"effects":     []string{"speed_ramp", "flash_cut", "zoom_pulse"},
		"transitions": []string{"whip_pan", "hard_cut"},
		"colorGrading": map[string]interface{}{
			"temperature": 0.2,
			"saturation":  1.3,
			"contrast":    1.1,
		},
		"audioFeatures": map[string]interface{}{
			"bpm":       128,
			"beatDrops": []float64{2.4, 9.8, 17.2},
		},
		"textOverlays": []map[string]interface{}{
			{"text": "WAIT FOR IT", "start": 0.5, "end": 2.0},
		},
	})
	return model.AnalysisResult{VideoRef: payload.VideoRef, Style: style}, nil
}

// validateStyle checks the provider returned a usable extraction. The
// contents stay opaque; only the shape is enforced.
func validateStyle(style json.RawMessage) error {
	if len(style) == 0 {
		return pipeline.NewError(pipeline.KindProvider, "provider returned empty style extraction")
	}
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(style, &shape); err != nil {
		return pipeline.WrapError(pipeline.KindProvider, "provider returned malformed style extraction", err)
	}
	if len(shape) == 0 {
		return pipeline.NewError(pipeline.KindProvider, "provider returned empty style extraction")
	}
	return nil
}
