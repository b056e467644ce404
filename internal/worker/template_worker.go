package worker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/store"
)

// TemplateWorker runs template_save jobs: it persists a completed
// analysis extraction as a reusable template and uploads the style
// artifact to object storage when configured.
type TemplateWorker struct {
	runner    *Runner
	templates store.TemplateStore
	storage   client.StorageClient
}

func NewTemplateWorker(runner *Runner, templates store.TemplateStore, storage client.StorageClient) *TemplateWorker {
	return &TemplateWorker{runner: runner, templates: templates, storage: storage}
}

// ProcessTask handles template_save task processing.
func (w *TemplateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.runner.Run(ctx, t, w.handle)
}

func (w *TemplateWorker) handle(ctx context.Context, job *model.Job, report ProgressFunc) (interface{}, error) {
	var payload model.TemplateSaveJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if len(payload.Style) == 0 {
		return nil, pipeline.NewError(pipeline.KindValidation, "template job missing style extraction")
	}

	if err := report(20, "persisting"); err != nil {
		return nil, err
	}

	name := payload.Name
	if name == "" {
		name = fmt.Sprintf("Template %s", time.Now().UTC().Format("2006-01-02 15:04"))
	}
	// Template id derives from the job id so a retried task overwrites
	// its own template instead of minting a duplicate.
	tpl, err := w.templates.Save(ctx, &model.Template{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(job.ID)).String(),
		Name:        name,
		SourceVideo: payload.VideoRef,
		Style:       payload.Style,
	})
	if err != nil {
		return nil, err
	}

	artifactKey := ""
	if w.storage != nil {
		if err := report(60, "uploading_artifact"); err != nil {
			return nil, err
		}
		artifactKey = fmt.Sprintf("templates/%s/style.json", tpl.ID)
		if _, err := w.storage.Upload(ctx, artifactKey, bytes.NewReader(payload.Style), "application/json"); err != nil {
			// A re-run can still upload; the template itself is saved.
			log.Printf("[worker] job %s: artifact upload failed: %v", job.ID, err)
			artifactKey = ""
		} else {
			tpl.ArtifactKey = artifactKey
			if _, err := w.templates.Save(ctx, tpl); err != nil {
				return nil, err
			}
		}
	}

	return model.TemplateSaveResult{TemplateID: tpl.ID, ArtifactKey: artifactKey}, nil
}
