package service

import (
	"context"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/store"
)

// TemplateService exposes the saved-template library.
type TemplateService struct {
	templates store.TemplateStore
}

func NewTemplateService(templates store.TemplateStore) *TemplateService {
	return &TemplateService{templates: templates}
}

// List returns all saved templates, newest first.
func (s *TemplateService) List(ctx context.Context) ([]*model.TemplateResponse, error) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, templateSnapshot(tpl))
	}
	return out, nil
}

// Get returns one template's public view.
func (s *TemplateService) Get(ctx context.Context, id string) (*model.TemplateResponse, error) {
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return templateSnapshot(tpl), nil
}

// Delete removes a template from the library. Templates referenced by
// past jobs stay referenced by id only; job records are never touched.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	return s.templates.Delete(ctx, id)
}

func templateSnapshot(tpl *model.Template) *model.TemplateResponse {
	return &model.TemplateResponse{
		ID:          tpl.ID,
		Name:        tpl.Name,
		SourceVideo: tpl.SourceVideo,
		UsageCount:  tpl.UsageCount,
		CreatedAt:   tpl.CreatedAt,
	}
}
