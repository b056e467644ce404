package model

import (
	"encoding/json"
	"time"
)

// Template is a reusable style profile extracted from a viral clip.
// Style holds the provider's extraction (effects, transitions, color
// grading, audio features, text overlays); the pipeline treats it as
// opaque and only passes it to the rendering provider.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	SourceVideo string          `json:"sourceVideo"`
	Style       json.RawMessage `json:"style"`
	ArtifactKey string          `json:"artifactKey,omitempty"`
	UsageCount  int64           `json:"usageCount"`
	CreatedAt   time.Time       `json:"createdAt"`
}
