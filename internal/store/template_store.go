package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
)

const (
	templateKeyPrefix = "template:"
	templateIndexKey  = "templates"
)

// TemplateStore persists saved style templates. Unlike job records,
// templates are long-lived and user-deletable.
type TemplateStore interface {
	Save(ctx context.Context, tpl *model.Template) (*model.Template, error)
	Get(ctx context.Context, id string) (*model.Template, error)
	List(ctx context.Context) ([]*model.Template, error)
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) error
}

// RedisTemplateStore keeps templates as JSON blobs plus a set index for
// listing.
type RedisTemplateStore struct {
	client *redis.Client
}

func NewRedisTemplateStore(client *redis.Client) *RedisTemplateStore {
	return &RedisTemplateStore{client: client}
}

func (s *RedisTemplateStore) Save(ctx context.Context, tpl *model.Template) (*model.Template, error) {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return nil, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, templateKeyPrefix+tpl.ID, data, 0)
		pipe.SAdd(ctx, templateIndexKey, tpl.ID)
		return nil
	})
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to persist template", err)
	}
	return tpl, nil
}

func (s *RedisTemplateStore) Get(ctx context.Context, id string) (*model.Template, error) {
	data, err := s.client.Get(ctx, templateKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pipeline.ErrTemplateNotFound
		}
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to read template", err)
	}
	var tpl model.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}
	return &tpl, nil
}

func (s *RedisTemplateStore) List(ctx context.Context) ([]*model.Template, error) {
	ids, err := s.client.SMembers(ctx, templateIndexKey).Result()
	if err != nil {
		return nil, pipeline.WrapError(pipeline.KindStorage, "failed to list templates", err)
	}
	templates := make([]*model.Template, 0, len(ids))
	for _, id := range ids {
		tpl, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, pipeline.ErrTemplateNotFound) {
				continue
			}
			return nil, err
		}
		templates = append(templates, tpl)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

func (s *RedisTemplateStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, templateKeyPrefix+id)
		pipe.SRem(ctx, templateIndexKey, id)
		return nil
	})
	if err != nil {
		return pipeline.WrapError(pipeline.KindStorage, "failed to delete template", err)
	}
	return nil
}

func (s *RedisTemplateStore) IncrementUsage(ctx context.Context, id string) error {
	key := templateKeyPrefix + id
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return pipeline.ErrTemplateNotFound
			}
			return err
		}
		var tpl model.Template
		if err := json.Unmarshal(data, &tpl); err != nil {
			return err
		}
		tpl.UsageCount++
		out, err := json.Marshal(&tpl)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casAttempts; i++ {
		err = s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil && !errors.Is(err, pipeline.ErrTemplateNotFound) {
		return pipeline.WrapError(pipeline.KindStorage, "failed to bump template usage", err)
	}
	return err
}

// MemoryTemplateStore is the in-process counterpart used in tests.
type MemoryTemplateStore struct {
	mu        sync.Mutex
	templates map[string]*model.Template
}

func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]*model.Template)}
}

func (s *MemoryTemplateStore) Save(_ context.Context, tpl *model.Template) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	cp := *tpl
	s.templates[tpl.ID] = &cp
	return tpl, nil
}

func (s *MemoryTemplateStore) Get(_ context.Context, id string) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, pipeline.ErrTemplateNotFound
	}
	cp := *tpl
	return &cp, nil
}

func (s *MemoryTemplateStore) List(_ context.Context) ([]*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates := make([]*model.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		cp := *tpl
		templates = append(templates, &cp)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

func (s *MemoryTemplateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

func (s *MemoryTemplateStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return pipeline.ErrTemplateNotFound
	}
	tpl.UsageCount++
	return nil
}
