package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kaiven11/artical-generate/internal/types"
)

// MemStore is an in-memory Store guarded by a single mutex, used by tests
// and as a drop-in when no MongoDB is reachable. It enforces every
// invariant spec.md names in Go rather than leaning on a database
// constraint, mirroring the teacher's practice of validating state
// transitions in application code before any I/O (internal/engine/engine.go's
// dedup/domain checks run the same way).
type MemStore struct {
	mu sync.Mutex

	nextArticleID   int64
	nextTemplateID  int64
	nextTaskID      int64
	nextDetectionID int64

	articles   map[int64]*types.Article
	sourceKeys map[string]int64

	templates map[int64]*types.PromptTemplate
	tasks     map[int64]*types.Task

	detections        map[int64][]*types.DetectionResult // keyed by article id, append-only
}

func NewMemStore() *MemStore {
	return &MemStore{
		articles:   make(map[int64]*types.Article),
		sourceKeys: make(map[string]int64),
		templates:  make(map[int64]*types.PromptTemplate),
		tasks:      make(map[int64]*types.Task),
		detections: make(map[int64][]*types.DetectionResult),
	}
}

func (s *MemStore) CreateArticle(_ context.Context, a *types.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sourceKeys[a.SourceKey]; exists {
		return 0, types.ErrDuplicateKey
	}
	if err := a.Validate(); err != nil {
		return 0, err
	}

	s.nextArticleID++
	id := s.nextArticleID
	clone := *a
	clone.ID = id
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now

	s.articles[id] = &clone
	s.sourceKeys[a.SourceKey] = id
	return id, nil
}

func (s *MemStore) GetArticle(_ context.Context, id int64) (*types.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

// UpdateArticle applies patch atomically: the caller's mutation sees a
// private copy, and validation (including status-transition legality) runs
// before the copy is committed back.
func (s *MemStore) UpdateArticle(_ context.Context, id int64, patch func(*types.Article) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.articles[id]
	if !ok {
		return types.ErrNotFound
	}
	working := *existing

	if err := patch(&working); err != nil {
		return err
	}
	if working.Status != existing.Status && !types.CanTransition(existing.Status, working.Status) {
		return &types.ValidationError{Field: "status", Reason: "illegal transition " + string(existing.Status) + " -> " + string(working.Status)}
	}
	if err := working.Validate(); err != nil {
		return err
	}

	working.UpdatedAt = time.Now()
	s.articles[id] = &working
	return nil
}

func (s *MemStore) ListArticles(_ context.Context, filter ArticleFilter, page Page) ([]*types.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.Article
	for _, a := range s.articles {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.CreationType != "" && a.CreationType != filter.CreationType {
			continue
		}
		if filter.SourcePlatform != "" && a.SourcePlatform != filter.SourcePlatform {
			continue
		}
		clone := *a
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return paginate(matched, page), nil
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	end := len(items)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return items[page.Offset:end]
}

func (s *MemStore) AppendDetection(_ context.Context, result *types.DetectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDetectionID++
	clone := *result
	clone.ID = s.nextDetectionID
	if clone.DetectedAt.IsZero() {
		clone.DetectedAt = time.Now()
	}
	s.detections[result.ArticleID] = append(s.detections[result.ArticleID], &clone)
	return nil
}

func (s *MemStore) LastDetection(_ context.Context, articleID int64) (*types.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.detections[articleID]
	if len(history) == 0 {
		return nil, types.ErrNotFound
	}
	clone := *history[len(history)-1]
	return &clone, nil
}

func (s *MemStore) GetTemplate(_ context.Context, idOrName any) (*types.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key := idOrName.(type) {
	case int64:
		t, ok := s.templates[key]
		if !ok {
			return nil, types.ErrNotFound
		}
		return t.Clone(), nil
	case string:
		for _, t := range s.templates {
			if t.Name == key {
				return t.Clone(), nil
			}
		}
		return nil, types.ErrNotFound
	default:
		return nil, &types.ValidationError{Field: "idOrName", Reason: "must be int64 id or string name"}
	}
}

func (s *MemStore) SelectTemplates(_ context.Context, promptType types.PromptType, filter TemplateFilter) ([]*types.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*types.PromptTemplate
	for _, t := range s.templates {
		if t.Type != promptType {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		if filter.ContentType != "" && t.ContentType != filter.ContentType {
			continue
		}
		matched = append(matched, t.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// CreateTemplate enforces "setting is_default=true clears the flag on all
// other templates of the same type" as a single in-memory transaction.
func (s *MemStore) CreateTemplate(_ context.Context, t *types.PromptTemplate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTemplateID++
	id := s.nextTemplateID
	clone := t.Clone()
	clone.ID = id
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if clone.IsDefault {
		s.clearDefaultLocked(clone.Type, id)
	}
	s.templates[id] = clone
	return id, nil
}

func (s *MemStore) UpdateTemplate(_ context.Context, id int64, patch func(*types.PromptTemplate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[id]
	if !ok {
		return types.ErrNotFound
	}
	working := existing.Clone()
	if err := patch(working); err != nil {
		return err
	}
	working.UpdatedAt = time.Now()

	if working.IsDefault && !existing.IsDefault {
		s.clearDefaultLocked(working.Type, id)
	}
	s.templates[id] = working
	return nil
}

func (s *MemStore) clearDefaultLocked(promptType types.PromptType, exceptID int64) {
	for id, t := range s.templates {
		if id == exceptID || t.Type != promptType {
			continue
		}
		if t.IsDefault {
			t.IsDefault = false
		}
	}
}

func (s *MemStore) ExportTemplates(_ context.Context) ([]*types.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.PromptTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ImportTemplates upserts by Name, the neutral key across export/import
// round-trips (IDs are backend-assigned and not portable).
func (s *MemStore) ImportTemplates(_ context.Context, templates []*types.PromptTemplate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, incoming := range templates {
		var existingID int64
		found := false
		for id, t := range s.templates {
			if t.Name == incoming.Name {
				existingID, found = id, true
				break
			}
		}

		clone := incoming.Clone()
		clone.UpdatedAt = time.Now()
		if found {
			clone.ID = existingID
			s.templates[existingID] = clone
		} else {
			s.nextTemplateID++
			clone.ID = s.nextTemplateID
			clone.CreatedAt = time.Now()
			s.templates[clone.ID] = clone
		}
		if clone.IsDefault {
			s.clearDefaultLocked(clone.Type, clone.ID)
		}
		imported++
	}
	return imported, nil
}

func (s *MemStore) CreateTask(_ context.Context, t *types.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTaskID++
	id := s.nextTaskID
	clone := *t
	clone.ID = id
	clone.CreatedAt = time.Now()
	s.tasks[id] = &clone
	return id, nil
}

func (s *MemStore) SetTaskStatus(_ context.Context, id int64, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return types.ErrNotFound
	}
	t.Status = status
	now := time.Now()
	switch status {
	case types.TaskRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
		t.CompletedAt = &now
	}
	return nil
}

// SetTaskProgress enforces the monotonic-progress invariant: a later call
// can never lower Progress below what an earlier call already committed.
func (s *MemStore) SetTaskProgress(_ context.Context, id int64, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return types.ErrNotFound
	}
	if progress < t.Progress {
		return &types.ValidationError{Field: "progress", Reason: "progress must not regress"}
	}
	t.Progress = progress
	t.CurrentStep = step
	return nil
}

func (s *MemStore) GetTask(_ context.Context, id int64) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *MemStore) ListActiveTasks(_ context.Context) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*types.Task
	for _, t := range s.tasks {
		if t.Status == types.TaskPending || t.Status == types.TaskRunning {
			clone := *t
			active = append(active, &clone)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (s *MemStore) Close(_ context.Context) error { return nil }
