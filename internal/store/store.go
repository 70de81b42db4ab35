// Package store implements the Store component (spec §4.A): CRUD over
// Article, PromptTemplate, Task, and DetectionResult, with two backends
// behind a single interface — MemStore for tests/fallback and MongoStore
// for production. Generalized from the teacher's single-collection
// internal/storage (item-batch Storage interface) into the four typed
// collections the spec needs.
package store

import (
	"context"

	"github.com/kaiven11/artical-generate/internal/types"
)

// ArticleFilter narrows list_articles per §4.A.
type ArticleFilter struct {
	Status         types.Status
	CreationType   types.CreationType
	SourcePlatform string
}

// Page requests a bounded slice of a list operation.
type Page struct {
	Offset int
	Limit  int
}

// TemplateFilter narrows select_templates.
type TemplateFilter struct {
	ContentType types.ContentType
	ActiveOnly  bool
}

// Store is the persistence boundary every pipeline component talks to.
// Neither MemStore nor MongoStore exposes anything beyond this surface, so
// swapping backends never leaks through to callers.
type Store interface {
	CreateArticle(ctx context.Context, a *types.Article) (int64, error)
	GetArticle(ctx context.Context, id int64) (*types.Article, error)
	UpdateArticle(ctx context.Context, id int64, patch func(*types.Article) error) error
	ListArticles(ctx context.Context, filter ArticleFilter, page Page) ([]*types.Article, error)

	AppendDetection(ctx context.Context, result *types.DetectionResult) error
	LastDetection(ctx context.Context, articleID int64) (*types.DetectionResult, error)

	GetTemplate(ctx context.Context, idOrName any) (*types.PromptTemplate, error)
	SelectTemplates(ctx context.Context, promptType types.PromptType, filter TemplateFilter) ([]*types.PromptTemplate, error)
	CreateTemplate(ctx context.Context, t *types.PromptTemplate) (int64, error)
	UpdateTemplate(ctx context.Context, id int64, patch func(*types.PromptTemplate) error) error
	ExportTemplates(ctx context.Context) ([]*types.PromptTemplate, error)
	ImportTemplates(ctx context.Context, templates []*types.PromptTemplate) (int, error)

	CreateTask(ctx context.Context, t *types.Task) (int64, error)
	SetTaskStatus(ctx context.Context, id int64, status types.TaskStatus) error
	SetTaskProgress(ctx context.Context, id int64, progress int, step string) error
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	ListActiveTasks(ctx context.Context) ([]*types.Task, error)

	Close(ctx context.Context) error
}
