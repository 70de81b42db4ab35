package store

import (
	"context"
	"errors"
	"testing"

	"github.com/kaiven11/artical-generate/internal/types"
)

func TestMemStoreCreateArticleRejectsDuplicateSourceKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	a := types.NewURLImportArticle("https://example.com/post")
	if _, err := s.CreateArticle(ctx, a); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := types.NewURLImportArticle("https://example.com/post")
	if _, err := s.CreateArticle(ctx, dup); !errors.Is(err, types.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestMemStoreUpdateArticleEnforcesStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, err := s.CreateArticle(ctx, types.NewURLImportArticle("https://example.com/post"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending -> ready is not a legal direct transition.
	err = s.UpdateArticle(ctx, id, func(a *types.Article) error {
		a.Status = types.StatusReady
		a.ContentOriginal = "content"
		return nil
	})
	if err == nil {
		t.Error("expected illegal transition to be rejected")
	}

	// pending -> extracting is legal.
	err = s.UpdateArticle(ctx, id, func(a *types.Article) error {
		a.Status = types.StatusExtracting
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error on legal transition: %v", err)
	}
}

func TestMemStoreGetArticleReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, _ := s.CreateArticle(ctx, types.NewURLImportArticle("https://example.com/post"))
	a, err := s.GetArticle(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	a.Title = "mutated locally"

	again, _ := s.GetArticle(ctx, id)
	if again.Title == "mutated locally" {
		t.Error("GetArticle must return an independent copy, not a shared pointer")
	}
}

func TestMemStoreGetArticleNotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.GetArticle(context.Background(), 999); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreTaskProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	taskID, _ := s.CreateTask(ctx, &types.Task{TaskID: "t1", ArticleID: 1, Type: "article_processing", Status: types.TaskPending})

	if err := s.SetTaskProgress(ctx, taskID, 50, "translate"); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	if err := s.SetTaskProgress(ctx, taskID, 30, "optimise"); err == nil {
		t.Error("expected regression in progress to be rejected")
	}
	if err := s.SetTaskProgress(ctx, taskID, 75, "optimise"); err != nil {
		t.Errorf("unexpected error advancing progress: %v", err)
	}
}

func TestMemStoreListActiveTasksFiltersTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	pendingID, _ := s.CreateTask(ctx, &types.Task{TaskID: "p", Status: types.TaskPending})
	runningID, _ := s.CreateTask(ctx, &types.Task{TaskID: "r", Status: types.TaskPending})
	doneID, _ := s.CreateTask(ctx, &types.Task{TaskID: "d", Status: types.TaskPending})

	_ = s.SetTaskStatus(ctx, runningID, types.TaskRunning)
	_ = s.SetTaskStatus(ctx, doneID, types.TaskCompleted)

	active, err := s.ListActiveTasks(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active tasks, got %d", len(active))
	}
	seen := map[int64]bool{}
	for _, task := range active {
		seen[task.ID] = true
	}
	if !seen[pendingID] || !seen[runningID] {
		t.Error("expected both pending and running tasks in the active list")
	}
	if seen[doneID] {
		t.Error("completed task must not appear in the active list")
	}
}

func TestMemStoreCreateTemplateClearsPriorDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	firstID, err := s.CreateTemplate(ctx, &types.PromptTemplate{
		Name: "translate-v1", Type: types.PromptTranslation, IsDefault: true, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	if _, err := s.CreateTemplate(ctx, &types.PromptTemplate{
		Name: "translate-v2", Type: types.PromptTranslation, IsDefault: true, IsActive: true,
	}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	first, err := s.GetTemplate(ctx, firstID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if first.IsDefault {
		t.Error("expected the first template's is_default to be cleared once a second default is created")
	}
}

func TestMemStoreImportExportRoundTripUpsertsByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	id, err := s.CreateTemplate(ctx, &types.PromptTemplate{Name: "opt-v1", Type: types.PromptOptimisation, Priority: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exported, err := s.ExportTemplates(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("expected 1 exported template, got %d", len(exported))
	}
	exported[0].Priority = 9

	n, err := s.ImportTemplates(ctx, exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 imported, got %d", n)
	}

	updated, err := s.GetTemplate(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Priority != 9 {
		t.Errorf("expected priority updated via upsert, got %d", updated.Priority)
	}

	all, _ := s.ExportTemplates(ctx)
	if len(all) != 1 {
		t.Errorf("expected import to upsert rather than duplicate, got %d templates", len(all))
	}
}

func TestMemStoreAppendAndLastDetection(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if _, err := s.LastDetection(ctx, 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound before any detection, got %v", err)
	}

	if err := s.AppendDetection(ctx, &types.DetectionResult{ArticleID: 1, Score: 60}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendDetection(ctx, &types.DetectionResult{ArticleID: 1, Score: 20}); err != nil {
		t.Fatalf("append: %v", err)
	}

	last, err := s.LastDetection(ctx, 1)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.Score != 20 {
		t.Errorf("expected last appended score 20, got %v", last.Score)
	}
}
