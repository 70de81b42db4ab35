package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/kaiven11/artical-generate/internal/llm"
	"github.com/kaiven11/artical-generate/internal/prompt"
	"github.com/kaiven11/artical-generate/internal/publish"
	"github.com/kaiven11/artical-generate/internal/scraper"
	"github.com/kaiven11/artical-generate/internal/store"
	"github.com/kaiven11/artical-generate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeScraper struct {
	result *scraper.Result
	err    error
}

func (f *fakeScraper) Extract(_ context.Context, _ string) (*scraper.Result, error) {
	return f.result, f.err
}

type fakeLLM struct{ reply string }

func (f *fakeLLM) Call(_ context.Context, _ string, _ llm.Params) (string, error) {
	return f.reply, nil
}

type fakeDetector struct{ score float64 }

func (f *fakeDetector) Detect(_ context.Context, articleID int64, _ string) (*types.DetectionResult, error) {
	return &types.DetectionResult{ArticleID: articleID, Score: f.score}, nil
}

type fakePrompts struct{}

func (fakePrompts) Select(_ context.Context, sel prompt.Selection) (string, *types.PromptTemplate, error) {
	return "prompt", nil, nil
}

func (fakePrompts) DeriveContentType(_, _ string) types.ContentType {
	return types.ContentGeneral
}

func newTestOrchestrator(t *testing.T, s store.Store, llmReply string, detectorScore float64) (*Orchestrator, store.Store) {
	t.Helper()
	if s == nil {
		s = store.NewMemStore()
	}
	cfg := DefaultConfig()
	cfg.StageTimeout = 2 * time.Second
	cfg.ArticleTimeout = 5 * time.Second
	cfg.MaxAttempts = 3
	cfg.RetryDelay = 0

	orch := New(
		s,
		&fakeScraper{result: &scraper.Result{Title: "Extracted Title", Body: "extracted body"}},
		&fakeLLM{reply: llmReply},
		&fakeDetector{score: detectorScore},
		fakePrompts{},
		publish.NewNoop(testLogger),
		nil,
		cfg,
		testLogger,
	)
	return orch, s
}

func waitForTerminal(t *testing.T, s store.Store, articleID int64, timeout time.Duration) *types.Article {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		a, err := s.GetArticle(context.Background(), articleID)
		if err != nil {
			t.Fatalf("get article: %v", err)
		}
		if a.Status == types.StatusReady || a.Status == types.StatusFailed {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for article to reach a terminal status")
	return nil
}

func TestDeriveSteps(t *testing.T) {
	tests := []struct {
		name        string
		creation    types.CreationType
		autoPublish bool
		want        []types.Step
	}{
		{"topic creation", types.CreationTopicCreation, false, []types.Step{types.StepCreate}},
		{"topic creation with publish", types.CreationTopicCreation, true, []types.Step{types.StepCreate, types.StepPublish}},
		{"url import", types.CreationURLImport, false, []types.Step{types.StepExtract, types.StepTranslate, types.StepOptimise}},
		{"url import with publish", types.CreationURLImport, true, []types.Step{types.StepExtract, types.StepTranslate, types.StepOptimise, types.StepPublish}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSteps(tt.creation, tt.autoPublish)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("step %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestProcessURLImportSucceedsThroughToReady(t *testing.T) {
	orch, s := newTestOrchestrator(t, nil, "translated and optimised content", 10)

	articleID, err := s.CreateArticle(context.Background(), types.NewURLImportArticle("https://example.com/post"))
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	taskID, err := orch.Process(context.Background(), articleID, ProcessOptions{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected a non-empty task id")
	}

	a := waitForTerminal(t, s, articleID, 2*time.Second)
	if a.Status != types.StatusReady {
		t.Fatalf("expected article ready, got %s (last_error=%q)", a.Status, a.LastError)
	}
	if a.ContentOptimised == "" {
		t.Error("expected content_optimised to be set on success")
	}
	if a.AIProbability == nil || *a.AIProbability != 10 {
		t.Errorf("expected recorded AI probability 10, got %v", a.AIProbability)
	}
}

func TestProcessTopicCreationSucceeds(t *testing.T) {
	orch, s := newTestOrchestrator(t, nil, "a fresh original article", 5)

	article := types.NewTopicCreationArticle("go concurrency", time.Now())
	articleID, err := s.CreateArticle(context.Background(), article)
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	if _, err := orch.Process(context.Background(), articleID, ProcessOptions{}); err != nil {
		t.Fatalf("process: %v", err)
	}

	a := waitForTerminal(t, s, articleID, 2*time.Second)
	if a.Status != types.StatusReady {
		t.Fatalf("expected article ready, got %s (last_error=%q)", a.Status, a.LastError)
	}
	if a.ContentOriginal == "" {
		t.Error("expected content_original to be set for the topic-creation path")
	}
}

func TestProcessFailsWhenLoopExhaustsAttempts(t *testing.T) {
	orch, s := newTestOrchestrator(t, nil, "still detectable content", 90)

	articleID, err := s.CreateArticle(context.Background(), types.NewURLImportArticle("https://example.com/post"))
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	if _, err := orch.Process(context.Background(), articleID, ProcessOptions{}); err != nil {
		t.Fatalf("process: %v", err)
	}

	a := waitForTerminal(t, s, articleID, 2*time.Second)
	if a.Status != types.StatusFailed {
		t.Fatalf("expected article failed once the loop exhausts attempts, got %s", a.Status)
	}
	if a.LastError == "" {
		t.Error("expected last_error to be populated")
	}
}

func TestProcessWithAutoPublishReachesPublishStep(t *testing.T) {
	orch, s := newTestOrchestrator(t, nil, "publishable content", 1)

	articleID, err := s.CreateArticle(context.Background(), types.NewURLImportArticle("https://example.com/post"))
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	if _, err := orch.Process(context.Background(), articleID, ProcessOptions{AutoPublish: true}); err != nil {
		t.Fatalf("process: %v", err)
	}

	a := waitForTerminal(t, s, articleID, 2*time.Second)
	if a.PublishedAt == nil {
		t.Error("expected published_at to be set once auto_publish runs the publish step")
	}
}

func TestProcessManyFansOutIndependently(t *testing.T) {
	orch, s := newTestOrchestrator(t, nil, "content", 5)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.CreateArticle(context.Background(), types.NewURLImportArticle(
			"https://example.com/post"+string(rune('a'+i))))
		if err != nil {
			t.Fatalf("create article %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	_, taskIDs, errs := orch.ProcessMany(context.Background(), ids, ProcessOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(taskIDs) != 3 {
		t.Fatalf("expected 3 task ids, got %d", len(taskIDs))
	}

	for _, id := range ids {
		a := waitForTerminal(t, s, id, 2*time.Second)
		if a.Status != types.StatusReady {
			t.Errorf("article %d: expected ready, got %s", id, a.Status)
		}
	}
}

func TestCancelLeavesArticleAtLastCompletedStatus(t *testing.T) {
	s := store.NewMemStore()
	cfg := DefaultConfig()
	cfg.StageTimeout = 5 * time.Second
	cfg.ArticleTimeout = 5 * time.Second
	cfg.MaxAttempts = 3

	// A detector that blocks until released lets the test cancel mid-stage.
	release := make(chan struct{})
	blocker := blockingDetector{release: release, score: 5}

	orch := New(s, &fakeScraper{result: &scraper.Result{Title: "t", Body: "b"}}, &fakeLLM{reply: "c"}, blocker, fakePrompts{}, publish.NewNoop(testLogger), nil, cfg, testLogger)

	articleID, err := s.CreateArticle(context.Background(), types.NewURLImportArticle("https://example.com/post"))
	if err != nil {
		t.Fatalf("create article: %v", err)
	}

	taskID, err := orch.Process(context.Background(), articleID, ProcessOptions{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Give the run goroutine time to reach the extract/translate stages and
	// move the Article past pending before we cancel mid-optimise.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		a, _ := s.GetArticle(context.Background(), articleID)
		if a != nil && a.Status == types.StatusOptimising {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !orch.Cancel(taskID) {
		t.Fatal("expected Cancel to find the in-flight task")
	}
	// The blocked Detect call observes ctx.Done() from the cancellation and
	// returns, rather than ever reaching the release channel.
	defer close(release)

	settled := false
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		a, _ := s.GetArticle(context.Background(), articleID)
		if a != nil && a.Status == types.StatusFailed {
			t.Fatalf("cancellation must not mark the article failed, got %s", a.Status)
		}
		if a != nil && a.Status == types.StatusOptimising {
			settled = true
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !settled {
		t.Error("expected the article to have remained at its last-completed status (optimising)")
	}
}

type blockingDetector struct {
	release chan struct{}
	score   float64
}

func (b blockingDetector) Detect(ctx context.Context, articleID int64, _ string) (*types.DetectionResult, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &types.DetectionResult{ArticleID: articleID, Score: b.score}, nil
}
