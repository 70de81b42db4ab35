package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaiven11/artical-generate/internal/llm"
	"github.com/kaiven11/artical-generate/internal/prompt"
	"github.com/kaiven11/artical-generate/internal/types"
)

// fakeLLM returns a fixed sequence of candidates, one per call, echoing the
// input if the sequence runs out.
type fakeLLM struct {
	candidates []string
	calls      int
	err        error
}

func (f *fakeLLM) Call(_ context.Context, promptText string, _ llm.Params) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	f.calls++
	if idx < len(f.candidates) {
		return f.candidates[idx], nil
	}
	return promptText, nil
}

// fakeDetector scores whatever candidate it's given off a fixed sequence.
type fakeDetector struct {
	scores []float64
	calls  int
	err    error
}

func (d *fakeDetector) Detect(_ context.Context, articleID int64, content string) (*types.DetectionResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	idx := d.calls
	d.calls++
	score := 0.0
	if idx < len(d.scores) {
		score = d.scores[idx]
	}
	return &types.DetectionResult{ArticleID: articleID, Score: score}, nil
}

type fakePrompts struct{}

func (fakePrompts) Select(_ context.Context, sel prompt.Selection) (string, *types.PromptTemplate, error) {
	return "prompt for " + string(sel.Stage), nil, nil
}

func (fakePrompts) DeriveContentType(_, _ string) types.ContentType {
	return types.ContentGeneral
}

func TestRunSucceedsWhenFirstCandidateIsBelowThreshold(t *testing.T) {
	result, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 5,
		Threshold:   25,
		LLM:         &fakeLLM{candidates: []string{"rewrite-1"}},
		Detector:    &fakeDetector{scores: []float64{10}},
		Prompts:     fakePrompts{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.FinalContent != "rewrite-1" {
		t.Errorf("expected final content to be the passing candidate, got %q", result.FinalContent)
	}
	if result.AttemptsUsed != 1 {
		t.Errorf("expected 1 attempt used, got %d", result.AttemptsUsed)
	}
}

func TestRunRetriesUntilBelowThreshold(t *testing.T) {
	result, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 5,
		Threshold:   25,
		LLM:         &fakeLLM{candidates: []string{"rewrite-1", "rewrite-2", "rewrite-3"}},
		Detector:    &fakeDetector{scores: []float64{80, 60, 20}},
		Prompts:     fakePrompts{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.AttemptsUsed != 3 {
		t.Errorf("expected success on attempt 3, got success=%v attempts=%d", result.Success, result.AttemptsUsed)
	}
	if result.FinalContent != "rewrite-3" {
		t.Errorf("expected final content rewrite-3, got %q", result.FinalContent)
	}
}

func TestRunFailsAfterExhaustingAttempts(t *testing.T) {
	result, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 2,
		Threshold:   25,
		LLM:         &fakeLLM{candidates: []string{"rewrite-1", "rewrite-2"}},
		Detector:    &fakeDetector{scores: []float64{90, 85}},
		Prompts:     fakePrompts{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected failure once attempts are exhausted")
	}
	if result.AttemptsUsed != 2 {
		t.Errorf("expected 2 attempts used, got %d", result.AttemptsUsed)
	}
	if result.AIProbability != 85 {
		t.Errorf("expected the last measured probability 85, got %v", result.AIProbability)
	}
}

func TestRunPreservesRejectedCandidateOnlyAsNextInput(t *testing.T) {
	// A rejected candidate must flow into the next attempt's input (so the
	// loop keeps improving on its most recent draft) but must never be
	// handed back as Result.FinalContent unless it eventually passes.
	llmCaller := &fakeLLM{candidates: []string{"rejected-candidate", "final-candidate"}}
	result, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 2,
		Threshold:   25,
		LLM:         llmCaller,
		Detector:    &fakeDetector{scores: []float64{90, 10}},
		Prompts:     fakePrompts{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalContent != "final-candidate" {
		t.Errorf("expected final-candidate as the committed content, got %q", result.FinalContent)
	}
}

func TestRunAIReductionReentryUsesAIReductionStage(t *testing.T) {
	var seenStages []types.PromptType
	tracking := trackingPrompts{fakePrompts{}, &seenStages}

	_, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		Reentry:     true,
		MaxAttempts: 1,
		Threshold:   25,
		LLM:         &fakeLLM{candidates: []string{"rewrite"}},
		Detector:    &fakeDetector{scores: []float64{10}},
		Prompts:     tracking,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenStages) != 1 || seenStages[0] != types.PromptAIReduction {
		t.Errorf("expected the ai_reduction stage to be selected on reentry, got %v", seenStages)
	}
}

type trackingPrompts struct {
	fakePrompts
	seen *[]types.PromptType
}

func (t trackingPrompts) Select(ctx context.Context, sel prompt.Selection) (string, *types.PromptTemplate, error) {
	*t.seen = append(*t.seen, sel.Stage)
	return t.fakePrompts.Select(ctx, sel)
}

func TestRunReturnsErrCancelledWhenContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 3,
		Threshold:   25,
		LLM:         &fakeLLM{candidates: []string{"x"}},
		Detector:    &fakeDetector{scores: []float64{10}},
		Prompts:     fakePrompts{},
	})
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestRunLLMFailureIsFatal(t *testing.T) {
	_, err := Run(context.Background(), Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 3,
		Threshold:   25,
		LLM:         &fakeLLM{err: errors.New("upstream unavailable")},
		Detector:    &fakeDetector{scores: []float64{10}},
		Prompts:     fakePrompts{},
	})
	if err == nil {
		t.Error("expected an error when the LLM call fails")
	}
}

func TestRunHonorsRetryDelayAndCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, Input{
		ArticleID:   1,
		Content:     "original",
		MaxAttempts: 3,
		Threshold:   25,
		RetryDelay:  time.Second,
		LLM:         &fakeLLM{candidates: []string{"rewrite-1", "rewrite-2"}},
		Detector:    &fakeDetector{scores: []float64{90, 10}},
		Prompts:     fakePrompts{},
	})
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("expected the retry-delay wait to observe context cancellation, got %v", err)
	}
}
