// Package loop implements the Detect-Optimise Loop component (spec §4.G):
// the shared, bounded optimise<->detect subroutine used by both the
// URL-import "optimise" stage and the topic-creation "create" stage.
// Grounded on original_source/backend/app/services/article_processor.py's
// _intelligent_detection_loop/_optimize_for_ai_detection, re-expressed as a
// pure Go function over injected LLMCaller/Detector/PromptPicker
// interfaces — the teacher's own preference for small consumer-side
// interfaces (engine.Fetcher/Parser/Pipeline in internal/engine/engine.go).
package loop

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kaiven11/artical-generate/internal/llm"
	"github.com/kaiven11/artical-generate/internal/prompt"
	"github.com/kaiven11/artical-generate/internal/types"
)

// LLMCaller is the subset of internal/llm.Client the loop needs.
type LLMCaller interface {
	Call(ctx context.Context, promptText string, params llm.Params) (string, error)
}

// Detector is the subset of internal/detector.Driver the loop needs.
type Detector interface {
	Detect(ctx context.Context, articleID int64, content string) (*types.DetectionResult, error)
}

// PromptPicker is the subset of internal/prompt.Catalog the loop needs.
type PromptPicker interface {
	Select(ctx context.Context, sel prompt.Selection) (string, *types.PromptTemplate, error)
	DeriveContentType(title, content string) types.ContentType
}

// assumedFirstRoundAIProbability is the §4.G step 2 assumption for attempt
// 1 (no measurement yet exists), landing squarely in the "standard" band.
const assumedFirstRoundAIProbability = 50.0

// assumedUnknownAIProbability is used for attempt >= 2 when, unusually, no
// prior measurement is available (the detector returned an error-shaped
// result the caller chose not to treat as fatal).
const assumedUnknownAIProbability = 75.0

// Input carries everything the loop needs to run one bounded detect-optimise
// cycle. It never reaches into a Store directly; the orchestrator is
// responsible for committing Result.FinalContent/AIProbability on success.
type Input struct {
	ArticleID    int64
	Title        string
	Content      string // best available candidate going in: optimised -> translated -> original
	TargetLength types.TargetLength

	// ExtraVariables supplies stage-specific prompt variables beyond
	// {content}/{target_length} (e.g. {topic}, {keywords}, {requirements}
	// for the creation path).
	ExtraVariables map[string]string

	// Reentry selects the "ai_reduction" prompt type instead of
	// "optimisation" when this loop invocation follows a prior accepted
	// optimisation that re-detected above threshold (§4.G, §9).
	Reentry bool

	OverridePromptID *int64

	MaxAttempts int
	Threshold   float64

	// RetryDelay separates consecutive attempts (ai_optimization.retry_delay_seconds,
	// §6.2); zero means no pause. Honors ctx so a cancellation during the wait
	// returns promptly instead of sleeping it out.
	RetryDelay time.Duration

	LLM      LLMCaller
	Detector Detector
	Prompts  PromptPicker

	// OnDetection is called once per detector submission, pass or fail,
	// so the caller can append an audit row (§3 DetectionResult is
	// append-only; §9 resolved open question: every submission is recorded).
	OnDetection func(ctx context.Context, result *types.DetectionResult) error

	Params llm.Params
}

// Result is what the loop hands back to its caller.
type Result struct {
	Success       bool
	FinalContent  string // only meaningful when Success; the committed candidate
	AIProbability float64
	AttemptsUsed  int
}

// Run executes the bounded detect-optimise cycle of §4.G. It never mutates
// any persisted state itself: on success the caller commits
// Result.FinalContent into the article's slot; on failure the caller leaves
// the previously-accepted content exactly as it was (the preservation
// invariant).
func Run(ctx context.Context, in Input) (*Result, error) {
	maxAttempts := in.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	stage := types.PromptOptimisation
	if in.Reentry {
		stage = types.PromptAIReduction
	}

	currentInput := in.Content
	lastAIProbability := 0.0
	haveMeasurement := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, types.ErrCancelled
		}

		if attempt > 1 && in.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, types.ErrCancelled
			case <-time.After(in.RetryDelay):
			}
		}

		contentType := in.Prompts.DeriveContentType(in.Title, currentInput)

		var band types.Band
		if attempt == 1 {
			band = prompt.DeriveBand(assumedFirstRoundAIProbability, attempt)
		} else {
			assumed := assumedUnknownAIProbability
			if haveMeasurement {
				assumed = lastAIProbability
			}
			band = prompt.DeriveBand(assumed, attempt)
		}

		variables := prompt.VariablesFor(currentInput, in.TargetLength, in.ExtraVariables)
		variables["detection_feedback"] = detectionFeedback(haveMeasurement, lastAIProbability, in.Threshold)
		variables["ai_probability"] = strconv.FormatFloat(lastAIProbability, 'f', 0, 64)
		variables["threshold"] = strconv.FormatFloat(in.Threshold, 'f', 0, 64)

		promptText, _, err := in.Prompts.Select(ctx, prompt.Selection{
			Stage:            stage,
			ContentType:      contentType,
			Band:             band,
			Round:            attempt,
			OverridePromptID: in.OverridePromptID,
			Variables:        variables,
		})
		if err != nil {
			return nil, fmt.Errorf("select prompt: %w", err)
		}

		candidate, err := in.LLM.Call(ctx, promptText, in.Params)
		if err != nil {
			// LLM failure is fatal for the loop: no further detection (§4.G step 3).
			return nil, fmt.Errorf("optimise attempt %d: %w", attempt, err)
		}

		if err := ctx.Err(); err != nil {
			return nil, types.ErrCancelled
		}

		detResult, err := in.Detector.Detect(ctx, in.ArticleID, candidate)
		if err != nil {
			return nil, fmt.Errorf("detect attempt %d: %w", attempt, err)
		}
		if in.OnDetection != nil {
			if err := in.OnDetection(ctx, detResult); err != nil {
				return nil, fmt.Errorf("record detection attempt %d: %w", attempt, err)
			}
		}

		lastAIProbability = detResult.Score
		haveMeasurement = true

		if detResult.Score < in.Threshold {
			return &Result{
				Success:       true,
				FinalContent:  candidate,
				AIProbability: detResult.Score,
				AttemptsUsed:  attempt,
			}, nil
		}

		// Attempt rejected: advance using the candidate as the new input,
		// per §4.G step 7 ("the loop keeps improving on its most-recent
		// draft even when the attempt was rejected"). The candidate is
		// never committed to the persisted slot.
		currentInput = candidate
	}

	return &Result{
		Success:       false,
		AIProbability: lastAIProbability,
		AttemptsUsed:  maxAttempts,
	}, nil
}

func detectionFeedback(have bool, aiProbability, threshold float64) string {
	if !have {
		return "无特殊反馈"
	}
	return fmt.Sprintf("当前AI概率为%.0f%%，需要降低到%.0f%%以下", aiProbability, threshold)
}
