// Package orchestrator implements the Pipeline Orchestrator component
// (spec §4.F): deriving the per-Article step sequence, running it as a
// background activity, and advancing Task/Article status as each step
// completes. Grounded on the teacher's internal/engine/engine.go — the
// "accept work, spawn a goroutine, return immediately" shape of
// Engine.Start (task cancel functions live in a mutex-guarded map; there is
// no atomic state machine), and its channel-free per-task
// lifecycle replacing the teacher's shared worker-pool/frontier design
// (here, each Article owns its own task rather than competing for one
// frontier queue).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kaiven11/artical-generate/internal/llm"
	"github.com/kaiven11/artical-generate/internal/loop"
	"github.com/kaiven11/artical-generate/internal/prompt"
	"github.com/kaiven11/artical-generate/internal/publish"
	"github.com/kaiven11/artical-generate/internal/scraper"
	"github.com/kaiven11/artical-generate/internal/store"
	"github.com/kaiven11/artical-generate/internal/types"
)

// Scraper is the subset of internal/scraper.Scraper the orchestrator needs.
type Scraper interface {
	Extract(ctx context.Context, sourceURL string) (*scraper.Result, error)
}

// LLMCaller is the subset of internal/llm.Client the orchestrator needs for
// one-shot stages (translate); the detect-optimise loop gets its own copy
// of this same interface in internal/loop.
type LLMCaller interface {
	Call(ctx context.Context, promptText string, params llm.Params) (string, error)
}

// Detector is the subset of internal/detector.Driver the orchestrator
// threads through to the loop.
type Detector interface {
	Detect(ctx context.Context, articleID int64, content string) (*types.DetectionResult, error)
}

// PromptPicker is the subset of internal/prompt.Catalog the orchestrator
// and loop both need.
type PromptPicker interface {
	Select(ctx context.Context, sel prompt.Selection) (string, *types.PromptTemplate, error)
	DeriveContentType(title, content string) types.ContentType
}

// ProgressBroadcaster optionally mirrors Task progress/status transitions
// somewhere observable outside the core (§4.F); Redis is the provided
// implementation but any sink can satisfy this.
type ProgressBroadcaster interface {
	Publish(ctx context.Context, taskID string, status types.TaskStatus, progress int, step string)
}

// Config carries the bounds the detect-optimise loop and per-stage/per-article
// timeouts obey (§5, §6.2).
type Config struct {
	MaxAttempts       int
	Threshold         float64
	RetryDelay        time.Duration
	StageTimeout      time.Duration
	ArticleTimeout    time.Duration
	LLMParams         llm.Params
}

// DefaultConfig mirrors the defaults of §5/§6.2.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		Threshold:      25,
		RetryDelay:     2 * time.Second,
		StageTimeout:   10 * time.Minute,
		ArticleTimeout: 2 * time.Hour,
		LLMParams:      llm.DefaultParams(),
	}
}

// Orchestrator wires Store, Scraper, LLMCaller, Detector, PromptPicker, and
// Publisher together to run the process(article_id, ...) operation of §4.F.
type Orchestrator struct {
	store     store.Store
	scraper   Scraper
	llmClient LLMCaller
	detector  Detector
	prompts   PromptPicker
	publisher publish.Publisher
	broadcast ProgressBroadcaster

	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(s store.Store, scraper Scraper, llmClient LLMCaller, detector Detector, prompts PromptPicker, publisher publish.Publisher, broadcast ProgressBroadcaster, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     s,
		scraper:   scraper,
		llmClient: llmClient,
		detector:  detector,
		prompts:   prompts,
		publisher: publisher,
		broadcast: broadcast,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// ProcessOptions carries the optional parameters of §4.F's process operation.
type ProcessOptions struct {
	Steps       []types.Step // derived from article.CreationType when nil
	AutoPublish bool
	Priority    int

	// Reentry selects the "ai_reduction" prompt variant for any optimise
	// step this run executes (§4.G, §9): used by the retry CLI command
	// when a previously-accepted optimisation re-detects above threshold.
	Reentry bool
}

// DeriveSteps implements §4.F's step-derivation rule.
func DeriveSteps(creationType types.CreationType, autoPublish bool) []types.Step {
	var steps []types.Step
	if creationType == types.CreationTopicCreation {
		steps = []types.Step{types.StepCreate}
	} else {
		steps = []types.Step{types.StepExtract, types.StepTranslate, types.StepOptimise}
	}
	if autoPublish {
		steps = append(steps, types.StepPublish)
	}
	return steps
}

// Process creates a Task for articleID and schedules its execution as a
// background goroutine, returning the Task's caller-facing id immediately
// (§4.F: "schedules the run as a background activity, and returns
// immediately").
func (o *Orchestrator) Process(ctx context.Context, articleID int64, opts ProcessOptions) (string, error) {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return "", err
	}

	steps := opts.Steps
	if steps == nil {
		steps = DeriveSteps(article.CreationType, opts.AutoPublish)
	}
	if len(steps) == 0 {
		return "", &types.ValidationError{Field: "steps", Reason: "no steps to run"}
	}

	taskID := newTaskID(articleID)
	task := &types.Task{
		TaskID:    taskID,
		ArticleID: articleID,
		Type:      "article_processing",
		Status:    types.TaskPending,
		CreatedAt: time.Now(),
	}
	dbID, err := o.store.CreateTask(ctx, task)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), o.cfg.ArticleTimeout)
	o.mu.Lock()
	o.cancels[taskID] = cancel
	o.mu.Unlock()

	go o.run(runCtx, dbID, taskID, articleID, steps, opts.Reentry)

	return taskID, nil
}

// ProcessMany is a thin fan-out over Process (§4.F: "no shared ordering or
// cross-article coordination").
func (o *Orchestrator) ProcessMany(ctx context.Context, articleIDs []int64, opts ProcessOptions) (string, []string, []error) {
	batchID := fmt.Sprintf("batch_%d", time.Now().UnixNano())
	taskIDs := make([]string, 0, len(articleIDs))
	errs := make([]error, 0, len(articleIDs))
	for _, id := range articleIDs {
		taskID, err := o.Process(ctx, id, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		taskIDs = append(taskIDs, taskID)
	}
	return batchID, taskIDs, errs
}

// Cancel requests cancellation of an in-flight Task. The orchestrator checks
// cancellation at stage boundaries and inside the detect-optimise loop
// (§5); a cancelled Task leaves the Article at whatever status the
// last-completed step set.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) run(ctx context.Context, dbID int64, taskID string, articleID int64, steps []types.Step, reentry bool) {
	defer func() {
		o.mu.Lock()
		cancel, ok := o.cancels[taskID]
		delete(o.cancels, taskID)
		o.mu.Unlock()
		if ok {
			cancel()
		}
	}()

	if err := o.store.SetTaskStatus(ctx, dbID, types.TaskRunning); err != nil {
		o.logger.Error("set task running failed", "task_id", taskID, "error", err)
		return
	}
	o.broadcastProgress(ctx, taskID, types.TaskRunning, 0, "")

	total := len(steps)
	for i, step := range steps {
		if ctx.Err() != nil {
			o.finishCancelled(ctx, dbID, taskID)
			return
		}

		progress := i * 100 / total
		if err := o.store.SetTaskProgress(ctx, dbID, progress, string(step)); err != nil {
			o.logger.Error("set task progress failed", "task_id", taskID, "error", err)
		}
		o.broadcastProgress(ctx, taskID, types.TaskRunning, progress, string(step))

		newStatus := types.StatusForStep(step)
		if err := o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
			if !types.CanTransition(a.Status, newStatus) {
				return &types.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", a.Status, newStatus)}
			}
			a.Status = newStatus
			return nil
		}); err != nil {
			o.finishFailed(ctx, dbID, taskID, articleID, err)
			return
		}

		stageCtx, stageCancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		err := o.executeStep(stageCtx, step, articleID, reentry)
		stageCancel()

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, types.ErrCancelled) {
				o.finishCancelled(ctx, dbID, taskID)
				return
			}
			o.finishFailed(ctx, dbID, taskID, articleID, &types.PipelineError{Stage: string(step), Err: err})
			return
		}
	}

	if err := o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		a.Status = types.StatusReady
		return nil
	}); err != nil {
		o.logger.Error("mark article ready failed", "article_id", articleID, "error", err)
	}
	_ = o.store.SetTaskProgress(ctx, dbID, 100, "done")
	_ = o.store.SetTaskStatus(ctx, dbID, types.TaskCompleted)
	o.broadcastProgress(ctx, taskID, types.TaskCompleted, 100, "done")
}

func (o *Orchestrator) finishCancelled(ctx context.Context, dbID int64, taskID string) {
	_ = o.store.SetTaskStatus(context.Background(), dbID, types.TaskCancelled)
	o.broadcastProgress(context.Background(), taskID, types.TaskCancelled, -1, "")
	o.logger.Info("task cancelled", "task_id", taskID)
}

func (o *Orchestrator) finishFailed(ctx context.Context, dbID int64, taskID string, articleID int64, cause error) {
	bg := context.Background()
	_ = o.store.UpdateArticle(bg, articleID, func(a *types.Article) error {
		a.Status = types.StatusFailed
		a.LastError = cause.Error()
		a.ProcessingAttempts++
		return nil
	})
	_ = o.store.SetTaskStatus(bg, dbID, types.TaskFailed)
	o.broadcastProgress(bg, taskID, types.TaskFailed, -1, "")
	o.logger.Warn("task failed", "task_id", taskID, "error", cause)
}

func (o *Orchestrator) broadcastProgress(ctx context.Context, taskID string, status types.TaskStatus, progress int, step string) {
	if o.broadcast == nil {
		return
	}
	o.broadcast.Publish(ctx, taskID, status, progress, step)
}

// executeStep dispatches to the concrete stage implementation. detect is not
// a top-level step (§4.F): it is executed inside optimise/create via
// internal/loop.
func (o *Orchestrator) executeStep(ctx context.Context, step types.Step, articleID int64, reentry bool) error {
	switch step {
	case types.StepExtract:
		return o.executeExtract(ctx, articleID)
	case types.StepTranslate:
		return o.executeTranslate(ctx, articleID)
	case types.StepOptimise:
		return o.executeOptimise(ctx, articleID, reentry)
	case types.StepCreate:
		return o.executeCreate(ctx, articleID)
	case types.StepPublish:
		return o.executePublish(ctx, articleID)
	default:
		return fmt.Errorf("unknown step %q", step)
	}
}

func (o *Orchestrator) executeExtract(ctx context.Context, articleID int64) error {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}
	extracted, err := o.scraper.Extract(ctx, article.SourceURL)
	if err != nil {
		return err
	}
	return o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		if a.Title == "" {
			a.Title = extracted.Title
		}
		a.ContentOriginal = extracted.Body
		return nil
	})
}

func (o *Orchestrator) executeTranslate(ctx context.Context, articleID int64) error {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}
	contentType := o.prompts.DeriveContentType(article.Title, article.ContentOriginal)
	variables := prompt.VariablesFor(article.ContentOriginal, article.TargetLength, nil)
	promptText, _, err := o.prompts.Select(ctx, prompt.Selection{
		Stage:       types.PromptTranslation,
		ContentType: contentType,
		Band:        types.BandStandard,
		Round:       1,
		Variables:   variables,
	})
	if err != nil {
		return fmt.Errorf("select translation prompt: %w", err)
	}
	translated, err := o.llmClient.Call(ctx, promptText, o.cfg.LLMParams)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	return o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		a.ContentTranslated = translated
		return nil
	})
}

// executeOptimise runs the URL-import path's detect-optimise loop, committing
// a passing candidate to content_optimised (§4.G step 6). reentry selects the
// "ai_reduction" prompt variant for a loop run that follows a prior accepted
// optimisation re-detecting above threshold.
func (o *Orchestrator) executeOptimise(ctx context.Context, articleID int64, reentry bool) error {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}

	result, err := loop.Run(ctx, loop.Input{
		ArticleID:    articleID,
		Title:        article.Title,
		Content:      article.BestContent(),
		TargetLength: article.TargetLength,
		Reentry:      reentry,
		MaxAttempts:  o.cfg.MaxAttempts,
		Threshold:    o.cfg.Threshold,
		RetryDelay:   o.cfg.RetryDelay,
		LLM:          o.llmClient,
		Detector:     o.detector,
		Prompts:      o.prompts,
		OnDetection:  o.recordDetection,
		Params:       o.cfg.LLMParams,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return &types.LoopError{LastAIProbability: result.AIProbability, Threshold: o.cfg.Threshold, AttemptsUsed: result.AttemptsUsed}
	}

	aiProb := result.AIProbability
	return o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		a.ContentOptimised = result.FinalContent
		a.AIProbability = &aiProb
		return nil
	})
}

// executeCreate runs the topic-creation path: an initial creation-prompt LLM
// call produces the first candidate, then the same detect-optimise loop
// drives it under threshold, committing to content_original per §4.G step 6
// ("or original for topic path").
func (o *Orchestrator) executeCreate(ctx context.Context, articleID int64) error {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}

	extra := map[string]string{
		"topic":        article.Topic,
		"keywords":     strings.Join(article.Keywords, ", "),
		"requirements": article.CreationRequirements,
	}
	variables := prompt.VariablesFor("", article.TargetLength, extra)
	promptText, _, err := o.prompts.Select(ctx, prompt.Selection{
		Stage:       types.PromptCreation,
		ContentType: types.ContentGeneral,
		Band:        types.BandStandard,
		Round:       1,
		Variables:   variables,
	})
	if err != nil {
		return fmt.Errorf("select creation prompt: %w", err)
	}
	initial, err := o.llmClient.Call(ctx, promptText, o.cfg.LLMParams)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	result, err := loop.Run(ctx, loop.Input{
		ArticleID:      articleID,
		Title:          article.Title,
		Content:        initial,
		TargetLength:   article.TargetLength,
		ExtraVariables: extra,
		MaxAttempts:    o.cfg.MaxAttempts,
		Threshold:      o.cfg.Threshold,
		RetryDelay:     o.cfg.RetryDelay,
		LLM:            o.llmClient,
		Detector:       o.detector,
		Prompts:        o.prompts,
		OnDetection:    o.recordDetection,
		Params:         o.cfg.LLMParams,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return &types.LoopError{LastAIProbability: result.AIProbability, Threshold: o.cfg.Threshold, AttemptsUsed: result.AttemptsUsed}
	}

	aiProb := result.AIProbability
	return o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		a.ContentOriginal = result.FinalContent
		a.AIProbability = &aiProb
		return nil
	})
}

func (o *Orchestrator) executePublish(ctx context.Context, articleID int64) error {
	article, err := o.store.GetArticle(ctx, articleID)
	if err != nil {
		return err
	}
	if err := o.publisher.Publish(ctx, article); err != nil {
		return err
	}
	now := time.Now()
	return o.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		a.PublishedAt = &now
		return nil
	})
}

func (o *Orchestrator) recordDetection(ctx context.Context, result *types.DetectionResult) error {
	return o.store.AppendDetection(ctx, result)
}

func newTaskID(articleID int64) string {
	return fmt.Sprintf("task_%d_%d", articleID, time.Now().UnixNano())
}
