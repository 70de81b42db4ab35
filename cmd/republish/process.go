package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaiven11/artical-generate/internal/config"
	"github.com/kaiven11/artical-generate/internal/orchestrator"
	"github.com/kaiven11/artical-generate/internal/types"
)

var (
	topicFlag        string
	categoryFlag     string
	targetLengthFlag string
	writingStyleFlag string
	keywordsFlag     string
	requirementsFlag string
	autoPublishFlag  bool
	waitFlag         bool
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [url]",
		Short: "Process a source URL or topic prompt through the republishing pipeline",
		Long: `process takes either a source URL (extract/translate/optimise) or,
with --topic, a topic prompt (create), and runs it through the
detect-optimise loop until the rewritten content passes the configured
AI-detection threshold or the attempt budget is exhausted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().StringVar(&topicFlag, "topic", "", "topic prompt for the create path (mutually exclusive with [url])")
	cmd.Flags().StringVar(&categoryFlag, "category", "", "article category")
	cmd.Flags().StringVar(&targetLengthFlag, "target-length", "medium", "target length: mini, short, medium, long")
	cmd.Flags().StringVar(&writingStyleFlag, "writing-style", "", "requested writing style")
	cmd.Flags().StringVar(&keywordsFlag, "keywords", "", "comma-separated keywords")
	cmd.Flags().StringVar(&requirementsFlag, "requirements", "", "free-form creation requirements")
	cmd.Flags().BoolVar(&autoPublishFlag, "auto-publish", false, "append the publish step on success")
	cmd.Flags().BoolVar(&waitFlag, "wait", true, "block until the task finishes, printing progress")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if (len(args) == 0) == (topicFlag == "") {
		return fmt.Errorf("provide exactly one of [url] or --topic")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close(ctx)

	article, err := buildArticle(args, cfg)
	if err != nil {
		return err
	}

	articleID, err := d.store.CreateArticle(ctx, article)
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}

	taskID, err := d.orchestrator.Process(ctx, articleID, orchestrator.ProcessOptions{
		AutoPublish: autoPublishFlag,
	})
	if err != nil {
		return fmt.Errorf("start processing: %w", err)
	}
	logger.Info("task started", "task_id", taskID, "article_id", articleID)

	if !waitFlag {
		fmt.Println(taskID)
		return nil
	}
	return watchTask(ctx, d, taskID, logger)
}

func buildArticle(args []string, cfg *config.Config) (*types.Article, error) {
	targetLength := types.TargetLength(targetLengthFlag)
	if _, ok := types.TargetLengthRanges[targetLength]; !ok {
		return nil, fmt.Errorf("invalid --target-length %q", targetLengthFlag)
	}

	var article *types.Article
	if topicFlag != "" {
		article = types.NewTopicCreationArticle(topicFlag, time.Now())
	} else {
		sourceURL := args[0]
		if err := config.ValidateURL(sourceURL); err != nil {
			return nil, fmt.Errorf("invalid URL %q: %w", sourceURL, err)
		}
		article = types.NewURLImportArticle(sourceURL)
	}

	article.Category = categoryFlag
	article.TargetLength = targetLength
	article.WritingStyle = writingStyleFlag
	article.CreationRequirements = requirementsFlag
	if keywordsFlag != "" {
		for _, kw := range strings.Split(keywordsFlag, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				article.Keywords = append(article.Keywords, kw)
			}
		}
	}

	if err := article.Validate(); err != nil {
		return nil, err
	}
	return article, nil
}

// watchTask polls Task status until it leaves "running"/"pending", printing
// progress — a CLI-only convenience, not part of the orchestrator itself.
func watchTask(ctx context.Context, d *deps, taskID string, logger interface {
	Info(msg string, args ...any)
}) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		task, err := findTaskByTaskID(ctx, d, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			continue
		}
		if task.Progress != lastProgress {
			logger.Info("progress", "task_id", taskID, "progress", task.Progress, "step", task.CurrentStep)
			lastProgress = task.Progress
		}

		switch task.Status {
		case types.TaskCompleted:
			fmt.Printf("completed: article %d ready\n", task.ArticleID)
			return nil
		case types.TaskFailed:
			article, _ := d.store.GetArticle(ctx, task.ArticleID)
			if article != nil {
				return fmt.Errorf("task failed: %s", article.LastError)
			}
			return fmt.Errorf("task failed")
		case types.TaskCancelled:
			return fmt.Errorf("task cancelled")
		}
	}
}

// findTaskByTaskID scans active tasks for the matching caller-facing id.
// The Store interface exposes tasks by numeric id or active-list only
// (§4.A); a CLI watching its own just-created task is the one place that
// needs this lookup, so it lives here rather than growing the Store
// interface for every caller.
func findTaskByTaskID(ctx context.Context, d *deps, taskID string) (*types.Task, error) {
	tasks, err := d.store.ListActiveTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.TaskID == taskID {
			return t, nil
		}
	}
	return nil, nil
}
