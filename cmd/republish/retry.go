package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaiven11/artical-generate/internal/orchestrator"
	"github.com/kaiven11/artical-generate/internal/types"
)

var retrySteps string

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <article-id>",
		Short: "Re-run processing for a failed or previously-ready article",
		Long: `retry resets a failed/ready Article to pending and reprocesses it.
Use --steps to limit the run to specific steps (e.g. "optimise" to re-run
only the detect-optimise loop with the ai_reduction prompt variant, for an
article whose accepted optimisation later re-detected above threshold).`,
		Args: cobra.ExactArgs(1),
		RunE: runRetry,
	}
	cmd.Flags().StringVar(&retrySteps, "steps", "", "comma-separated steps to run (default: full derived sequence)")
	return cmd
}

func runRetry(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	articleID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid article id %q: %w", args[0], err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close(ctx)

	if err := d.store.UpdateArticle(ctx, articleID, func(a *types.Article) error {
		if !types.CanTransition(a.Status, types.StatusPending) {
			return fmt.Errorf("article %d in status %s cannot be retried", articleID, a.Status)
		}
		a.Status = types.StatusPending
		return nil
	}); err != nil {
		return err
	}

	opts := orchestrator.ProcessOptions{}
	if retrySteps != "" {
		opts.Steps = parseSteps(retrySteps)
		opts.Reentry = true
	}

	taskID, err := d.orchestrator.Process(ctx, articleID, opts)
	if err != nil {
		return fmt.Errorf("start retry: %w", err)
	}
	logger.Info("retry started", "task_id", taskID, "article_id", articleID)
	return watchTask(ctx, d, taskID, logger)
}

func parseSteps(raw string) []types.Step {
	var steps []types.Step
	for _, s := range splitAndTrim(raw) {
		steps = append(steps, types.Step(s))
	}
	return steps
}
