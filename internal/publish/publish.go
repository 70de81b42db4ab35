// Package publish defines the Publisher interface the orchestrator's
// "publish" step targets. Real publishing adapters (CMS/platform clients)
// are out of scope for the core (spec §1); this package keeps the step
// exercisable with a no-op default, following the teacher's pattern of
// small one-method interfaces with a single first-party implementation
// (engine.Storage, engine.Pipeline in internal/engine/engine.go).
package publish

import (
	"context"
	"log/slog"

	"github.com/kaiven11/artical-generate/internal/types"
)

// Publisher hands a ready Article off to whatever external platform would
// actually carry it; the core only needs to know it was asked to.
type Publisher interface {
	Publish(ctx context.Context, article *types.Article) error
}

// NoopPublisher logs the request and succeeds, standing in for the
// out-of-scope real publishing adapters spec.md §1 names.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger.With("component", "publisher")}
}

func (p *NoopPublisher) Publish(_ context.Context, article *types.Article) error {
	p.logger.Info("publish step reached (no-op adapter)", "article_id", article.ID, "title", article.Title)
	return nil
}
