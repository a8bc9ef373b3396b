// Package embedding runs the background vectorizer over converted documents.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/harvestline/store"
)

// Pipeline is the part of the document service the runner drives.
type Pipeline interface {
	ListByStatus(ctx context.Context, status store.DocumentStatus) ([]*store.Document, error)
	Embed(ctx context.Context, id string) (int, error)
}

type Runner struct {
	pipeline  Pipeline
	interval  time.Duration
	batchSize int
	trigger   chan struct{}
}

// NewRunner creates a runner that embeds converted documents every interval.
func NewRunner(pipeline Pipeline, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Runner{
		pipeline:  pipeline,
		interval:  interval,
		batchSize: 8,
		trigger:   make(chan struct{}, 1),
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.processConverted(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processConverted(ctx)
		case <-r.trigger:
			r.processConverted(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// Trigger asks a running runner for an early pass. Requests coalesce.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// RunOnce processes documents once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) int {
	return r.processConverted(ctx)
}

func (r *Runner) processConverted(ctx context.Context) int {
	docs, err := r.pipeline.ListByStatus(ctx, store.DocumentStatusConverted)
	if err != nil {
		slog.Error("failed to find converted documents", "error", err)
		return 0
	}
	if len(docs) == 0 {
		return 0
	}

	slog.Info("embedding converted documents", "count", len(docs))

	embedded := 0
	for i := 0; i < len(docs); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding cancelled", "processed", i, "total", len(docs))
			return embedded
		default:
		}

		end := min(i+r.batchSize, len(docs))
		for _, doc := range docs[i:end] {
			chunks, err := r.pipeline.Embed(ctx, doc.ID)
			if err != nil {
				slog.Warn("failed to embed document", "id", doc.ID, "name", doc.OriginalName, "error", err)
				continue
			}
			embedded++
			slog.Debug("document embedded", "id", doc.ID, "chunks", chunks)
		}
		slog.Info("batch processed", "count", end-i, "progress", fmt.Sprintf("%d/%d", end, len(docs)))
	}
	return embedded
}
