package worker

import (
	"context"
	"log/slog"

	"github.com/maquinaplus/fieldsync/internal/scheduler"
	syncer "github.com/maquinaplus/fieldsync/internal/sync"
	"github.com/maquinaplus/fieldsync/internal/telemetry"
)

// ImageWorker is the job body for the chained image sync pass.
type ImageWorker struct {
	images  *syncer.ImageSyncer
	metrics *telemetry.SyncMetrics
	logger  *slog.Logger
}

// NewImageWorker wires the image sync worker.
func NewImageWorker(images *syncer.ImageSyncer, opts ...Option) *ImageWorker {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &ImageWorker{
		images:  images,
		metrics: o.metrics,
		logger:  slog.Default().With("component", "image-worker"),
	}
}

// Run uploads one batch of eligible images. Per-image failures don't
// fail the job; those images stay eligible for the next pass.
func (w *ImageWorker) Run(ctx context.Context) (outcome scheduler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Image pass panicked", "panic", r)
			outcome = scheduler.OutcomeFailure
		}
	}()

	tally, err := w.images.SyncBatch(ctx)
	if err != nil {
		w.logger.Error("Image batch failed", "error", err)
		return scheduler.OutcomeFailure
	}

	w.metrics.RecordItems(ctx, "image", tally.Succeeded, tally.Failed)
	w.logger.Info("Image pass finished", "succeeded", tally.Succeeded, "failed", tally.Failed)
	return scheduler.OutcomeSuccess
}
