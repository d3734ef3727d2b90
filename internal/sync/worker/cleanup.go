package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/store"
)

// CleanupWorker releases syncing locks orphaned by a killed run and
// purges sync tracking rows past retention.
//
// The reset is unconditional: it cannot tell an orphaned lock from a
// legitimately in-flight one, so it must only run when no sync pass is
// plausibly active (the daily schedule, or a deliberate manual call).
type CleanupWorker struct {
	store     store.Store
	retention time.Duration
	logger    *slog.Logger
}

// NewCleanupWorker wires the cleanup worker.
func NewCleanupWorker(s store.Store, retention time.Duration) *CleanupWorker {
	return &CleanupWorker{
		store:     s,
		retention: retention,
		logger:    slog.Default().With("component", "cleanup-worker"),
	}
}

// Run performs one cleanup pass. Errors ask for a retry; the pass is
// idempotent.
func (w *CleanupWorker) Run(ctx context.Context) scheduler.Outcome {
	reset, err := w.store.ResetStuckSyncing(ctx)
	if err != nil {
		w.logger.Error("Failed to reset stuck syncing flags", "error", err)
		return scheduler.OutcomeRetry
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	purged, err := w.store.PurgeSyncAttempts(ctx, cutoff)
	if err != nil {
		w.logger.Error("Failed to purge sync tracking", "error", err)
		return scheduler.OutcomeRetry
	}

	w.logger.Info("Cleanup pass finished", "locks_reset", reset, "attempts_purged", purged)
	return scheduler.OutcomeSuccess
}
