package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/store"
)

func TestCleanupResetsLocksAndPurgesTracking(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	// A form left locked by a killed run.
	require.NoError(t, s.SaveFormWithImages(ctx, &store.PendingForm{
		UUID: "u1", CreatedAt: 1, MachineID: 7, UserID: 3,
	}, nil))
	require.NoError(t, s.MarkFormSyncing(ctx, "u1", true))

	// One attempt past retention, one recent.
	require.NoError(t, s.RecordSyncAttempt(ctx, &store.SyncAttempt{
		FormUUID: "u1", AttemptID: uuid.NewString(),
		StartedAt: time.Now().Add(-10 * 24 * time.Hour),
		Status:    store.AttemptFailed, WorkerID: "w", AttemptCount: 1,
	}))
	require.NoError(t, s.RecordSyncAttempt(ctx, &store.SyncAttempt{
		FormUUID: "u1", AttemptID: uuid.NewString(),
		StartedAt: time.Now(),
		Status:    store.AttemptSuccess, WorkerID: "w", AttemptCount: 2,
	}))

	w := NewCleanupWorker(s, 7*24*time.Hour)
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))

	got, err := s.GetForm(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.IsSyncing)

	count, err := s.AttemptCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Idempotent: a second pass finds nothing and still succeeds.
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))
}

func TestCleanupStoreErrorAsksForRetry(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	w := NewCleanupWorker(s, 7*24*time.Hour)
	assert.Equal(t, scheduler.OutcomeRetry, w.Run(context.Background()))
}
