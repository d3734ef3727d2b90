package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/store"
	syncer "github.com/maquinaplus/fieldsync/internal/sync"
	"github.com/maquinaplus/fieldsync/internal/telemetry"
)

func TestImageWorkerUploadsEligibleBatch(t *testing.T) {
	t.Parallel()
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		uploads.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	imgPath := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(imgPath, []byte("jpeg-bytes"), 0o600))

	require.NoError(t, s.SaveFormWithImages(ctx, &store.PendingForm{
		UUID: "u1", CreatedAt: 1, MachineID: 7, UserID: 3,
	}, []store.PendingImage{{FileURI: imgPath}}))

	w := NewImageWorker(syncer.NewImageSyncer(s, api.NewClient(srv.URL), 20))

	// Parent not synced yet: nothing is eligible, the run still succeeds.
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))
	assert.Zero(t, uploads.Load())

	require.NoError(t, s.MarkFormSynced(ctx, "u1", 42))
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))
	assert.Equal(t, int32(1), uploads.Load())

	remaining, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestImageWorkerPerImageFailureStillSucceeds(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	// The file never existed on disk: the upload can't start.
	require.NoError(t, s.SaveFormWithImages(ctx, &store.PendingForm{
		UUID: "u1", CreatedAt: 1, MachineID: 7, UserID: 3,
	}, []store.PendingImage{{FileURI: filepath.Join(t.TempDir(), "gone.jpg")}}))
	require.NoError(t, s.MarkFormSynced(ctx, "u1", 42))

	w := NewImageWorker(syncer.NewImageSyncer(s, api.NewClient(srv.URL), 20))
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))

	// Still eligible for the next pass, lock released.
	remaining, err := s.PendingImages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.False(t, remaining[0].IsSyncing)
}

func TestImageWorkerRecordsItemMetrics(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	imgPath := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(imgPath, []byte("jpeg-bytes"), 0o600))
	require.NoError(t, s.SaveFormWithImages(ctx, &store.PendingForm{
		UUID: "u1", CreatedAt: 1, MachineID: 7, UserID: 3,
	}, []store.PendingImage{{FileURI: imgPath}}))
	require.NoError(t, s.MarkFormSynced(ctx, "u1", 42))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewSyncMetrics(provider)
	require.NoError(t, err)

	w := NewImageWorker(syncer.NewImageSyncer(s, api.NewClient(srv.URL), 20), WithSyncMetrics(m))
	assert.Equal(t, scheduler.OutcomeSuccess, w.Run(ctx))

	counts := itemCounts(t, reader)
	assert.Equal(t, int64(1), counts["image/success"])
}

func TestImageWorkerStoreErrorFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	w := NewImageWorker(syncer.NewImageSyncer(s, api.NewClient(srv.URL), 20))
	assert.Equal(t, scheduler.OutcomeFailure, w.Run(context.Background()))
}
