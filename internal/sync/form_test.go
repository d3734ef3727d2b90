package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func savedForm(t *testing.T, s store.Store, formUUID string) *store.PendingForm {
	t.Helper()
	form := &store.PendingForm{
		UUID:             formUUID,
		EngineStatus:     "Óptimo",
		HydraulicsStatus: "Regular",
		BrakesStatus:     "Óptimo",
		TracksStatus:     "Malo",
		ElectricalStatus: "Óptimo",
		Notes:            "fuga leve en manguera",
		CreatedAt:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).Unix(),
		MachineID:        7,
		UserID:           3,
	}
	require.NoError(t, s.SaveFormWithImages(context.Background(), form, nil))
	return form
}

func TestFormSyncerAssignsServerID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/inspection", r.URL.Path)

		var req api.InspectionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(7), req.MachineID)
		assert.Equal(t, "2026-03-10T12:00:00Z", req.ReportedAt)

		json.NewEncoder(w).Encode(api.InspectionResponse{ID: 1001})
	}))
	defer srv.Close()

	s := openTestStore(t)
	form := savedForm(t, s, "u1")

	syncer := NewFormSyncer(s, api.NewClient(srv.URL))
	require.NoError(t, syncer.Sync(context.Background(), form))

	got, err := s.GetForm(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, got.ServerID)
	assert.Equal(t, int64(1001), *got.ServerID)
	assert.True(t, got.IsSynced)

	// Synced forms are kept as local history.
	pending, err := s.PendingForms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFormSyncerLeavesRecordOnFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "db down"}`))
	}))
	defer srv.Close()

	s := openTestStore(t)
	form := savedForm(t, s, "u1")

	syncer := NewFormSyncer(s, api.NewClient(srv.URL))
	err := syncer.Sync(context.Background(), form)
	require.Error(t, err)

	var httpErr *api.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "db down", httpErr.Message)

	// The form is untouched and stays pending for the next pass.
	got, err := s.GetForm(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got.ServerID)
	assert.False(t, got.IsSynced)
}
