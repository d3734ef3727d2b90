package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/store"
)

// FormSyncer uploads one pending inspection form and records the
// server-assigned id locally.
type FormSyncer struct {
	store  store.Store
	client api.Client
	logger *slog.Logger
}

// NewFormSyncer creates the inspection form use case.
func NewFormSyncer(s store.Store, c api.Client) *FormSyncer {
	return &FormSyncer{
		store:  s,
		client: c,
		logger: slog.Default().With("component", "form-sync"),
	}
}

// Sync submits the form and marks it synced with the returned server
// id. On any failure the local record is left untouched so a later
// pass can retry; synced forms are kept as local history, never
// deleted here.
func (f *FormSyncer) Sync(ctx context.Context, form *store.PendingForm) error {
	req := &api.InspectionRequest{
		MachineID:        form.MachineID,
		UserID:           form.UserID,
		EngineStatus:     form.EngineStatus,
		HydraulicsStatus: form.HydraulicsStatus,
		BrakesStatus:     form.BrakesStatus,
		TracksStatus:     form.TracksStatus,
		ElectricalStatus: form.ElectricalStatus,
		Notes:            form.Notes,
		IsUnexpected:     form.IsUnexpected,
		ReportedAt:       time.Unix(form.CreatedAt, 0).UTC().Format(time.RFC3339),
	}

	serverID, err := f.client.SubmitInspection(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit inspection %s: %w", form.UUID, err)
	}

	if err := f.store.MarkFormSynced(ctx, form.UUID, serverID); err != nil {
		// The upload went through but the local mark failed; the next
		// pass will resubmit and the backend may see a duplicate.
		return fmt.Errorf("failed to mark form %s synced: %w", form.UUID, err)
	}

	f.logger.Info("Inspection form synced", "uuid", form.UUID, "server_id", serverID)
	return nil
}
