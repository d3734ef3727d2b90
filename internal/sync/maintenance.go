package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/store"
)

// MaintenanceSyncer uploads pending oil change records.
type MaintenanceSyncer struct {
	store  store.Store
	client api.Client
	logger *slog.Logger
}

// NewMaintenanceSyncer creates the maintenance record use case.
func NewMaintenanceSyncer(s store.Store, c api.Client) *MaintenanceSyncer {
	return &MaintenanceSyncer{
		store:  s,
		client: c,
		logger: slog.Default().With("component", "maintenance-sync"),
	}
}

// Sync submits one maintenance record. Unlike inspection forms, a
// record that reaches the server is deleted locally; the backend is
// its system of record. A rejected upload stores the server's error
// message on the row, a transport failure just releases the lock.
func (m *MaintenanceSyncer) Sync(ctx context.Context, rec *store.PendingMaintenance) error {
	if err := m.store.MarkMaintenanceSyncing(ctx, rec.ID, true); err != nil {
		return fmt.Errorf("failed to lock maintenance %d: %w", rec.ID, err)
	}

	req := &api.OilChangeRequest{
		MachineID:          rec.MachineID,
		OilBrandID:         rec.OilBrandID,
		Quantity:           rec.Quantity,
		CurrentHours:       rec.CurrentHours,
		AverageHoursChange: rec.AverageHoursChange,
	}

	var err error
	switch rec.Type {
	case store.MaintenanceTypeMotor:
		err = m.client.SubmitMotorOilChange(ctx, req)
	case store.MaintenanceTypeHydraulic:
		err = m.client.SubmitHydraulicOilChange(ctx, req)
	default:
		m.unlock(ctx, rec.ID)
		return fmt.Errorf("unknown maintenance type %q for record %d", rec.Type, rec.ID)
	}

	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) {
			// The server saw and rejected the record; keep its message
			// so the user can see why.
			if markErr := m.store.MarkMaintenanceFailed(context.WithoutCancel(ctx), rec.ID, httpErr.Message); markErr != nil {
				m.logger.Error("Failed to record rejection", "id", rec.ID, "error", markErr)
			}
		} else {
			m.unlock(ctx, rec.ID)
		}
		return fmt.Errorf("failed to submit %s oil change %d: %w", rec.Type, rec.ID, err)
	}

	if err := m.store.DeleteMaintenance(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete synced maintenance %d: %w", rec.ID, err)
	}

	m.logger.Info("Maintenance record synced", "id", rec.ID, "type", rec.Type)
	return nil
}

// unlock releases the row on a detached context. The usual reason a
// submit fails is the item deadline firing, and a release attempted on
// that same dead context would leave the record locked forever: nothing
// else resets maintenance locks mid-run.
func (m *MaintenanceSyncer) unlock(ctx context.Context, id int64) {
	if err := m.store.MarkMaintenanceSyncing(context.WithoutCancel(ctx), id, false); err != nil {
		m.logger.Error("Failed to release maintenance lock", "id", id, "error", err)
	}
}
