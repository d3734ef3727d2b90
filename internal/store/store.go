package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record can't be found.
var ErrNotFound = errors.New("record not found")

// Store is the local record store contract consumed by the sync workers.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/maquinaplus/fieldsync/internal/store Store
type Store interface {
	// SaveFormWithImages persists a new pending form together with its
	// attached images in one transaction (the form-save UI action).
	SaveFormWithImages(ctx context.Context, form *PendingForm, images []PendingImage) error

	// PendingForms returns all forms with IsSynced = false.
	PendingForms(ctx context.Context) ([]PendingForm, error)

	// GetForm returns a form by its client UUID.
	GetForm(ctx context.Context, formUUID string) (*PendingForm, error)

	// MarkFormSyncing sets or clears the in-flight lock on a form.
	MarkFormSyncing(ctx context.Context, formUUID string, syncing bool) error

	// MarkFormSynced records a successful sync: sets the server ID,
	// IsSynced = true and clears the syncing flag.
	MarkFormSynced(ctx context.Context, formUUID string, serverID int64) error

	// InsertMaintenance persists a new pending maintenance entry.
	InsertMaintenance(ctx context.Context, m *PendingMaintenance) (int64, error)

	// PendingMaintenance returns entries with IsSynced = false and
	// IsSyncing = false.
	PendingMaintenance(ctx context.Context) ([]PendingMaintenance, error)

	// MarkMaintenanceSyncing sets or clears the in-flight lock.
	MarkMaintenanceSyncing(ctx context.Context, id int64, syncing bool) error

	// MarkMaintenanceFailed clears the syncing flag and records the
	// error message against the row.
	MarkMaintenanceFailed(ctx context.Context, id int64, errMsg string) error

	// DeleteMaintenance removes a synced entry (no retained history).
	DeleteMaintenance(ctx context.Context, id int64) error

	// GetMaintenance returns a maintenance entry by local ID.
	GetMaintenance(ctx context.Context, id int64) (*PendingMaintenance, error)

	// PendingImages returns up to limit images eligible for upload:
	// not synced, not syncing, and whose parent form is synced with a
	// server identifier.
	PendingImages(ctx context.Context, limit int) ([]UploadableImage, error)

	// MarkImageSyncing sets or clears the in-flight lock on an image.
	MarkImageSyncing(ctx context.Context, id int64, syncing bool) error

	// MarkImageSynced records a successful upload and clears the
	// syncing flag.
	MarkImageSynced(ctx context.Context, id int64) error

	// ResetStuckSyncing unconditionally clears the syncing flag on
	// every form, image and maintenance record, returning how many
	// rows were reset. Only safe when no sync run is active.
	ResetStuckSyncing(ctx context.Context) (int64, error)

	// ReplaceMachines replaces the machine master-data table.
	ReplaceMachines(ctx context.Context, machines []Machine) error

	// Machines returns the mirrored machine master data.
	Machines(ctx context.Context) ([]Machine, error)

	// ReplaceOilBrands replaces the oil-brand master-data table.
	ReplaceOilBrands(ctx context.Context, brands []OilBrand) error

	// OilBrands returns the mirrored oil-brand master data.
	OilBrands(ctx context.Context) ([]OilBrand, error)

	// RecordSyncAttempt appends a sync-tracking row.
	RecordSyncAttempt(ctx context.Context, attempt *SyncAttempt) error

	// AttemptCount returns how many attempts are recorded for a form.
	AttemptCount(ctx context.Context, formUUID string) (int, error)

	// SyncAttempts returns the recorded attempts for a form, newest first.
	SyncAttempts(ctx context.Context, formUUID string) ([]SyncAttempt, error)

	// PurgeSyncAttempts deletes tracking rows started before cutoff,
	// returning how many were removed.
	PurgeSyncAttempts(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
