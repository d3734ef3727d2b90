// Package worker holds the background job bodies executed by the
// scheduler: the data sync pass, the image sync pass, and cleanup.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/session"
	"github.com/maquinaplus/fieldsync/internal/store"
	syncer "github.com/maquinaplus/fieldsync/internal/sync"
	"github.com/maquinaplus/fieldsync/internal/telemetry"
)

// Option configures optional worker dependencies.
type Option func(*options)

type options struct {
	metrics *telemetry.SyncMetrics
}

// WithSyncMetrics records per-item outcome metrics on every pass.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Scope selects which entity types a data sync pass covers.
type Scope string

const (
	// ScopeAllData syncs forms, maintenance, chained images, and
	// opportunistically master data
	ScopeAllData Scope = "ALL_DATA"

	// ScopeFormsOnly syncs pending inspection forms
	ScopeFormsOnly Scope = "FORMS_ONLY"

	// ScopeMaintenanceOnly syncs pending maintenance records
	ScopeMaintenanceOnly Scope = "MAINTENANCE_ONLY"

	// ScopeImagesOnly only chains the image sync job
	ScopeImagesOnly Scope = "IMAGES_ONLY"

	// ScopeMachinesOnly refreshes the machine catalog
	ScopeMachinesOnly Scope = "MACHINES_ONLY"

	// ScopeOilsOnly refreshes the oil brand catalog
	ScopeOilsOnly Scope = "OILS_ONLY"

	// ScopeMasterData refreshes both catalogs
	ScopeMasterData Scope = "MASTER_DATA"
)

// Timeouts bounds each step of a data sync pass independently. A step
// that exceeds its bound fails that step only, never the whole pass.
type Timeouts struct {
	Session    time.Duration
	Fetch      time.Duration
	Item       time.Duration
	MasterData time.Duration
}

// DefaultTimeouts returns the standard step bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Session:    10 * time.Second,
		Fetch:      30 * time.Second,
		Item:       30 * time.Second,
		MasterData: 60 * time.Second,
	}
}

// SessionValidator gates network sync on a usable session.
type SessionValidator interface {
	Validate(ctx context.Context) session.Status
}

// DataWorker is the idempotent job body driving one full sync pass.
type DataWorker struct {
	store       store.Store
	validator   SessionValidator
	forms       *syncer.FormSyncer
	maintenance *syncer.MaintenanceSyncer
	master      *syncer.MasterDataSyncer
	timeouts    Timeouts
	workerID    string
	metrics     *telemetry.SyncMetrics
	logger      *slog.Logger

	// chainImages enqueues the image sync job under its keep-if-exists
	// identity. The data worker never uploads images itself.
	chainImages func() error
}

// NewDataWorker wires one data sync worker.
func NewDataWorker(
	s store.Store,
	validator SessionValidator,
	forms *syncer.FormSyncer,
	maintenance *syncer.MaintenanceSyncer,
	master *syncer.MasterDataSyncer,
	chainImages func() error,
	timeouts Timeouts,
	opts ...Option,
) *DataWorker {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &DataWorker{
		store:       s,
		validator:   validator,
		forms:       forms,
		maintenance: maintenance,
		master:      master,
		chainImages: chainImages,
		timeouts:    timeouts,
		workerID:    "data-worker-" + uuid.NewString()[:8],
		metrics:     o.metrics,
		logger:      slog.Default().With("component", "data-worker"),
	}
}

// Run executes one sync pass and reports the job outcome.
//
// Per-item failures are tallied, logged, and left for the next pass;
// they never fail the job. A failed job would be retried by the
// scheduler against the same pending rows, stacking a second retry
// cadence on top of the periodic schedule.
func (w *DataWorker) Run(ctx context.Context, scope Scope) (outcome scheduler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Sync pass panicked", "panic", r)
			outcome = scheduler.OutcomeFailure
		}
	}()

	if scope == "" {
		scope = ScopeAllData
	}
	w.logger.Info("Starting sync pass", "scope", scope, "worker_id", w.workerID)

	sessionStatus, sessionTimedOut := w.validateSession(ctx)
	if sessionStatus == session.StatusExpired {
		w.logger.Warn("Session expired, aborting sync pass")
		return scheduler.OutcomeFailure
	}

	var tally syncer.Tally
	if scope == ScopeAllData || scope == ScopeFormsOnly {
		forms := w.syncForms(ctx)
		w.metrics.RecordItems(ctx, "form", forms.Succeeded, forms.Failed)
		tally.Add(forms)
	}
	if scope == ScopeAllData || scope == ScopeMaintenanceOnly {
		maint := w.syncMaintenance(ctx)
		w.metrics.RecordItems(ctx, "maintenance", maint.Succeeded, maint.Failed)
		tally.Add(maint)
	}

	switch scope {
	case ScopeAllData, ScopeFormsOnly, ScopeMaintenanceOnly, ScopeImagesOnly:
		if err := w.chainImages(); err != nil {
			w.logger.Error("Failed to chain image sync job", "error", err)
			tally.Failed++
		}
	}

	w.syncMasterData(ctx, scope, tally)

	if sessionTimedOut {
		w.logger.Warn("Session validation timed out, reporting pass as failed",
			"succeeded", tally.Succeeded, "failed", tally.Failed)
		return scheduler.OutcomeFailure
	}

	w.logger.Info("Sync pass finished", "scope", scope,
		"succeeded", tally.Succeeded, "failed", tally.Failed)
	return scheduler.OutcomeSuccess
}

// validateSession runs the validator under its own bound. A timeout is
// not EXPIRED: the pass proceeds with its local steps, but the final
// outcome is forced to failure by the caller.
func (w *DataWorker) validateSession(ctx context.Context) (session.Status, bool) {
	sctx, cancel := context.WithTimeout(ctx, w.timeouts.Session)
	defer cancel()

	status := w.validator.Validate(sctx)
	timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
	return status, timedOut
}

func (w *DataWorker) syncForms(ctx context.Context) syncer.Tally {
	fctx, cancel := context.WithTimeout(ctx, w.timeouts.Fetch)
	forms, err := w.store.PendingForms(fctx)
	cancel()
	if err != nil {
		w.logger.Error("Failed to fetch pending forms", "error", err)
		return syncer.Tally{Failed: 1}
	}

	var tally syncer.Tally
	for i := range forms {
		if err := ctx.Err(); err != nil {
			break
		}
		if w.syncOneForm(ctx, &forms[i]) {
			tally.Succeeded++
		} else {
			tally.Failed++
		}
	}
	return tally
}

// syncOneForm attempts a single form under the per-item bound and
// records the attempt in sync tracking.
func (w *DataWorker) syncOneForm(ctx context.Context, form *store.PendingForm) bool {
	if form.IsSyncing {
		// Another run holds the row; skip rather than double-submit.
		w.recordAttempt(ctx, form.UUID, store.AttemptSkipped, "")
		return true
	}

	if err := w.store.MarkFormSyncing(ctx, form.UUID, true); err != nil {
		w.logger.Error("Failed to lock form", "uuid", form.UUID, "error", err)
		return false
	}

	w.recordAttempt(ctx, form.UUID, store.AttemptStarted, "")

	ictx, cancel := context.WithTimeout(ctx, w.timeouts.Item)
	err := w.forms.Sync(ictx, form)
	cancel()

	if err != nil {
		w.logger.Warn("Form sync failed", "uuid", form.UUID, "error", err)
		w.recordAttempt(ctx, form.UUID, store.AttemptFailed, err.Error())
		// Detached context: the failure may be this pass being
		// cancelled, and the lock must still come off.
		if unlockErr := w.store.MarkFormSyncing(context.WithoutCancel(ctx), form.UUID, false); unlockErr != nil {
			w.logger.Error("Failed to release form lock", "uuid", form.UUID, "error", unlockErr)
		}
		return false
	}

	w.recordAttempt(ctx, form.UUID, store.AttemptSuccess, "")
	return true
}

func (w *DataWorker) recordAttempt(ctx context.Context, formUUID string, status store.AttemptStatus, errMsg string) {
	count, err := w.store.AttemptCount(ctx, formUUID)
	if err != nil {
		w.logger.Error("Failed to count attempts", "uuid", formUUID, "error", err)
	}
	attempt := &store.SyncAttempt{
		FormUUID:     formUUID,
		AttemptID:    uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		Status:       status,
		WorkerID:     w.workerID,
		AttemptCount: count + 1,
		ErrorMsg:     errMsg,
	}
	if err := w.store.RecordSyncAttempt(ctx, attempt); err != nil {
		w.logger.Error("Failed to record sync attempt", "uuid", formUUID, "error", err)
	}
}

func (w *DataWorker) syncMaintenance(ctx context.Context) syncer.Tally {
	fctx, cancel := context.WithTimeout(ctx, w.timeouts.Fetch)
	records, err := w.store.PendingMaintenance(fctx)
	cancel()
	if err != nil {
		w.logger.Error("Failed to fetch pending maintenance", "error", err)
		return syncer.Tally{Failed: 1}
	}

	var tally syncer.Tally
	for i := range records {
		if err := ctx.Err(); err != nil {
			break
		}
		ictx, cancel := context.WithTimeout(ctx, w.timeouts.Item)
		err := w.maintenance.Sync(ictx, &records[i])
		cancel()
		if err != nil {
			w.logger.Warn("Maintenance sync failed", "id", records[i].ID, "error", err)
			tally.Failed++
			continue
		}
		tally.Succeeded++
	}
	return tally
}

// syncMasterData refreshes catalogs when explicitly requested, or on a
// full pass that had nothing pending so the bandwidth is free.
func (w *DataWorker) syncMasterData(ctx context.Context, scope Scope, tally syncer.Tally) {
	machines := scope == ScopeMachinesOnly || scope == ScopeMasterData
	oils := scope == ScopeOilsOnly || scope == ScopeMasterData

	if scope == ScopeAllData && tally == (syncer.Tally{}) {
		machines, oils = true, true
	}
	if !machines && !oils {
		return
	}

	if machines {
		mctx, cancel := context.WithTimeout(ctx, w.timeouts.MasterData)
		if err := w.master.FetchMachines(mctx); err != nil {
			w.logger.Warn("Machine catalog refresh failed", "error", err)
		}
		cancel()
	}
	if oils {
		octx, cancel := context.WithTimeout(ctx, w.timeouts.MasterData)
		if err := w.master.FetchOilBrands(octx); err != nil {
			w.logger.Warn("Oil brand catalog refresh failed", "error", err)
		}
		cancel()
	}
}
