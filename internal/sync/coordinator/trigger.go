package coordinator

import "github.com/maquinaplus/fieldsync/internal/sync/worker"

// Work identities. Each trigger source owns a fixed identity so the
// scheduler can deduplicate per source: a second form save while the
// first one's job is still queued is absorbed, but a manual sync is
// never blocked by a pending on-save job.
const (
	WorkPeriodic          = "fieldsync-periodic"
	WorkAppStart          = "fieldsync-app-start"
	WorkOnSaveForm        = "fieldsync-on-save-form"
	WorkOnSaveMaintenance = "fieldsync-on-save-maintenance"
	WorkManual            = "fieldsync-manual"
	WorkImagesManual      = "fieldsync-images-manual"
	WorkImagesChained     = "fieldsync-images-chained"
	WorkCleanupPeriodic   = "fieldsync-cleanup-periodic"
	WorkCleanupImmediate  = "fieldsync-cleanup-immediate"
)

// Trigger is the closed set of events that can start a sync.
type Trigger interface {
	// WorkIdentity is the scheduler dedup key for this trigger source.
	WorkIdentity() string

	// SyncScope selects what the resulting pass covers.
	SyncScope() worker.Scope

	isTrigger()
}

// FormSaved fires when the user saves an inspection form.
type FormSaved struct{}

func (FormSaved) WorkIdentity() string    { return WorkOnSaveForm }
func (FormSaved) SyncScope() worker.Scope { return worker.ScopeFormsOnly }
func (FormSaved) isTrigger()              {}

// MaintenanceSaved fires when the user saves an oil change record.
type MaintenanceSaved struct{}

func (MaintenanceSaved) WorkIdentity() string    { return WorkOnSaveMaintenance }
func (MaintenanceSaved) SyncScope() worker.Scope { return worker.ScopeMaintenanceOnly }
func (MaintenanceSaved) isTrigger()              {}

// ManualSync fires when the user taps sync. An empty scope means a
// full pass.
type ManualSync struct {
	Scope worker.Scope
}

func (m ManualSync) WorkIdentity() string {
	if m.Scope == worker.ScopeImagesOnly {
		return WorkImagesManual
	}
	return WorkManual
}

func (m ManualSync) SyncScope() worker.Scope {
	if m.Scope == "" {
		return worker.ScopeAllData
	}
	return m.Scope
}

func (ManualSync) isTrigger() {}

// PeriodicSync fires on the background schedule.
type PeriodicSync struct{}

func (PeriodicSync) WorkIdentity() string    { return WorkPeriodic }
func (PeriodicSync) SyncScope() worker.Scope { return worker.ScopeAllData }
func (PeriodicSync) isTrigger()              {}

// AppStartSync fires once when the app comes up, to drain anything
// left pending from the previous session.
type AppStartSync struct{}

func (AppStartSync) WorkIdentity() string    { return WorkAppStart }
func (AppStartSync) SyncScope() worker.Scope { return worker.ScopeAllData }
func (AppStartSync) isTrigger()              {}
