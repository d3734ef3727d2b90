// Package store provides the local record store for pending inspection
// data awaiting synchronization with the backend.
//
// The store exclusively owns persisted entity state. Workers borrow
// entities via query results and communicate mutation intent back
// through narrow update operations (mark-synced, mark-syncing, and so
// on); every mutation is a single atomic statement so that a cancelled
// worker never leaves a half-applied write behind.
package store

import "time"

// PendingForm is a locally saved inspection form awaiting sync.
//
// Forms are never deleted locally: once synced they remain as history,
// and "pending" views always filter on IsSynced = false.
type PendingForm struct {
	// UUID is the client-generated identifier, stable across retries
	UUID string

	// ServerID is the server-assigned identifier, nil until the first
	// successful sync. IsSynced implies ServerID is non-nil.
	ServerID *int64

	// Inspection status fields. Free-form short strings; the domain
	// uses values like "Óptimo", "Regular" and "Malo" but they are
	// stored untyped.
	EngineStatus     string
	HydraulicsStatus string
	BrakesStatus     string
	TracksStatus     string
	ElectricalStatus string
	Notes            string

	// CreatedAt is the local creation time as a unix epoch (seconds)
	CreatedAt int64

	MachineID int64
	UserID    int64

	// IsUnexpected distinguishes an ad-hoc incident report from a
	// scheduled inspection
	IsUnexpected bool

	IsSynced  bool
	IsSyncing bool
}

// PendingImage is a compressed photo attached to a pending form.
//
// An image is eligible for upload only once its parent form has a
// server-assigned identifier; the eligibility join lives in the
// pending-images query, not in application logic.
type PendingImage struct {
	ID       int64
	FormUUID string

	// FileURI is the local file location of the already-compressed image
	FileURI string

	IsSynced  bool
	IsSyncing bool
}

// UploadableImage is a pending image joined with its parent form's
// server identifier, as returned by the pending-images query.
type UploadableImage struct {
	PendingImage

	// FormServerID is the parent form's server-assigned identifier
	FormServerID int64
}

// Maintenance type discriminators.
const (
	MaintenanceTypeMotor     = "motor"
	MaintenanceTypeHydraulic = "hydraulic"
)

// PendingMaintenance is a locally saved oil-change entry awaiting sync.
//
// Unlike forms, successfully synced maintenance entries are deleted
// locally; forms double as an audit log, maintenance does not.
type PendingMaintenance struct {
	ID        int64
	MachineID int64

	OilBrandID   int64
	OilBrandName string
	Quantity     float64

	// CurrentHours is the hour-meter reading at the time of the change
	CurrentHours int64

	// AverageHoursChange is the average hour-meter delta between changes
	AverageHoursChange int64

	// Type is one of MaintenanceTypeMotor or MaintenanceTypeHydraulic
	Type string

	IsSynced  bool
	IsSyncing bool

	// LastError is the most recent sync error message, if any
	LastError string
}

// Machine is a master-data record mirrored from the server.
type Machine struct {
	ID    int64
	Name  string
	Model string
}

// OilBrand is a master-data record mirrored from the server.
type OilBrand struct {
	ID   int64
	Name string
}

// AttemptStatus is the status of one recorded sync attempt.
type AttemptStatus string

const (
	// AttemptStarted means the attempt began and has not resolved yet
	AttemptStarted AttemptStatus = "STARTED"

	// AttemptSuccess means the attempt completed successfully
	AttemptSuccess AttemptStatus = "SUCCESS"

	// AttemptFailed means the attempt failed
	AttemptFailed AttemptStatus = "FAILED"

	// AttemptSkipped means the attempt was skipped because another
	// run already held the record
	AttemptSkipped AttemptStatus = "SKIPPED"
)

// SyncAttempt records one sync attempt against a form, for duplicate
// detection and forensic history.
type SyncAttempt struct {
	FormUUID  string
	AttemptID string
	StartedAt time.Time
	Status    AttemptStatus
	WorkerID  string

	// AttemptCount is the number of attempts recorded for the form so
	// far, including this one
	AttemptCount int

	ErrorMsg string
}
