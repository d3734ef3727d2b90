package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// sqlite driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_forms (
	uuid              TEXT PRIMARY KEY,
	server_id         INTEGER,
	engine_status     TEXT NOT NULL DEFAULT '',
	hydraulics_status TEXT NOT NULL DEFAULT '',
	brakes_status     TEXT NOT NULL DEFAULT '',
	tracks_status     TEXT NOT NULL DEFAULT '',
	electrical_status TEXT NOT NULL DEFAULT '',
	notes             TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	machine_id        INTEGER NOT NULL,
	user_id           INTEGER NOT NULL,
	is_unexpected     INTEGER NOT NULL DEFAULT 0,
	is_synced         INTEGER NOT NULL DEFAULT 0,
	is_syncing        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pending_forms_synced ON pending_forms(is_synced);

CREATE TABLE IF NOT EXISTS pending_images (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	form_uuid  TEXT NOT NULL REFERENCES pending_forms(uuid),
	file_uri   TEXT NOT NULL,
	is_synced  INTEGER NOT NULL DEFAULT 0,
	is_syncing INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pending_images_form ON pending_images(form_uuid);

CREATE TABLE IF NOT EXISTS maintenance_forms (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	machine_id           INTEGER NOT NULL,
	oil_brand_id         INTEGER NOT NULL,
	oil_brand_name       TEXT NOT NULL DEFAULT '',
	quantity             REAL NOT NULL DEFAULT 0,
	current_hours        INTEGER NOT NULL DEFAULT 0,
	average_hours_change INTEGER NOT NULL DEFAULT 0,
	type                 TEXT NOT NULL,
	is_synced            INTEGER NOT NULL DEFAULT 0,
	is_syncing           INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS machines (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS oil_brands (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_tracking (
	attempt_id    TEXT PRIMARY KEY,
	form_uuid     TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	worker_id     TEXT NOT NULL DEFAULT '',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	error_msg     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_tracking_form ON sync_tracking(form_uuid);
CREATE INDEX IF NOT EXISTS idx_sync_tracking_started ON sync_tracking(started_at);
`

// sqliteStore implements Store on a local sqlite database.
type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite record store at path.
func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The agent is the only writer; a single connection sidesteps
	// sqlite's writer lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) SaveFormWithImages(ctx context.Context, form *PendingForm, images []PendingImage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_forms (
			uuid, server_id, engine_status, hydraulics_status, brakes_status,
			tracks_status, electrical_status, notes, created_at, machine_id,
			user_id, is_unexpected, is_synced, is_syncing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		form.UUID, form.ServerID, form.EngineStatus, form.HydraulicsStatus,
		form.BrakesStatus, form.TracksStatus, form.ElectricalStatus, form.Notes,
		form.CreatedAt, form.MachineID, form.UserID, form.IsUnexpected,
	)
	if err != nil {
		return fmt.Errorf("failed to insert form: %w", err)
	}

	for i := range images {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_images (form_uuid, file_uri, is_synced, is_syncing) VALUES (?, ?, 0, 0)`,
			form.UUID, images[i].FileURI,
		)
		if err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}

	return tx.Commit()
}

const selectForm = `
	SELECT uuid, server_id, engine_status, hydraulics_status, brakes_status,
	       tracks_status, electrical_status, notes, created_at, machine_id,
	       user_id, is_unexpected, is_synced, is_syncing
	FROM pending_forms`

func scanForm(row interface{ Scan(...any) error }) (PendingForm, error) {
	var f PendingForm
	var serverID sql.NullInt64
	err := row.Scan(
		&f.UUID, &serverID, &f.EngineStatus, &f.HydraulicsStatus,
		&f.BrakesStatus, &f.TracksStatus, &f.ElectricalStatus, &f.Notes,
		&f.CreatedAt, &f.MachineID, &f.UserID, &f.IsUnexpected,
		&f.IsSynced, &f.IsSyncing,
	)
	if err != nil {
		return PendingForm{}, err
	}
	if serverID.Valid {
		f.ServerID = &serverID.Int64
	}
	return f, nil
}

func (s *sqliteStore) PendingForms(ctx context.Context) ([]PendingForm, error) {
	rows, err := s.db.QueryContext(ctx, selectForm+` WHERE is_synced = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending forms: %w", err)
	}
	defer rows.Close()

	var forms []PendingForm
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

func (s *sqliteStore) GetForm(ctx context.Context, formUUID string) (*PendingForm, error) {
	row := s.db.QueryRowContext(ctx, selectForm+` WHERE uuid = ?`, formUUID)
	f, err := scanForm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return &f, nil
}

func (s *sqliteStore) MarkFormSyncing(ctx context.Context, formUUID string, syncing bool) error {
	return s.execOne(ctx,
		`UPDATE pending_forms SET is_syncing = ? WHERE uuid = ?`,
		syncing, formUUID,
	)
}

func (s *sqliteStore) MarkFormSynced(ctx context.Context, formUUID string, serverID int64) error {
	return s.execOne(ctx,
		`UPDATE pending_forms SET server_id = ?, is_synced = 1, is_syncing = 0 WHERE uuid = ?`,
		serverID, formUUID,
	)
}

func (s *sqliteStore) InsertMaintenance(ctx context.Context, m *PendingMaintenance) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_forms (
			machine_id, oil_brand_id, oil_brand_name, quantity, current_hours,
			average_hours_change, type, is_synced, is_syncing, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, '')`,
		m.MachineID, m.OilBrandID, m.OilBrandName, m.Quantity,
		m.CurrentHours, m.AverageHoursChange, m.Type,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert maintenance: %w", err)
	}
	return res.LastInsertId()
}

const selectMaintenance = `
	SELECT id, machine_id, oil_brand_id, oil_brand_name, quantity,
	       current_hours, average_hours_change, type, is_synced, is_syncing,
	       last_error
	FROM maintenance_forms`

func scanMaintenance(row interface{ Scan(...any) error }) (PendingMaintenance, error) {
	var m PendingMaintenance
	err := row.Scan(
		&m.ID, &m.MachineID, &m.OilBrandID, &m.OilBrandName, &m.Quantity,
		&m.CurrentHours, &m.AverageHoursChange, &m.Type, &m.IsSynced,
		&m.IsSyncing, &m.LastError,
	)
	return m, err
}

func (s *sqliteStore) PendingMaintenance(ctx context.Context) ([]PendingMaintenance, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMaintenance+` WHERE is_synced = 0 AND is_syncing = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending maintenance: %w", err)
	}
	defer rows.Close()

	var entries []PendingMaintenance
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan maintenance: %w", err)
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}

func (s *sqliteStore) GetMaintenance(ctx context.Context, id int64) (*PendingMaintenance, error) {
	row := s.db.QueryRowContext(ctx, selectMaintenance+` WHERE id = ?`, id)
	m, err := scanMaintenance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get maintenance: %w", err)
	}
	return &m, nil
}

func (s *sqliteStore) MarkMaintenanceSyncing(ctx context.Context, id int64, syncing bool) error {
	return s.execOne(ctx,
		`UPDATE maintenance_forms SET is_syncing = ? WHERE id = ?`,
		syncing, id,
	)
}

func (s *sqliteStore) MarkMaintenanceFailed(ctx context.Context, id int64, errMsg string) error {
	return s.execOne(ctx,
		`UPDATE maintenance_forms SET is_syncing = 0, last_error = ? WHERE id = ?`,
		errMsg, id,
	)
}

func (s *sqliteStore) DeleteMaintenance(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM maintenance_forms WHERE id = ?`, id)
}

func (s *sqliteStore) PendingImages(ctx context.Context, limit int) ([]UploadableImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.form_uuid, i.file_uri, i.is_synced, i.is_syncing, f.server_id
		FROM pending_images i
		JOIN pending_forms f ON f.uuid = i.form_uuid
		WHERE i.is_synced = 0
		  AND i.is_syncing = 0
		  AND f.is_synced = 1
		  AND f.server_id IS NOT NULL
		ORDER BY i.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending images: %w", err)
	}
	defer rows.Close()

	var images []UploadableImage
	for rows.Next() {
		var img UploadableImage
		if err := rows.Scan(
			&img.ID, &img.FormUUID, &img.FileURI,
			&img.IsSynced, &img.IsSyncing, &img.FormServerID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *sqliteStore) MarkImageSyncing(ctx context.Context, id int64, syncing bool) error {
	return s.execOne(ctx,
		`UPDATE pending_images SET is_syncing = ? WHERE id = ?`,
		syncing, id,
	)
}

func (s *sqliteStore) MarkImageSynced(ctx context.Context, id int64) error {
	return s.execOne(ctx,
		`UPDATE pending_images SET is_synced = 1, is_syncing = 0 WHERE id = ?`,
		id,
	)
}

func (s *sqliteStore) ResetStuckSyncing(ctx context.Context) (int64, error) {
	var total int64

	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_forms SET is_syncing = 0 WHERE is_syncing = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset form syncing flags: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx,
		`UPDATE pending_images SET is_syncing = 0 WHERE is_syncing = 1`)
	if err != nil {
		return total, fmt.Errorf("failed to reset image syncing flags: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(ctx,
		`UPDATE maintenance_forms SET is_syncing = 0 WHERE is_syncing = 1`)
	if err != nil {
		return total, fmt.Errorf("failed to reset maintenance syncing flags: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

func (s *sqliteStore) ReplaceMachines(ctx context.Context, machines []Machine) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM machines`); err != nil {
		return fmt.Errorf("failed to clear machines: %w", err)
	}
	for _, m := range machines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO machines (id, name, model) VALUES (?, ?, ?)`,
			m.ID, m.Name, m.Model)
		if err != nil {
			return fmt.Errorf("failed to insert machine: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Machines(ctx context.Context) ([]Machine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, model FROM machines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Model); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

func (s *sqliteStore) ReplaceOilBrands(ctx context.Context, brands []OilBrand) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM oil_brands`); err != nil {
		return fmt.Errorf("failed to clear oil brands: %w", err)
	}
	for _, b := range brands {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO oil_brands (id, name) VALUES (?, ?)`, b.ID, b.Name)
		if err != nil {
			return fmt.Errorf("failed to insert oil brand: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) OilBrands(ctx context.Context) ([]OilBrand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM oil_brands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query oil brands: %w", err)
	}
	defer rows.Close()

	var brands []OilBrand
	for rows.Next() {
		var b OilBrand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("failed to scan oil brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *sqliteStore) RecordSyncAttempt(ctx context.Context, attempt *SyncAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_tracking (
			attempt_id, form_uuid, started_at, status, worker_id,
			attempt_count, error_msg
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.AttemptID, attempt.FormUUID, attempt.StartedAt.Unix(),
		string(attempt.Status), attempt.WorkerID, attempt.AttemptCount,
		attempt.ErrorMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}
	return nil
}

func (s *sqliteStore) AttemptCount(ctx context.Context, formUUID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_tracking WHERE form_uuid = ?`, formUUID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sync attempts: %w", err)
	}
	return count, nil
}

func (s *sqliteStore) SyncAttempts(ctx context.Context, formUUID string) ([]SyncAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_id, form_uuid, started_at, status, worker_id,
		       attempt_count, error_msg
		FROM sync_tracking
		WHERE form_uuid = ?
		ORDER BY started_at DESC, rowid DESC`, formUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync attempts: %w", err)
	}
	defer rows.Close()

	var attempts []SyncAttempt
	for rows.Next() {
		var a SyncAttempt
		var startedAt int64
		var status string
		if err := rows.Scan(
			&a.AttemptID, &a.FormUUID, &startedAt, &status,
			&a.WorkerID, &a.AttemptCount, &a.ErrorMsg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync attempt: %w", err)
		}
		a.StartedAt = time.Unix(startedAt, 0)
		a.Status = AttemptStatus(status)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *sqliteStore) PurgeSyncAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_tracking WHERE started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync attempts: %w", err)
	}
	return res.RowsAffected()
}

// execOne runs a single-row mutation and maps "no row touched" to ErrNotFound.
func (s *sqliteStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
