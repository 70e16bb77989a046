// Package db provides CRUD repository operations for ActaSync data models.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
	"github.com/jhamf/actasync/internal/uuid"
)

// Repository provides CRUD operations for all models. It is the only
// component with direct write access to the database; lifecycle, sync
// engine and reconciliation all go through it.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Store in cache (if already stored by another goroutine, use existing)
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// MaintenanceRecord Operations
// =====================================================

const recordColumns = `id, external_ticket_id, external_doc_id, type, status,
	   client_name, technician_name, equipment_serial, equipment_hostname,
	   equipment_model, inventory_number, assigned_user, observations,
	   recommendations, checklist, photos, technician_signature,
	   client_signature, created_at, updated_at`

// CreateRecord creates a new maintenance record. The store assigns a
// fresh local id, never reused. Status defaults to BORRADOR when the
// caller leaves it empty (reconciliation inserts set it explicitly).
func (r *Repository) CreateRecord(rec *models.MaintenanceRecord) error {
	now := time.Now().Unix()
	rec.ID = models.UUID(uuid.New())
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = models.StatusDraft
	}

	checklist, photos, err := marshalPayload(rec)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO maintenance_records (id, external_ticket_id, external_doc_id, type, status,
		client_name, technician_name, equipment_serial, equipment_hostname,
		equipment_model, inventory_number, assigned_user, observations,
		recommendations, checklist, photos, technician_signature,
		client_signature, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, rec.ID, rec.ExternalTicketID, rec.ExternalDocID,
		rec.Type, rec.Status, rec.ClientName, rec.TechnicianName,
		rec.EquipmentSerial, rec.EquipmentHostname, rec.EquipmentModel,
		rec.InventoryNumber, rec.AssignedUser, rec.Observations,
		rec.Recommendations, checklist, photos, rec.TechnicianSignature,
		rec.ClientSignature, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// GetRecord retrieves a maintenance record by local id.
func (r *Repository) GetRecord(id models.UUID) (*models.MaintenanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM maintenance_records WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	return scanRecord(stmt.QueryRow(id))
}

// UpdateRecord updates an existing maintenance record in full. The
// created_at column and the local id are never rewritten.
func (r *Repository) UpdateRecord(rec *models.MaintenanceRecord) error {
	rec.Touch()

	checklist, photos, err := marshalPayload(rec)
	if err != nil {
		return err
	}

	query := `
	UPDATE maintenance_records
	SET external_ticket_id = ?, external_doc_id = ?, type = ?, status = ?,
		client_name = ?, technician_name = ?, equipment_serial = ?,
		equipment_hostname = ?, equipment_model = ?, inventory_number = ?,
		assigned_user = ?, observations = ?, recommendations = ?,
		checklist = ?, photos = ?, technician_signature = ?,
		client_signature = ?, updated_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, rec.ExternalTicketID, rec.ExternalDocID,
		rec.Type, rec.Status, rec.ClientName, rec.TechnicianName,
		rec.EquipmentSerial, rec.EquipmentHostname, rec.EquipmentModel,
		rec.InventoryNumber, rec.AssignedUser, rec.Observations,
		rec.Recommendations, checklist, photos, rec.TechnicianSignature,
		rec.ClientSignature, rec.UpdatedAt, rec.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListRecordsByStatus returns all records with an exact status match.
// Order is undefined unless orderByCreated is set, which sorts by
// created_at ascending.
func (r *Repository) ListRecordsByStatus(status models.Status, orderByCreated bool) ([]*models.MaintenanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM maintenance_records WHERE status = ?`
	if orderByCreated {
		query += ` ORDER BY created_at`
	}

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// FindRecordByExternalID returns the local record matching the given
// external ticket id. At most one logical match is expected; if the
// data holds several, the most recently updated row wins and the
// anomaly is logged, not treated as fatal. Returns sql.ErrNoRows when
// nothing matches.
func (r *Repository) FindRecordByExternalID(externalID string) (*models.MaintenanceRecord, error) {
	query := `SELECT ` + recordColumns + `
	FROM maintenance_records WHERE external_ticket_id = ?
	ORDER BY updated_at DESC, created_at DESC`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	if len(matches) > 1 {
		logging.Warn("Multiple local records share one external ticket id",
			map[string]interface{}{
				"external_ticket_id": externalID,
				"count":              len(matches),
			})
	}
	return matches[0], nil
}

// ListHistory returns synced records, newest first. Rows written by
// older clients with the legacy SINCRONIZADO token are included.
func (r *Repository) ListHistory(limit int) ([]*models.MaintenanceRecord, error) {
	query := `SELECT ` + recordColumns + `
	FROM maintenance_records WHERE status IN (?, ?)
	ORDER BY created_at DESC LIMIT ?`

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(models.StatusSynced, models.StatusSyncedLegacy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// =====================================================
// SyncLogEntry Operations
// =====================================================

// AppendSyncLog appends an audit entry for a synchronization attempt.
// Entries are never mutated or deleted. Appending is independent of
// any record mutation succeeding.
func (r *Repository) AppendSyncLog(entry *models.SyncLogEntry) error {
	entry.ID = models.UUID(uuid.New())
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	query := `
	INSERT INTO sync_logs (id, record_id, timestamp, result_status, error_detail)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, entry.ID, entry.RecordID, entry.Timestamp,
		entry.ResultStatus, entry.ErrorDetail)
	return err
}

// ListSyncLogs returns all attempt entries for a record, oldest first.
// The rowid tiebreak keeps append order for entries within one second.
func (r *Repository) ListSyncLogs(recordID models.UUID) ([]*models.SyncLogEntry, error) {
	query := `
	SELECT id, record_id, timestamp, result_status, error_detail
	FROM sync_logs WHERE record_id = ? ORDER BY timestamp, rowid
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Timestamp, &e.ResultStatus, &detail); err != nil {
			return nil, err
		}
		if detail.Valid {
			e.ErrorDetail = detail.String
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// =====================================================
// AssetCache Operations
// =====================================================

// CacheAsset stores an equipment lookup for offline use. Serial is the
// logical key: an existing entry is left untouched and its id returned.
func (r *Repository) CacheAsset(asset *models.AssetCacheEntry) (models.UUID, error) {
	existing, err := r.GetAssetBySerial(asset.Serial)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	asset.ID = models.UUID(uuid.New())
	asset.CachedAt = time.Now().Unix()

	query := `
	INSERT INTO assets_cache (id, serial, hostname, model, ticket_id, cached_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, asset.ID, asset.Serial, asset.Hostname,
		asset.Model, asset.TicketID, asset.CachedAt)
	if err != nil {
		return "", err
	}
	return asset.ID, nil
}

// GetAssetBySerial retrieves a cached asset by serial number.
func (r *Repository) GetAssetBySerial(serial string) (*models.AssetCacheEntry, error) {
	query := `SELECT id, serial, hostname, model, ticket_id, cached_at
			  FROM assets_cache WHERE serial = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var a models.AssetCacheEntry
	err = stmt.QueryRow(serial).Scan(&a.ID, &a.Serial, &a.Hostname, &a.Model,
		&a.TicketID, &a.CachedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// =====================================================
// Row helpers
// =====================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.MaintenanceRecord, error) {
	var rec models.MaintenanceRecord
	var checklist, photos string
	err := row.Scan(
		&rec.ID, &rec.ExternalTicketID, &rec.ExternalDocID, &rec.Type,
		&rec.Status, &rec.ClientName, &rec.TechnicianName,
		&rec.EquipmentSerial, &rec.EquipmentHostname, &rec.EquipmentModel,
		&rec.InventoryNumber, &rec.AssignedUser, &rec.Observations,
		&rec.Recommendations, &checklist, &photos,
		&rec.TechnicianSignature, &rec.ClientSignature,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checklist), &rec.Checklist); err != nil {
		return nil, fmt.Errorf("corrupt checklist for record %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(photos), &rec.Photos); err != nil {
		return nil, fmt.Errorf("corrupt photos for record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*models.MaintenanceRecord, error) {
	var records []*models.MaintenanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func marshalPayload(rec *models.MaintenanceRecord) (checklist, photos string, err error) {
	c, err := json.Marshal(rec.Checklist)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal checklist: %w", err)
	}
	p, err := json.Marshal(rec.Photos)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal photos: %w", err)
	}
	if rec.Photos == nil {
		p = []byte("[]")
	}
	return string(c), string(p), nil
}
