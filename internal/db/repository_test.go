// Package db provides unit tests for CRUD repository operations.
package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/jhamf/actasync/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Create test schema
	_, err = db.Exec(`
		CREATE TABLE maintenance_records (
			id TEXT PRIMARY KEY,
			external_ticket_id TEXT NOT NULL DEFAULT '',
			external_doc_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'BORRADOR',
			client_name TEXT NOT NULL DEFAULT '',
			technician_name TEXT NOT NULL DEFAULT '',
			equipment_serial TEXT NOT NULL DEFAULT '',
			equipment_hostname TEXT NOT NULL DEFAULT '',
			equipment_model TEXT NOT NULL DEFAULT '',
			inventory_number TEXT NOT NULL DEFAULT '',
			assigned_user TEXT NOT NULL DEFAULT '',
			observations TEXT NOT NULL DEFAULT '',
			recommendations TEXT NOT NULL DEFAULT '',
			checklist TEXT NOT NULL DEFAULT '{}',
			photos TEXT NOT NULL DEFAULT '[]',
			technician_signature BLOB,
			client_signature BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE sync_logs (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			result_status TEXT NOT NULL,
			error_detail TEXT
		);

		CREATE TABLE assets_cache (
			id TEXT PRIMARY KEY,
			serial TEXT NOT NULL UNIQUE,
			hostname TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			ticket_id TEXT NOT NULL DEFAULT '',
			cached_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord() *models.MaintenanceRecord {
	checklist := models.NewChecklist(models.TypePreventive)
	checklist.Tasks["limpieza_interna"] = true
	checklist.Tasks["actualizacion_so"] = false

	return &models.MaintenanceRecord{
		ExternalTicketID:    "1001",
		Type:                models.TypePreventive,
		ClientName:          "Acme Corp",
		TechnicianName:      "J. Herrera",
		EquipmentSerial:     "SN-001",
		EquipmentHostname:   "PC-ACME-01",
		EquipmentModel:      "ThinkCentre M70q",
		InventoryNumber:     "INV-4471",
		AssignedUser:        "mlopez",
		Observations:        "Equipo operativo",
		Recommendations:     "Programar cambio de pasta termica",
		Checklist:           checklist,
		Photos:              [][]byte{{0x01, 0x02}},
		TechnicianSignature: []byte("sig-tech"),
		ClientSignature:     []byte("sig-client"),
	}
}

func TestCreateRecord(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	rec := testRecord()
	if err := repo.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	if rec.ID == "" {
		t.Error("CreateRecord() did not assign an id")
	}
	if rec.Status != models.StatusDraft {
		t.Errorf("status = %v, want BORRADOR", rec.Status)
	}
	if rec.CreatedAt == 0 || rec.UpdatedAt == 0 {
		t.Error("timestamps not set")
	}
	if rec.CreatedAt != rec.UpdatedAt {
		t.Error("created_at and updated_at should match on creation")
	}
}

func TestGetRecordRoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	rec := testRecord()
	if err := repo.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	got, err := repo.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}

	if got.ExternalTicketID != "1001" {
		t.Errorf("external_ticket_id = %q, want 1001", got.ExternalTicketID)
	}
	if got.Checklist.Kind != models.TypePreventive {
		t.Errorf("checklist kind = %v, want PREVENTIVO", got.Checklist.Kind)
	}
	if !got.Checklist.Tasks["limpieza_interna"] {
		t.Error("checklist task lost in round trip")
	}
	if len(got.Photos) != 1 || got.Photos[0][0] != 0x01 {
		t.Error("photos lost in round trip")
	}
	if string(got.TechnicianSignature) != "sig-tech" {
		t.Error("technician signature lost in round trip")
	}
}

func TestGetRecordNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	_, err := repo.GetRecord("no-such-id")
	if err != sql.ErrNoRows {
		t.Errorf("GetRecord() error = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdateRecord(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	rec := testRecord()
	if err := repo.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	rec.Status = models.StatusPendingSync
	rec.Observations = "Actualizado"
	if err := repo.UpdateRecord(rec); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	got, err := repo.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got.Status != models.StatusPendingSync {
		t.Errorf("status = %v, want PENDIENTE_SINCRONIZACION", got.Status)
	}
	if got.Observations != "Actualizado" {
		t.Errorf("observations = %q", got.Observations)
	}
}

func TestUpdateRecordNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	rec := testRecord()
	rec.ID = "missing"
	rec.CreatedAt = 1
	rec.UpdatedAt = 1
	if err := repo.UpdateRecord(rec); err != sql.ErrNoRows {
		t.Errorf("UpdateRecord() error = %v, want sql.ErrNoRows", err)
	}
}

func TestListRecordsByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	defer repo.Close()

	for i := 0; i < 3; i++ {
		rec := testRecord()
		rec.Status = models.StatusPendingSync
		if err := repo.CreateRecord(rec); err != nil {
			t.Fatalf("CreateRecord() error = %v", err)
		}
		// Spread out creation times so ordering is observable.
		if _, err := db.Exec("UPDATE maintenance_records SET created_at = ? WHERE id = ?", 100-i, rec.ID); err != nil {
			t.Fatalf("failed to adjust created_at: %v", err)
		}
	}
	draft := testRecord()
	if err := repo.CreateRecord(draft); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	pending, err := repo.ListRecordsByStatus(models.StatusPendingSync, true)
	if err != nil {
		t.Fatalf("ListRecordsByStatus() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending count = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].CreatedAt > pending[i].CreatedAt {
			t.Error("records not sorted by created_at")
		}
	}
}

func TestFindRecordByExternalID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	defer repo.Close()

	rec := testRecord()
	if err := repo.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	got, err := repo.FindRecordByExternalID("1001")
	if err != nil {
		t.Fatalf("FindRecordByExternalID() error = %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("id = %v, want %v", got.ID, rec.ID)
	}

	if _, err := repo.FindRecordByExternalID("9999"); err != sql.ErrNoRows {
		t.Errorf("absent lookup error = %v, want sql.ErrNoRows", err)
	}
}

func TestFindRecordByExternalIDDuplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	defer repo.Close()

	first := testRecord()
	if err := repo.CreateRecord(first); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	second := testRecord()
	if err := repo.CreateRecord(second); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	// Same external id on both rows; make the second clearly newer.
	if _, err := db.Exec("UPDATE maintenance_records SET updated_at = 10 WHERE id = ?", first.ID); err != nil {
		t.Fatalf("failed to adjust updated_at: %v", err)
	}
	if _, err := db.Exec("UPDATE maintenance_records SET updated_at = 20 WHERE id = ?", second.ID); err != nil {
		t.Fatalf("failed to adjust updated_at: %v", err)
	}

	got, err := repo.FindRecordByExternalID("1001")
	if err != nil {
		t.Fatalf("FindRecordByExternalID() error = %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("duplicate lookup returned %v, want newest %v", got.ID, second.ID)
	}
}

func TestSyncLogAppendAndList(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	rec := testRecord()
	if err := repo.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	entries := []*models.SyncLogEntry{
		{RecordID: rec.ID, Timestamp: 100, ResultStatus: models.StatusError, ErrorDetail: "network timeout"},
		{RecordID: rec.ID, Timestamp: 200, ResultStatus: models.StatusSynced},
	}
	for _, e := range entries {
		if err := repo.AppendSyncLog(e); err != nil {
			t.Fatalf("AppendSyncLog() error = %v", err)
		}
	}

	got, err := repo.ListSyncLogs(rec.ID)
	if err != nil {
		t.Fatalf("ListSyncLogs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("log count = %d, want 2", len(got))
	}
	if got[0].ResultStatus != models.StatusError || got[0].ErrorDetail != "network timeout" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].ResultStatus != models.StatusSynced {
		t.Errorf("second entry status = %v, want SINCRONIZADA", got[1].ResultStatus)
	}
}

func TestListHistoryIncludesLegacyToken(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	synced := testRecord()
	synced.Status = models.StatusSynced
	if err := repo.CreateRecord(synced); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	legacy := testRecord()
	legacy.Status = models.StatusSyncedLegacy
	if err := repo.CreateRecord(legacy); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	draft := testRecord()
	if err := repo.CreateRecord(draft); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	history, err := repo.ListHistory(10)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history count = %d, want 2 (legacy token included)", len(history))
	}
}

func TestCacheAssetDedupe(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	defer repo.Close()

	asset := &models.AssetCacheEntry{Serial: "SN-001", Hostname: "PC-01"}
	id1, err := repo.CacheAsset(asset)
	if err != nil {
		t.Fatalf("CacheAsset() error = %v", err)
	}

	dup := &models.AssetCacheEntry{Serial: "SN-001", Hostname: "PC-01-renamed"}
	id2, err := repo.CacheAsset(dup)
	if err != nil {
		t.Fatalf("CacheAsset() duplicate error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate serial minted a new entry: %v != %v", id1, id2)
	}

	got, err := repo.GetAssetBySerial("SN-001")
	if err != nil {
		t.Fatalf("GetAssetBySerial() error = %v", err)
	}
	if got.Hostname != "PC-01" {
		t.Errorf("hostname = %q, existing entry should be untouched", got.Hostname)
	}
}
