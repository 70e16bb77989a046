// Package models provides data model definitions for ActaSync.
package models

import (
	"database/sql/driver"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Status represents the synchronization state of a maintenance record.
// The persisted tokens keep the field-domain vocabulary. SINCRONIZADA
// is the canonical terminal token; StatusSyncedLegacy only exists so
// history queries keep matching rows written by older clients.
type Status string

const (
	StatusDraft        Status = "BORRADOR"
	StatusPendingSync  Status = "PENDIENTE_SINCRONIZACION"
	StatusSynced       Status = "SINCRONIZADA"
	StatusError        Status = "ERROR"
	StatusSyncedLegacy Status = "SINCRONIZADO"
)

// IsSynced reports whether the status is a terminal synced token,
// including the legacy masculine form.
func (s Status) IsSynced() bool {
	return s == StatusSynced || s == StatusSyncedLegacy
}

// RecordType classifies a maintenance record. Immutable after creation.
type RecordType string

const (
	TypePreventive RecordType = "PREVENTIVO"
	TypeCorrective RecordType = "CORRECTIVO"
)

// Checklist is a tagged variant selected by the record type.
// Preventive records carry a map of named boolean tasks; corrective
// records carry the free-text diagnosis fields.
type Checklist struct {
	Kind RecordType `json:"kind"`

	// Preventive
	Tasks map[string]bool `json:"tasks,omitempty"`

	// Corrective
	Diagnosis     string `json:"diagnosis,omitempty"`
	ReportedFault string `json:"reported_fault,omitempty"`
	ActionTaken   string `json:"action_taken,omitempty"`
	PartsUsed     string `json:"parts_used,omitempty"`
	FinalState    string `json:"final_state,omitempty"`
}

// NewChecklist returns an empty checklist of the given kind.
func NewChecklist(kind RecordType) Checklist {
	c := Checklist{Kind: kind}
	if kind == TypePreventive {
		c.Tasks = make(map[string]bool)
	}
	return c
}

// MaintenanceRecord represents a single equipment maintenance report
// authored by a technician.
type MaintenanceRecord struct {
	ID               UUID       `db:"id" json:"id"`
	ExternalTicketID string     `db:"external_ticket_id" json:"glpi_ticket_id"`
	ExternalDocID    string     `db:"external_doc_id" json:"glpi_tracking_id,omitempty"`
	Type             RecordType `db:"type" json:"type"`
	Status           Status     `db:"status" json:"status"`

	ClientName        string `db:"client_name" json:"client_name"`
	TechnicianName    string `db:"technician_name" json:"technical_name"`
	EquipmentSerial   string `db:"equipment_serial" json:"equipment_serial"`
	EquipmentHostname string `db:"equipment_hostname" json:"equipment_hostname"`
	EquipmentModel    string `db:"equipment_model" json:"equipment_model"`
	InventoryNumber   string `db:"inventory_number" json:"inventory_number"`
	AssignedUser      string `db:"assigned_user" json:"assigned_user"`

	Observations    string    `db:"observations" json:"observations"`
	Recommendations string    `db:"recommendations" json:"recommendations"`
	Checklist       Checklist `db:"checklist" json:"checklist"`

	// Photos are opaque byte payloads, never inspected here. The UI
	// collaborator enforces the count bound; the store does not.
	Photos [][]byte `db:"photos" json:"photos,omitempty"`

	TechnicianSignature []byte `db:"technician_signature" json:"technician_signature,omitempty"`
	ClientSignature     []byte `db:"client_signature" json:"client_signature,omitempty"`

	CreatedAt int64 `db:"created_at" json:"created_at"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MaintenanceRecord.
func (MaintenanceRecord) TableName() string {
	return "maintenance_records"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (r *MaintenanceRecord) CreatedAtTime() time.Time {
	return time.Unix(r.CreatedAt, 0)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (r *MaintenanceRecord) UpdatedAtTime() time.Time {
	return time.Unix(r.UpdatedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (r *MaintenanceRecord) Touch() {
	r.UpdatedAt = time.Now().Unix()
}

// Signed reports whether both required signatures are present. A record
// may not leave BORRADOR without them.
func (r *MaintenanceRecord) Signed() bool {
	return len(r.TechnicianSignature) > 0 && len(r.ClientSignature) > 0
}
