// Package models provides data model definitions for ActaSync.
package models

import "time"

// SyncLogEntry is an append-only audit entry, one per synchronization
// attempt. The record reference is weak: entries survive record
// deletion and are never mutated.
type SyncLogEntry struct {
	ID           UUID   `db:"id" json:"id"`
	RecordID     UUID   `db:"record_id" json:"record_id"`
	Timestamp    int64  `db:"timestamp" json:"timestamp"`
	ResultStatus Status `db:"result_status" json:"result_status"`
	ErrorDetail  string `db:"error_detail" json:"error_detail,omitempty"`
}

// TableName returns the table name for SyncLogEntry.
func (SyncLogEntry) TableName() string {
	return "sync_logs"
}

// TimestampTime returns the Timestamp as time.Time.
func (e *SyncLogEntry) TimestampTime() time.Time {
	return time.Unix(e.Timestamp, 0)
}
