// Package models provides data model definitions for ActaSync.
package models

// AssetCacheEntry caches equipment lookups by serial number so the
// form can resolve assets while offline. Advisory data only; nothing
// in the sync path depends on it.
type AssetCacheEntry struct {
	ID       UUID   `db:"id" json:"id"`
	Serial   string `db:"serial" json:"serial"`
	Hostname string `db:"hostname" json:"hostname"`
	Model    string `db:"model" json:"model"`
	TicketID string `db:"ticket_id" json:"ticket_id"`
	CachedAt int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for AssetCacheEntry.
func (AssetCacheEntry) TableName() string {
	return "assets_cache"
}
