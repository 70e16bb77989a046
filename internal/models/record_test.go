package models

import "testing"

func TestStatusIsSynced(t *testing.T) {
	if !StatusSynced.IsSynced() {
		t.Error("SINCRONIZADA should report synced")
	}
	if !StatusSyncedLegacy.IsSynced() {
		t.Error("legacy SINCRONIZADO should report synced")
	}
	if StatusPendingSync.IsSynced() || StatusDraft.IsSynced() || StatusError.IsSynced() {
		t.Error("non-terminal statuses should not report synced")
	}
}

func TestNewChecklist(t *testing.T) {
	p := NewChecklist(TypePreventive)
	if p.Kind != TypePreventive {
		t.Errorf("kind = %v", p.Kind)
	}
	if p.Tasks == nil {
		t.Error("preventive checklist must have a task map")
	}

	c := NewChecklist(TypeCorrective)
	if c.Tasks != nil {
		t.Error("corrective checklist must not have a task map")
	}
}

func TestSigned(t *testing.T) {
	rec := &MaintenanceRecord{}
	if rec.Signed() {
		t.Error("unsigned record reported signed")
	}
	rec.TechnicianSignature = []byte("t")
	if rec.Signed() {
		t.Error("record with one signature reported signed")
	}
	rec.ClientSignature = []byte("c")
	if !rec.Signed() {
		t.Error("record with both signatures reported unsigned")
	}
}
