// Package sync drains the local pending queue against the remote
// ticket system and merges remote records back into the local store.
package sync

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jhamf/actasync/internal/db"
	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
)

// RemoteRecord is a maintenance record as published by the remote
// system of record. The external ticket id is the merge key; local
// identity is never transferred over the wire.
type RemoteRecord struct {
	ExternalTicketID string            `json:"glpi_ticket_id"`
	ExternalDocID    string            `json:"glpi_tracking_id,omitempty"`
	Type             models.RecordType `json:"type"`

	ClientName        string `json:"client_name"`
	TechnicianName    string `json:"technical_name"`
	EquipmentSerial   string `json:"equipment_serial"`
	EquipmentHostname string `json:"equipment_hostname"`
	EquipmentModel    string `json:"equipment_model"`
	InventoryNumber   string `json:"inventory_number"`
	AssignedUser      string `json:"assigned_user"`

	Observations    string           `json:"observations"`
	Recommendations string           `json:"recommendations"`
	Checklist       models.Checklist `json:"checklist"`

	Photos              [][]byte `json:"photos,omitempty"`
	TechnicianSignature []byte   `json:"technician_signature,omitempty"`
	ClientSignature     []byte   `json:"client_signature,omitempty"`
}

// Puller is the remote pull capability used by reconciliation.
type Puller interface {
	Pull(ctx context.Context, limit int) ([]*RemoteRecord, error)
}

// MergeResult summarizes one reconciliation pass.
type MergeResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Reconciler performs the one-way pull-and-merge of remote records
// into local storage.
type Reconciler struct {
	repo   *db.Repository
	puller Puller
}

// NewReconciler creates a new Reconciler.
func NewReconciler(repo *db.Repository, puller Puller) *Reconciler {
	return &Reconciler{repo: repo, puller: puller}
}

// Pull fetches up to limit remote records and merges them locally.
func (r *Reconciler) Pull(ctx context.Context, limit int) (*MergeResult, error) {
	remote, err := r.puller.Pull(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSubmission, "remote pull failed", err)
	}
	return r.Merge(ctx, remote)
}

// Merge applies a batch of remote records to the local store. The
// operation is idempotent: re-running it with the same batch yields
// the same local state. Records are processed in batch order, so when
// two remote records share an external ticket id the later one wins
// deterministically. Remote presence implies the record was submitted
// successfully at some point, so merged rows are forced to
// SINCRONIZADA; the local id of an existing row is preserved.
func (r *Reconciler) Merge(ctx context.Context, remote []*RemoteRecord) (*MergeResult, error) {
	result := &MergeResult{}

	for _, rr := range remote {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if rr.ExternalTicketID == "" {
			result.Skipped++
			logging.Warn("Remote record without external ticket id, skipping", nil)
			continue
		}

		existing, err := r.repo.FindRecordByExternalID(rr.ExternalTicketID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec := rr.toRecord()
			if err := r.repo.CreateRecord(rec); err != nil {
				return result, apperrors.Wrap(apperrors.ErrStorage, "failed to insert remote record", err)
			}
			result.Inserted++

		case err != nil:
			return result, apperrors.Wrap(apperrors.ErrStorage, "failed to look up record by external id", err)

		default:
			rr.apply(existing)
			if err := r.repo.UpdateRecord(existing); err != nil {
				return result, apperrors.Wrap(apperrors.ErrStorage, "failed to merge remote record", err)
			}
			result.Updated++
		}
	}

	if result.Inserted > 0 || result.Updated > 0 {
		logging.Info("Reconciliation completed", map[string]interface{}{
			"inserted": result.Inserted,
			"updated":  result.Updated,
			"skipped":  result.Skipped,
		})
	}
	return result, nil
}

// toRecord builds a fresh local record from the remote payload. The
// store mints the local id on insert.
func (rr *RemoteRecord) toRecord() *models.MaintenanceRecord {
	rec := &models.MaintenanceRecord{Status: models.StatusSynced}
	rr.apply(rec)
	return rec
}

// apply overwrites the local payload with the remote one, preserving
// local identity and creation time. Status never regresses: the row
// ends SINCRONIZADA regardless of what it was.
func (rr *RemoteRecord) apply(rec *models.MaintenanceRecord) {
	rec.ExternalTicketID = rr.ExternalTicketID
	if rr.ExternalDocID != "" {
		rec.ExternalDocID = rr.ExternalDocID
	}
	rec.Type = rr.Type
	rec.Status = models.StatusSynced
	rec.ClientName = rr.ClientName
	rec.TechnicianName = rr.TechnicianName
	rec.EquipmentSerial = rr.EquipmentSerial
	rec.EquipmentHostname = rr.EquipmentHostname
	rec.EquipmentModel = rr.EquipmentModel
	rec.InventoryNumber = rr.InventoryNumber
	rec.AssignedUser = rr.AssignedUser
	rec.Observations = rr.Observations
	rec.Recommendations = rr.Recommendations
	rec.Checklist = rr.Checklist
	rec.Photos = rr.Photos
	rec.TechnicianSignature = rr.TechnicianSignature
	rec.ClientSignature = rr.ClientSignature
}
