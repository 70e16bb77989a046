// Package record implements the maintenance record lifecycle: draft
// saving and the status transitions that feed the sync queue.
//
// Allowed transitions:
//
//	BORRADOR -> PENDIENTE_SINCRONIZACION -> {SINCRONIZADA | ERROR}
//	ERROR    -> PENDIENTE_SINCRONIZACION
//
// SINCRONIZADA is terminal for a local record; later remote updates
// merge into it through reconciliation without regressing the status.
package record

import (
	"database/sql"
	"errors"

	"github.com/jhamf/actasync/internal/db"
	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
)

// Service exposes the lifecycle operations. All storage access goes
// through the injected repository; there is no ambient global store.
type Service struct {
	repo *db.Repository
}

// NewService creates a new lifecycle Service.
func NewService(repo *db.Repository) *Service {
	return &Service{repo: repo}
}

// SaveDraft creates or updates a draft. The upsert decision is made
// purely on local id presence: an empty id creates a BORRADOR record,
// a set id merges the payload into the stored row. Record type is
// immutable after creation; a differing incoming type is ignored on
// update. The current status is never changed here.
func (s *Service) SaveDraft(rec *models.MaintenanceRecord) (models.UUID, error) {
	if rec.ID == "" {
		if rec.Type != models.TypePreventive && rec.Type != models.TypeCorrective {
			return "", apperrors.New(apperrors.ErrValidation, "record type must be PREVENTIVO or CORRECTIVO")
		}
		if rec.Checklist.Kind == "" {
			rec.Checklist = models.NewChecklist(rec.Type)
		}
		rec.Status = models.StatusDraft
		if err := s.repo.CreateRecord(rec); err != nil {
			return "", apperrors.Wrap(apperrors.ErrStorage, "failed to create draft", err)
		}
		logging.Debug("Draft created", map[string]interface{}{
			"record_id": rec.ID.String(),
			"type":      string(rec.Type),
		})
		return rec.ID, nil
	}

	existing, err := s.repo.GetRecord(rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.New(apperrors.ErrNotFound, "record not found: "+rec.ID.String())
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to load record", err)
	}

	mergeDraft(existing, rec)

	if err := s.repo.UpdateRecord(existing); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to update draft", err)
	}
	return existing.ID, nil
}

// MarkForSync queues a record for submission. Only BORRADOR and ERROR
// records may be queued; anything else signals InvalidTransition and
// leaves the row untouched. Both signatures must be present before a
// record leaves BORRADOR.
func (s *Service) MarkForSync(id models.UUID) error {
	rec, err := s.repo.GetRecord(id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.New(apperrors.ErrNotFound, "record not found: "+id.String())
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load record", err)
	}

	switch rec.Status {
	case models.StatusDraft:
		if !rec.Signed() {
			return apperrors.New(apperrors.ErrValidation, "technician and client signatures are required before queueing")
		}
	case models.StatusError:
		// Re-queue after a failed attempt; signatures were already
		// checked when the record first left BORRADOR.
	default:
		return apperrors.New(apperrors.ErrInvalidTransition,
			"cannot queue record in status "+string(rec.Status))
	}

	rec.Status = models.StatusPendingSync
	if err := s.repo.UpdateRecord(rec); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to queue record", err)
	}

	logging.Info("Record queued for sync", map[string]interface{}{
		"record_id":          rec.ID.String(),
		"external_ticket_id": rec.ExternalTicketID,
	})
	return nil
}

// Get returns a record by local id.
func (s *Service) Get(id models.UUID) (*models.MaintenanceRecord, error) {
	rec, err := s.repo.GetRecord(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "record not found: "+id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load record", err)
	}
	return rec, nil
}

// History returns synced records, newest first.
func (s *Service) History(limit int) ([]*models.MaintenanceRecord, error) {
	records, err := s.repo.ListHistory(limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list history", err)
	}
	return records, nil
}

// Attempts returns the sync attempt log for a record, oldest first.
func (s *Service) Attempts(id models.UUID) ([]*models.SyncLogEntry, error) {
	entries, err := s.repo.ListSyncLogs(id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list sync attempts", err)
	}
	return entries, nil
}

// mergeDraft copies the mutable payload of in onto dst. Identity,
// type, status and creation time stay as stored.
func mergeDraft(dst, in *models.MaintenanceRecord) {
	if in.ExternalTicketID != "" {
		dst.ExternalTicketID = in.ExternalTicketID
	}
	dst.ClientName = in.ClientName
	dst.TechnicianName = in.TechnicianName
	dst.EquipmentSerial = in.EquipmentSerial
	dst.EquipmentHostname = in.EquipmentHostname
	dst.EquipmentModel = in.EquipmentModel
	dst.InventoryNumber = in.InventoryNumber
	dst.AssignedUser = in.AssignedUser
	dst.Observations = in.Observations
	dst.Recommendations = in.Recommendations
	dst.Photos = in.Photos
	dst.TechnicianSignature = in.TechnicianSignature
	dst.ClientSignature = in.ClientSignature

	dst.Checklist = in.Checklist
	dst.Checklist.Kind = dst.Type
}
