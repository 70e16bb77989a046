// Package sync drains the local pending queue against the remote
// ticket system and merges remote records back into the local store.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/jhamf/actasync/internal/db"
	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
)

// SubmitResult carries the identifiers minted by the remote system
// for a successful submission.
type SubmitResult struct {
	ExternalDocID string
}

// Submitter is the remote submission capability. Idempotency across a
// crash-retry (the same record submitted twice because the process
// died between submit and the status write) is the remote system's
// responsibility; the engine only guarantees that one record is never
// in two concurrent Submit calls.
type Submitter interface {
	Submit(ctx context.Context, rec *models.MaintenanceRecord) (*SubmitResult, error)
}

// ConnectivityChecker reports whether the network is currently
// reachable. The check is advisory: connectivity can drop between the
// check and the remote call, which surfaces as an ordinary submission
// failure.
type ConnectivityChecker interface {
	Online() bool
}

// DrainResult summarizes one pass over the pending queue.
type DrainResult struct {
	StartTime time.Time
	EndTime   time.Time
	Synced    int
	Failed    int
	Skipped   int
	Offline   bool
}

// Engine drains PENDIENTE_SINCRONIZACION records one at a time and
// records the outcome of every attempt in the sync log.
type Engine struct {
	repo         *db.Repository
	submitter    Submitter
	connectivity ConnectivityChecker

	mu        sync.Mutex
	draining  bool
	inFlight  map[models.UUID]struct{}
	lastDrain *time.Time
}

// NewEngine creates a new sync Engine.
func NewEngine(repo *db.Repository, submitter Submitter, connectivity ConnectivityChecker) *Engine {
	return &Engine{
		repo:         repo,
		submitter:    submitter,
		connectivity: connectivity,
		inFlight:     make(map[models.UUID]struct{}),
	}
}

// LastDrain returns the completion time of the last full drain.
func (e *Engine) LastDrain() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDrain
}

// Drain processes the entire current pending queue to completion.
// Connectivity is checked once per drain cycle. Each record is
// submitted individually; a failure moves that record to ERROR and
// never aborts the rest of the queue. The submission call is always
// the last step before the status write, so a process killed mid-
// attempt leaves the record re-queryable as PENDIENTE_SINCRONIZACION.
// Storage failures do abort the drain and propagate.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "drain already in progress")
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	result := &DrainResult{StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	if e.connectivity != nil && !e.connectivity.Online() {
		result.Offline = true
		logging.Debug("Skipping drain, no connectivity", nil)
		return result, nil
	}

	pending, err := e.repo.ListRecordsByStatus(models.StatusPendingSync, true)
	if err != nil {
		return result, apperrors.Wrap(apperrors.ErrStorage, "failed to list pending records", err)
	}

	if len(pending) == 0 {
		return result, nil
	}

	logging.Info("Draining pending records", map[string]interface{}{
		"count": len(pending),
	})

	for _, rec := range pending {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if !e.acquire(rec.ID) {
			result.Skipped++
			continue
		}
		err := e.processRecord(ctx, rec, result)
		e.release(rec.ID)
		if err != nil {
			return result, err
		}
	}

	e.mu.Lock()
	end := time.Now()
	e.lastDrain = &end
	e.mu.Unlock()

	return result, nil
}

// processRecord submits one record and persists the outcome. The
// returned error is storage-level only; submission failures are
// absorbed into the record's ERROR state.
func (e *Engine) processRecord(ctx context.Context, rec *models.MaintenanceRecord, result *DrainResult) error {
	var submitErr error
	var res *SubmitResult

	if rec.ExternalTicketID == "" {
		// Cannot be synced without an external ticket reference.
		submitErr = apperrors.New(apperrors.ErrValidation, "record has no external ticket reference")
	} else {
		res, submitErr = e.submitter.Submit(ctx, rec)
	}

	entry := &models.SyncLogEntry{RecordID: rec.ID}

	if submitErr != nil {
		rec.Status = models.StatusError
		entry.ResultStatus = models.StatusError
		entry.ErrorDetail = submitErr.Error()
		result.Failed++
		logging.Warn("Record submission failed", map[string]interface{}{
			"record_id":          rec.ID.String(),
			"external_ticket_id": rec.ExternalTicketID,
			"error":              submitErr.Error(),
		})
	} else {
		rec.Status = models.StatusSynced
		rec.ExternalDocID = res.ExternalDocID
		entry.ResultStatus = models.StatusSynced
		result.Synced++
		logging.Info("Record synchronized", map[string]interface{}{
			"record_id":          rec.ID.String(),
			"external_ticket_id": rec.ExternalTicketID,
			"external_doc_id":    res.ExternalDocID,
		})
	}

	// The log append is independent of the record mutation succeeding.
	updErr := e.repo.UpdateRecord(rec)
	logErr := e.repo.AppendSyncLog(entry)

	if updErr != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to persist record outcome", updErr)
	}
	if logErr != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to append sync log", logErr)
	}
	return nil
}

// acquire marks a record as in flight. Returns false if the record is
// already being submitted, which guarantees a record is never in two
// concurrent submit calls.
func (e *Engine) acquire(id models.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id models.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}
