package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/uestcbean/phoebe-service/internal/contextutil"
	"github.com/uestcbean/phoebe-service/internal/scheduler"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// Updater replaces a note's remote document. Implemented by the gateway.
type Updater interface {
	Update(ctx context.Context, note *storage.Note) *storage.SyncRecord
}

// SyncRunner drives batch note synchronization. Implemented by the
// scheduler.
type SyncRunner interface {
	SyncAll(ctx context.Context) scheduler.Result
	SyncForOwner(ctx context.Context, ownerID int64) (int, error)
	ForceSyncForOwner(ctx context.Context, ownerID int64) (int, error)
}

// SyncHandler exposes the manual sync triggers and the sync history view.
type SyncHandler struct {
	scheduler SyncRunner
	ledger    storage.SyncRecordStore
	notes     storage.NoteStore
	updater   Updater

	// syncing guards the global trigger: at most one full run in flight.
	syncing atomic.Bool
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s SyncRunner, ledger storage.SyncRecordStore, notes storage.NoteStore, updater Updater) *SyncHandler {
	return &SyncHandler{scheduler: s, ledger: ledger, notes: notes, updater: updater}
}

// SyncAll handles POST /api/admin/sync. The run is asynchronous: the
// caller gets an immediate 202 and the run's outcome is observable only
// through logs and the ledger. While a run is in flight, further
// triggers are rejected with 409 rather than stacking overlapping runs.
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	logger := contextutil.LoggerFromContext(r.Context())

	if !h.syncing.CompareAndSwap(false, true) {
		logger.WarnContext(r.Context(), "full sync already in flight, rejecting trigger")
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: "a full sync is already running"})
		return
	}
	logger.InfoContext(r.Context(), "manual full sync triggered")

	go func() {
		defer h.syncing.Store(false)
		ctx := contextutil.WithLogger(context.Background(), slog.Default().With("job", "manual_sync"))
		h.scheduler.SyncAll(ctx)
	}()

	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "sync started"})
}

// SyncOwner handles POST /api/admin/sync/owners/{ownerID}.
func (h *SyncHandler) SyncOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	synced, err := h.scheduler.SyncForOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"synced": synced})
}

// ForceSyncOwner handles POST /api/admin/sync/owners/{ownerID}/force.
// Every active note is re-uploaded regardless of ledger state; duplicate
// remote documents are an accepted consequence.
func (h *SyncHandler) ForceSyncOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	synced, err := h.scheduler.ForceSyncForOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"synced": synced})
}

// SyncNote handles POST /api/admin/sync/notes/{noteID}: a single-note
// resync that replaces the note's remote document. The outcome record
// is returned either way; inspect its outcome field.
func (h *SyncHandler) SyncNote(w http.ResponseWriter, r *http.Request) {
	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid note id"})
		return
	}

	note, err := h.notes.GetByID(r.Context(), noteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if note.State != storage.NoteActive {
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: "note is not active"})
		return
	}

	rec := h.updater.Update(r.Context(), note)
	writeJSON(w, r, http.StatusOK, syncRecordResponse(rec))
}

// NoteHistory handles GET /api/admin/sync/notes/{noteID}/history.
func (h *SyncHandler) NoteHistory(w http.ResponseWriter, r *http.Request) {
	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid note id"})
		return
	}

	records, err := h.ledger.ListByNote(r.Context(), noteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, syncRecordList(records))
}

// OwnerHistory handles GET /api/admin/sync/owners/{ownerID}/history.
func (h *SyncHandler) OwnerHistory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}

	records, err := h.ledger.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, syncRecordList(records))
}

func ownerIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ownerID, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid owner id"})
		return 0, false
	}
	return ownerID, true
}

func syncRecordResponse(rec *storage.SyncRecord) map[string]any {
	resp := map[string]any{
		"id":       rec.ID,
		"noteId":   rec.NoteID,
		"ownerId":  rec.OwnerID,
		"outcome":  rec.Outcome,
		"syncedAt": rec.SyncedAt,
	}
	if rec.ExternalIndexID != "" {
		resp["externalIndexId"] = rec.ExternalIndexID
	}
	if rec.RemoteDocumentID != "" {
		resp["remoteDocumentId"] = rec.RemoteDocumentID
	}
	if rec.ErrorMessage != "" {
		resp["errorMessage"] = rec.ErrorMessage
	}
	return resp
}

func syncRecordList(records []*storage.SyncRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, syncRecordResponse(rec))
	}
	return out
}
