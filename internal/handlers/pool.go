package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/uestcbean/phoebe-service/internal/pool"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// PoolHandler exposes the administrative index pool API.
type PoolHandler struct {
	pool *pool.Pool
}

// NewPoolHandler creates a new PoolHandler.
func NewPoolHandler(p *pool.Pool) *PoolHandler {
	return &PoolHandler{pool: p}
}

// SeedRequest is the body for adding one slot to the pool.
type SeedRequest struct {
	ExternalIndexID string `json:"externalIndexId"`
	CategoryID      string `json:"categoryId"`
	DisplayName     string `json:"displayName"`
}

// OwnerRequest carries an owner id for assign/release operations.
type OwnerRequest struct {
	OwnerID int64 `json:"ownerId"`
}

// Seed handles POST /api/admin/pool.
func (h *PoolHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ExternalIndexID == "" || req.CategoryID == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "externalIndexId and categoryId are required"})
		return
	}

	slot, err := h.pool.Seed(r.Context(), req.ExternalIndexID, req.CategoryID, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, slotResponse(slot))
}

// BatchSeed handles POST /api/admin/pool/batch.
func (h *PoolHandler) BatchSeed(w http.ResponseWriter, r *http.Request) {
	var entries []pool.SeedEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	added, err := h.pool.BatchSeed(r.Context(), entries)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"added": added})
}

// List handles GET /api/admin/pool. An optional ?state= filter narrows
// the listing to one slot state.
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		slots []*storage.IndexSlot
		err   error
	)
	if state := r.URL.Query().Get("state"); state != "" {
		slots, err = h.pool.ListByState(r.Context(), storage.SlotState(state))
	} else {
		slots, err = h.pool.List(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotResponse(slot))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// Stats handles GET /api/admin/pool/stats.
func (h *PoolHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// Assign handles POST /api/admin/pool/assign.
func (h *PoolHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == 0 {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "ownerId is required"})
		return
	}

	slot, err := h.pool.Assign(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, slotResponse(slot))
}

// Owner handles GET /api/admin/pool/owners/{ownerID}: the slot an
// owner currently holds, 404 when they hold none.
func (h *PoolHandler) Owner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDParam(w, r)
	if !ok {
		return
	}
	slot, err := h.pool.AssignedTo(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, slotResponse(slot))
}

// Release handles POST /api/admin/pool/release.
func (h *PoolHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == 0 {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "ownerId is required"})
		return
	}

	if err := h.pool.Release(r.Context(), req.OwnerID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disable handles POST /api/admin/pool/{id}/disable.
func (h *PoolHandler) Disable(w http.ResponseWriter, r *http.Request) {
	id, ok := slotID(w, r)
	if !ok {
		return
	}
	if err := h.pool.Disable(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enable handles POST /api/admin/pool/{id}/enable.
func (h *PoolHandler) Enable(w http.ResponseWriter, r *http.Request) {
	id, ok := slotID(w, r)
	if !ok {
		return
	}
	if err := h.pool.Enable(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/admin/pool/{id}.
func (h *PoolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := slotID(w, r)
	if !ok {
		return
	}
	if err := h.pool.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func slotID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid slot id"})
		return 0, false
	}
	return id, true
}

func slotResponse(slot *storage.IndexSlot) map[string]any {
	resp := map[string]any{
		"id":              slot.ID,
		"externalIndexId": slot.ExternalIndexID,
		"categoryId":      slot.CategoryID,
		"displayName":     slot.DisplayName,
		"state":           slot.State,
		"createdAt":       slot.CreatedAt,
	}
	if slot.AssignedOwnerID != nil {
		resp["assignedOwnerId"] = *slot.AssignedOwnerID
	}
	if slot.AssignedAt != nil {
		resp["assignedAt"] = *slot.AssignedAt
	}
	return resp
}
