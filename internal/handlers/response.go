package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uestcbean/phoebe-service/internal/contextutil"
	"github.com/uestcbean/phoebe-service/internal/pool"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// errorResponse is the body returned for rejected operations.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		contextutil.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError maps known service errors onto HTTP statuses. Allocator
// rejections surface with their human-readable reason; everything else
// is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pool.ErrDuplicateSlot),
		errors.Is(err, pool.ErrSlotInUse),
		errors.Is(err, pool.ErrNoCategoryConfigured):
		status = http.StatusConflict
	case errors.Is(err, pool.ErrPoolExhausted):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		contextutil.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "request failed", "error", err)
		writeJSON(w, r, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}
