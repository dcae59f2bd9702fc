package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/uestcbean/phoebe-service/internal/gateway"
)

// Retriever answers knowledge base queries for an owner.
// Implemented by the gateway.
type Retriever interface {
	Retrieve(ctx context.Context, ownerID int64, query string) gateway.RetrievalResult
}

// RetrieveHandler serves knowledge base retrieval for the chat/RAG path.
type RetrieveHandler struct {
	retriever Retriever
}

// NewRetrieveHandler creates a new RetrieveHandler.
func NewRetrieveHandler(retriever Retriever) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever}
}

// RetrieveRequest is the body for a retrieval query.
type RetrieveRequest struct {
	OwnerID int64  `json:"ownerId"`
	Query   string `json:"query"`
}

// ServeHTTP handles POST /api/kb/retrieve. A missing binding or remote
// failure yields an empty node list with 200, never an error status.
func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.OwnerID == 0 || req.Query == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "ownerId and query are required"})
		return
	}

	result := h.retriever.Retrieve(r.Context(), req.OwnerID, req.Query)
	if result.Nodes == nil {
		result.Nodes = []gateway.RetrievedNode{}
	}
	writeJSON(w, r, http.StatusOK, result)
}
