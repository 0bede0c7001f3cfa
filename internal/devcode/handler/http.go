package handler

import (
	"net/http"

	"snaplink/backend/api"
	"snaplink/backend/internal/devcode"
	"snaplink/backend/internal/server/httpx"
)

// Handler serves GET /api/v1/dev/code for dev-mode code retrieval. Never
// mounted in production.
type Handler struct {
	store devcode.Store
}

// NewHandler returns a dev code handler backed by store.
func NewHandler(store devcode.Store) *Handler {
	return &Handler{store: store}
}

// Get returns the plain code for challengeId, or 404 if missing or expired.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challengeId")
	if challengeID == "" {
		httpx.RespondError(w, http.StatusBadRequest, "challengeId is required")
		return
	}
	code, ok := h.store.Get(r.Context(), challengeID)
	if !ok {
		httpx.RespondError(w, http.StatusNotFound, "no code for challenge")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, api.DevCodeResponse{ChallengeID: challengeID, Code: code})
}
