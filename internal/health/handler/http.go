// Package handler exposes readiness/liveness endpoints for Kubernetes, load
// balancers, and CI.
package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"snaplink/backend/internal/server/httpx"
)

// Checker verifies one dependency; used for the policy engine self-check.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves /healthz and /readyz.
type Handler struct {
	db      *sql.DB
	checker Checker
}

// NewHandler returns a health handler. db and checker may be nil; nil
// dependencies are skipped during readiness.
func NewHandler(db *sql.DB, checker Checker) *Handler {
	return &Handler{db: db, checker: checker}
}

// Live reports process liveness. Always 200 once the server is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness: the database answers a ping and the policy engine
// compiles its default policy.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if h.checker != nil {
		if err := h.checker.HealthCheck(ctx); err != nil {
			httpx.RespondError(w, http.StatusServiceUnavailable, "policy engine unavailable")
			return
		}
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
