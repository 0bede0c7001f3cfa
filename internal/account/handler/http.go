package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"snaplink/backend/api"
	accountdomain "snaplink/backend/internal/account/domain"
	"snaplink/backend/internal/account/service"
	"snaplink/backend/internal/server/httpx"
	"snaplink/backend/internal/server/middleware"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

// AccountService is the subset of the account service used by the HTTP handlers.
type AccountService interface {
	Get(ctx context.Context, accountID string) (*accountdomain.Account, error)
	GetSecondFactor(ctx context.Context, accountID string) (bool, error)
	SetSecondFactor(ctx context.Context, accountID string, enabled bool) error
	RequestEmailChange(ctx context.Context, accountID, newEmail string) (string, time.Time, error)
	ConfirmEmailChange(ctx context.Context, accountID, challengeID, code string) (*accountdomain.Account, error)
	CancelEmailChange(ctx context.Context, accountID string) error
	ResendEmailChangeCode(ctx context.Context, accountID string) (string, time.Time, error)
}

// AccountHandler exposes the account service over HTTP. All routes require a
// bearer token; the auth middleware puts the account id in the context.
type AccountHandler struct {
	svc AccountService
	log *zap.Logger
}

// NewAccountHandler returns an AccountHandler with the given dependencies.
func NewAccountHandler(svc AccountService, log *zap.Logger) *AccountHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountHandler{svc: svc, log: log}
}

// Mount registers the account routes on r.
func (h *AccountHandler) Mount(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/two-factor", h.SetTwoFactor)
	r.Post("/email", h.RequestEmailChange)
	r.Post("/email/confirm", h.ConfirmEmailChange)
	r.Post("/email/resend", h.ResendEmailChangeCode)
	r.Delete("/email", h.CancelEmailChange)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	account, err := h.svc.Get(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	enabled, err := h.svc.GetSecondFactor(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, accountResponse(account, enabled))
}

func (h *AccountHandler) SetTwoFactor(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req api.SetTwoFactorRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetSecondFactor(r.Context(), accountID, req.Enabled); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req api.EmailChangeRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	challengeID, expiresAt, err := h.svc.RequestEmailChange(r.Context(), accountID, req.NewEmail)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusAccepted, api.EmailChangeResponse{ChallengeID: challengeID, ExpiresAt: expiresAt})
}

func (h *AccountHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req api.EmailChangeConfirmRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	// The service rejects a code belonging to a different account before
	// committing anything.
	account, err := h.svc.ConfirmEmailChange(r.Context(), accountID, req.ChallengeID, req.Code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	enabled, err := h.svc.GetSecondFactor(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, accountResponse(account, enabled))
}

func (h *AccountHandler) ResendEmailChangeCode(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	challengeID, expiresAt, err := h.svc.ResendEmailChangeCode(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, api.EmailChangeResponse{ChallengeID: challengeID, ExpiresAt: expiresAt})
}

func (h *AccountHandler) CancelEmailChange(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httpx.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.svc.CancelEmailChange(r.Context(), accountID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		httpx.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmailUnchanged),
		errors.Is(err, service.ErrEmailInUse),
		errors.Is(err, service.ErrNoPendingChange):
		httpx.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrChangeCooldown):
		httpx.RespondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, twofactorservice.ErrChallengeRejected):
		httpx.RespondError(w, http.StatusUnauthorized, twofactorservice.ErrChallengeRejected.Error())
	case errors.Is(err, twofactorservice.ErrDeliveryFailed):
		httpx.RespondError(w, http.StatusBadGateway, twofactorservice.ErrDeliveryFailed.Error())
	case strings.HasPrefix(err.Error(), "email is required"), strings.HasPrefix(err.Error(), "invalid email"):
		httpx.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("account request failed", zap.Error(err), zap.String("path", r.URL.Path))
		httpx.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func accountResponse(a *accountdomain.Account, twoFactorEnabled bool) api.AccountResponse {
	return api.AccountResponse{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Status:           string(a.Status),
		TwoFactorEnabled: twoFactorEnabled,
		EmailChangedAt:   a.EmailChangedAt,
		CreatedAt:        a.CreatedAt,
	}
}
