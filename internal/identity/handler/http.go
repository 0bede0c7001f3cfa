package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"snaplink/backend/api"
	"snaplink/backend/internal/identity/service"
	"snaplink/backend/internal/server/httpx"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

const (
	twoFactorRequired    = "REQUIRED"
	twoFactorNotRequired = "NOT_REQUIRED"
)

// AuthService is the subset of the auth service used by the HTTP handlers.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (string, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	VerifyLogin(ctx context.Context, challengeID, code string) (*service.AuthResult, error)
	ResendLoginCode(ctx context.Context, challengeID string) (string, time.Time, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler exposes the auth service over HTTP.
type AuthHandler struct {
	svc AuthService
	log *zap.Logger
}

// NewAuthHandler returns an AuthHandler with the given dependencies.
func NewAuthHandler(svc AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{svc: svc, log: log}
}

// Mount registers the auth routes on r.
func (h *AuthHandler) Mount(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/verify", h.Verify)
	r.Post("/resend", h.Resend)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	accountID, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			httpx.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		if isValidationError(err) {
			httpx.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, r, "register failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, api.RegisterResponse{AccountID: accountID})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	if result.StepUpRequired {
		exp := result.ChallengeExpiresAt
		httpx.RespondJSON(w, http.StatusOK, api.LoginResponse{
			TwoFactor:          twoFactorRequired,
			ChallengeID:        result.ChallengeID,
			ChallengeExpiresAt: &exp,
		})
		return
	}
	httpx.RespondJSON(w, http.StatusOK, api.LoginResponse{
		TwoFactor: twoFactorNotRequired,
		TokenPair: tokenPair(result.Auth),
	})
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	auth, err := h.svc.VerifyLogin(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, tokenPair(auth))
}

func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req api.ResendRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	challengeID, expiresAt, err := h.svc.ResendLoginCode(r.Context(), req.ChallengeID)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, api.ResendResponse{ChallengeID: challengeID, ExpiresAt: expiresAt})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	auth, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) || errors.Is(err, service.ErrRefreshTokenReuse) {
			httpx.RespondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.internalError(w, r, "refresh failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, tokenPair(auth))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req api.LogoutRequest
	// Body is optional: a bare POST logs out the bearer session.
	if r.ContentLength > 0 && !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.internalError(w, r, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.RespondError(w, http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, twofactorservice.ErrChallengeRejected):
		// One uniform message for every rejection; the precise reason
		// lives in the audit log only.
		httpx.RespondError(w, http.StatusUnauthorized, twofactorservice.ErrChallengeRejected.Error())
	case errors.Is(err, twofactorservice.ErrDeliveryFailed):
		httpx.RespondError(w, http.StatusBadGateway, twofactorservice.ErrDeliveryFailed.Error())
	case errors.Is(err, twofactorservice.ErrProfileLookupFailed):
		h.internalError(w, r, "profile lookup failed", err)
	default:
		h.internalError(w, r, "auth request failed", err)
	}
}

func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.Error(msg, zap.Error(err), zap.String("path", r.URL.Path))
	httpx.RespondError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func tokenPair(a *service.AuthResult) *api.TokenPair {
	return &api.TokenPair{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.ExpiresAt,
		AccountID:    a.AccountID,
	}
}

// isValidationError reports whether the error is a client-side input problem
// rather than an infrastructure failure.
func isValidationError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"email", "password", "invalid email", "name"} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
