package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"snaplink/backend/internal/security"
	sessiondomain "snaplink/backend/internal/session/domain"
)

const bearerPrefix = "bearer "

// SessionStore is the minimal session lookup needed by the auth middleware.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// RequireAuth validates the Bearer (access) token from the Authorization
// header, checks the session is still live, and sets account_id and
// session_id in the request context. Requests without a valid token get 401.
func RequireAuth(tokens *security.TokenProvider, sessions SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				unauthorized(w)
				return
			}
			sessionID, accountID, err := tokens.ValidateAccess(token)
			if err != nil {
				unauthorized(w)
				return
			}
			if sessions != nil {
				sess, err := sessions.GetByID(r.Context(), sessionID)
				if err != nil || sess == nil || !sess.Active(time.Now().UTC()) {
					unauthorized(w)
					return
				}
			}
			ctx := WithIdentity(r.Context(), accountID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth sets identity in context when a valid Bearer token is present,
// and passes the request through untouched otherwise. Used on logout so a
// bare POST with only an access token still revokes its session.
func OptionalAuth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractBearer(r); token != "" {
				if sessionID, accountID, err := tokens.ValidateAccess(token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), accountID, sessionID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"missing or invalid authorization"}`))
}
