package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	accounthandler "snaplink/backend/internal/account/handler"
	devcodehandler "snaplink/backend/internal/devcode/handler"
	healthhandler "snaplink/backend/internal/health/handler"
	identityhandler "snaplink/backend/internal/identity/handler"
	"snaplink/backend/internal/security"
	"snaplink/backend/internal/server/middleware"
)

// Deps holds the handlers and shared infrastructure wired into the router.
type Deps struct {
	Auth     identityhandler.AuthService
	Account  accounthandler.AccountService
	Tokens   *security.TokenProvider
	Sessions middleware.SessionStore
	Health   *healthhandler.Handler
	// DevCodes is the dev-only code retrieval handler. If nil, the dev
	// route is not registered. Set only outside production.
	DevCodes *devcodehandler.Handler
	Logger   *zap.Logger
}

// NewRouter builds the HTTP router.
//
// Route → handler mapping:
//   - /api/v1/auth/*    → internal/identity/handler
//   - /api/v1/account/* → internal/account/handler
//   - /api/v1/dev/code  → internal/devcode/handler (dev mode only)
//   - /healthz, /readyz → internal/health/handler
func NewRouter(deps Deps) chi.Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", deps.Health.Live)
	r.Get("/readyz", deps.Health.Ready)

	authHandler := identityhandler.NewAuthHandler(deps.Auth, log)
	accountHandler := accounthandler.NewAccountHandler(deps.Account, log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Credential and code endpoints are brute-force targets.
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(10, time.Minute))
				r.Post("/login", authHandler.Login)
				r.Post("/verify", authHandler.Verify)
				r.Post("/resend", authHandler.Resend)
			})
			r.Post("/register", authHandler.Register)
			r.Post("/refresh", authHandler.Refresh)
			r.With(middleware.OptionalAuth(deps.Tokens)).Post("/logout", authHandler.Logout)
		})
		r.Route("/account", func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.Tokens, deps.Sessions))
			accountHandler.Mount(r)
		})
		if deps.DevCodes != nil {
			r.Get("/dev/code", deps.DevCodes.Get)
		}
	})
	return r
}

// New returns an HTTP server for the router with OpenTelemetry request
// instrumentation and sane timeouts.
func New(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// requestLogger logs one line per request with method, path, status, and duration.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Shutdown drains the server with the given timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
