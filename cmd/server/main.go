package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	accountrepo "snaplink/backend/internal/account/repository"
	accountservice "snaplink/backend/internal/account/service"
	"snaplink/backend/internal/audit"
	auditrepo "snaplink/backend/internal/audit/repository"
	"snaplink/backend/internal/config"
	"snaplink/backend/internal/db"
	"snaplink/backend/internal/db/migrate"
	"snaplink/backend/internal/delivery"
	"snaplink/backend/internal/devcode"
	devcodehandler "snaplink/backend/internal/devcode/handler"
	changerepo "snaplink/backend/internal/emailchange/repository"
	healthhandler "snaplink/backend/internal/health/handler"
	identityrepo "snaplink/backend/internal/identity/repository"
	identityservice "snaplink/backend/internal/identity/service"
	"snaplink/backend/internal/policy/engine"
	policyrepo "snaplink/backend/internal/policy/repository"
	"snaplink/backend/internal/security"
	"snaplink/backend/internal/server"
	"snaplink/backend/internal/server/middleware"
	sessionrepo "snaplink/backend/internal/session/repository"
	oteltel "snaplink/backend/internal/telemetry/otel"
	twofactorrepo "snaplink/backend/internal/twofactor/repository"
	twofactorservice "snaplink/backend/internal/twofactor/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := oteltel.NewProviders(ctx, cfg.OTLPEndpoint, "snaplink-backend", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("migrate", zap.Error(err))
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		logger.Fatal("JWT_PRIVATE_KEY", zap.Error(err))
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal("JWT_PUBLIC_KEY", zap.Error(err))
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	accounts := accountrepo.NewPostgresRepository(conn)
	identities := identityrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	profiles := twofactorrepo.NewPostgresRepository(conn)
	changes := changerepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)
	auditLogs := auditrepo.NewPostgresRepository(conn)

	auditLogger := audit.NewLogger(auditLogs, middleware.GetClientIP, logger)
	evaluator := engine.NewOPAEvaluator(policies, logger)

	var sender delivery.Sender
	switch cfg.MailProvider {
	case "smtp":
		sender = delivery.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.ChallengeTTLDuration())
	default:
		sender = delivery.NewResendClient(cfg.ResendAPIKey, cfg.ResendBaseURL, cfg.MailFrom, cfg.ChallengeTTLDuration())
	}

	var devStore devcode.Store
	var devHandler *devcodehandler.Handler
	if cfg.CodeReturnToClient {
		store := devcode.NewMemoryStore()
		devStore = store
		devHandler = devcodehandler.NewHandler(store)
		logger.Warn("dev code mode enabled; verification codes are retrievable via /api/v1/dev/code")
	}

	challenges := twofactorservice.NewChallengeService(
		profiles, accounts, sender, devStore, auditLogger,
		cfg.ChallengeTTLDuration(), cfg.ChallengeMaxAttempts,
	)
	authService := identityservice.NewAuthService(
		accounts, identities, sessions, profiles, challenges,
		evaluator, auditLogger, hasher, tokens, cfg.RefreshTTL(),
	)
	accountService := accountservice.NewAccountService(
		accounts, changes, profiles, challenges, auditLogger,
		cfg.EmailChangeCooldownDuration(),
	)

	router := server.NewRouter(server.Deps{
		Auth:     authService,
		Account:  accountService,
		Tokens:   tokens,
		Sessions: sessions,
		Health:   healthhandler.NewHandler(conn, evaluator),
		DevCodes: devHandler,
		Logger:   logger,
	})
	srv := server.New(cfg.HTTPAddr, router)

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server...")
	if err := server.Shutdown(srv, 10*time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
