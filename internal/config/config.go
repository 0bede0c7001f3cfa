// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "snaplink-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "snaplink-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ChallengeTTL is the step-up code lifetime (e.g. "10m"). A submitted code
	// at or past this window is rejected as expired.
	ChallengeTTL string `mapstructure:"CHALLENGE_TTL"`
	// ChallengeMaxAttempts is the number of mismatched submissions tolerated
	// before the pending code is invalidated; default 5.
	ChallengeMaxAttempts int `mapstructure:"CHALLENGE_MAX_ATTEMPTS"`
	// EmailChangeCooldown is the window after a committed email change during
	// which further change requests are refused (e.g. "336h" for 14 days).
	EmailChangeCooldown string `mapstructure:"EMAIL_CHANGE_COOLDOWN"`

	// MailProvider selects code delivery: "resend" (HTTP API) or "smtp" (go-mail).
	MailProvider string `mapstructure:"MAIL_PROVIDER"`
	// MailFrom is the From header for step-up code emails.
	MailFrom string `mapstructure:"MAIL_FROM"`
	// ResendAPIKey is the API key for the Resend email API.
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	// ResendBaseURL is the Resend API endpoint (default https://api.resend.com/emails).
	ResendBaseURL string `mapstructure:"RESEND_BASE_URL"`
	// SMTPHost, SMTPPort, SMTPUsername, SMTPPassword configure the SMTP sender when MAIL_PROVIDER=smtp.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// CodeReturnToClient when true enables dev code mode: no email, code stored for GET /api/v1/dev/code; for local development only. Must not be true when Env is production (startup error).
	CodeReturnToClient bool `mapstructure:"CODE_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// CleanupCron is the worker schedule for purging expired challenges and
	// abandoned email changes (standard cron expression).
	CleanupCron string `mapstructure:"CLEANUP_CRON"`
	// CleanupTimeout bounds a single cleanup run (e.g. "1m").
	CleanupTimeout string `mapstructure:"CLEANUP_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "snaplink-auth")
	v.SetDefault("JWT_AUDIENCE", "snaplink-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CHALLENGE_TTL", "10m")
	v.SetDefault("CHALLENGE_MAX_ATTEMPTS", 5)
	v.SetDefault("EMAIL_CHANGE_COOLDOWN", "336h") // 14d
	v.SetDefault("MAIL_PROVIDER", "resend")
	v.SetDefault("MAIL_FROM", "SnapLink <no-reply@snaplink.app>")
	v.SetDefault("RESEND_BASE_URL", "https://api.resend.com/emails")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CODE_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("CLEANUP_CRON", "*/10 * * * *")
	v.SetDefault("CLEANUP_TIMEOUT", "1m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.CodeReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: CODE_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.MailProvider != "resend" && cfg.MailProvider != "smtp" {
		return nil, errors.New("config: MAIL_PROVIDER must be resend or smtp")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.ChallengeMaxAttempts <= 0 {
		return nil, errors.New("config: CHALLENGE_MAX_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// ChallengeTTLDuration parses ChallengeTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) ChallengeTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.ChallengeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// EmailChangeCooldownDuration parses EmailChangeCooldown as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) EmailChangeCooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.EmailChangeCooldown)
	if err != nil || d < 0 {
		return 336 * time.Hour
	}
	return d
}

// CleanupTimeoutDuration parses CleanupTimeout as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) CleanupTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.CleanupTimeout)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
