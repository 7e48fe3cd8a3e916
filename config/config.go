// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the userauthd configuration.
type Config struct {
	Env      string `env:"ENV"       envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	ClerkFrontendAPI       string        `env:"CLERK_FRONTEND_API"`
	ClerkIssuer            string        `env:"CLERK_ISSUER"`
	ClerkAudience          string        `env:"CLERK_AUDIENCE"`
	ClerkAuthorizedParties []string      `env:"CLERK_AUTHORIZED_PARTIES" envSeparator:","`
	ClerkWebhookSecret     string        `env:"CLERK_WEBHOOK_SECRET"`
	ClerkWebhookStrictTS   bool          `env:"CLERK_WEBHOOK_STRICT_TIMESTAMP" envDefault:"false"`
	ClerkCookieNames       []string      `env:"CLERK_COOKIE_NAMES" envSeparator:"," envDefault:"clerk_session,__session"`
	JWKSTimeout            time.Duration `env:"CLERK_JWKS_TIMEOUT" envDefault:"5s"`
	TokenLeeway            time.Duration `env:"CLERK_TOKEN_LEEWAY" envDefault:"0s"`
	WebhookDeliveryTTL     time.Duration `env:"CLERK_WEBHOOK_DELIVERY_TTL" envDefault:"24h"`

	TokenIssuer     string        `env:"AUTH_TOKEN_ISSUER" envDefault:"userauth"`
	AccessTTL       time.Duration `env:"AUTH_ACCESS_TTL" envDefault:"24h"`
	RefreshTTL      time.Duration `env:"AUTH_REFRESH_TTL" envDefault:"168h"`
	OTPTTL          time.Duration `env:"AUTH_OTP_TTL" envDefault:"10m"`
	SigningKeyID    string        `env:"AUTH_SIGNING_KEY_ID"`
	SigningKeyPEM   string        `env:"AUTH_SIGNING_KEY_PEM"`
	PublicKeysJSON  string        `env:"AUTH_PUBLIC_KEYS"`
	DevKeysDir      string        `env:"AUTH_DEV_KEYS_DIR" envDefault:".runtime/userauth"`
	AccessCookie    string        `env:"AUTH_ACCESS_COOKIE" envDefault:"access"`
	RefreshCookie   string        `env:"AUTH_REFRESH_COOKIE" envDefault:"refresh"`
	CookieDomain    string        `env:"AUTH_COOKIE_DOMAIN"`
	CookieSecure    bool          `env:"AUTH_COOKIE_SECURE" envDefault:"true"`
	OTPSweepSpec    string        `env:"AUTH_OTP_SWEEP" envDefault:"@every 5m"`
	EmailMaxWorkers int           `env:"AUTH_EMAIL_WORKERS" envDefault:"4"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Production reports whether ENV names a production deployment.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ClerkFrontendAPI == "" {
		errs = append(errs, errors.New("CLERK_FRONTEND_API is required"))
	}
	if c.Production() && c.ClerkWebhookSecret == "" {
		errs = append(errs, errors.New("CLERK_WEBHOOK_SECRET is required in production"))
	}
	if c.JWKSTimeout <= 0 {
		errs = append(errs, errors.New("CLERK_JWKS_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
