// Package core implements local email/password accounts: sign-up with an
// emailed one-time passcode, sign-in issuing first-party access and refresh
// tokens, refresh with rotation, and access-token authentication.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/userauth/identity"
	jwtkit "github.com/PaulFidika/userauth/jwt"
	memorystore "github.com/PaulFidika/userauth/storage/memory"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidInput       = errors.New("core: email and password are required")
	ErrEmailTaken         = errors.New("core: email already registered")
	ErrPasswordMismatch   = errors.New("core: passwords do not match")
	ErrPasswordTooShort   = errors.New("core: password too short")
	ErrUserNotFound       = errors.New("core: user not found")
	ErrOTPMissing         = errors.New("core: no pending verification code")
	ErrOTPExpired         = errors.New("core: verification code expired")
	ErrOTPInvalid         = errors.New("core: verification code invalid")
	ErrAlreadyVerified    = errors.New("core: email already verified")
	ErrInvalidCredentials = errors.New("core: invalid credentials")
	ErrEmailNotVerified   = errors.New("core: email not verified")
	ErrAccountInactive    = errors.New("core: account inactive")
	ErrInvalidToken       = errors.New("core: invalid token")
	ErrRefreshReused      = errors.New("core: refresh token already used")
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultOTPTTL     = 10 * time.Minute
)

// Config holds token and passcode settings.
type Config struct {
	Issuer     string
	Keys       jwtkit.KeySource
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	OTPTTL     time.Duration
}

// EmailQueue delivers verification codes.
type EmailQueue interface {
	EnqueueOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// TokenLedger records consumed refresh token ids. Consume must be atomic.
type TokenLedger interface {
	Consume(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// OTPPurger is implemented by stores that can clear expired codes in bulk.
type OTPPurger interface {
	PurgeExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

// TokenPair is returned by SignIn and Refresh.
type TokenPair struct {
	Access  jwtkit.Issued
	Refresh jwtkit.Issued
}

// Service is the local account flow.
type Service struct {
	cfg    Config
	store  identity.Store
	tokens *jwtkit.SessionTokens
	emails EmailQueue
	used   TokenLedger
	events AuthEventLogger
	log    logrus.FieldLogger
	now    func() time.Time
}

type Option func(*Service)

func WithEmailQueue(q EmailQueue) Option       { return func(s *Service) { s.emails = q } }
func WithTokenLedger(l TokenLedger) Option     { return func(s *Service) { s.used = l } }
func WithEventLogger(e AuthEventLogger) Option { return func(s *Service) { s.events = e } }
func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService validates cfg and applies defaults. Without WithTokenLedger an
// in-process ledger is used, which only protects a single replica.
func NewService(cfg Config, store identity.Store, opts ...Option) (*Service, error) {
	if cfg.Keys == nil {
		return nil, errors.New("core: key source required")
	}
	if store == nil {
		return nil, errors.New("core: user store required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "userauth"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	s := &Service{
		cfg:   cfg,
		store: store,
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.used == nil {
		s.used = memorystore.NewLedger()
	}
	if s.events == nil {
		s.events = LogEventLogger{Log: s.log}
	}
	s.tokens = &jwtkit.SessionTokens{
		Keys:       cfg.Keys,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Now:        func() time.Time { return s.now() },
	}
	return s, nil
}

// Keys exposes the signing key source for JWKS publication.
func (s *Service) Keys() jwtkit.KeySource { return s.cfg.Keys }

// JWKS is the public half of the session signing keys.
func (s *Service) JWKS() jwtkit.JWKS { return jwtkit.PublicJWKS(s.cfg.Keys) }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }
