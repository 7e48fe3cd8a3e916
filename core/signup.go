package core

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/PaulFidika/userauth/identity"
	"github.com/PaulFidika/userauth/password"
)

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	GivenName       string
	FamilyName      string
}

// SignUp creates an inactive, unverified user and emails a verification code.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*identity.User, error) {
	email := identity.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, ok, err := s.store.FindByEmail(ctx, email); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrEmailTaken
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := password.Validate(in.Password); err != nil {
		return nil, ErrPasswordTooShort
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("core: hash password: %w", err)
	}

	u := &identity.User{
		Email:        email,
		GivenName:    strings.TrimSpace(in.GivenName),
		FamilyName:   strings.TrimSpace(in.FamilyName),
		PasswordHash: &hash,
	}
	code, err := s.assignOTP(u)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, identity.ErrDuplicateIdentity) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.log.WithField("user_id", u.ID).Info("core: user signed up")
	s.sendOTP(ctx, u, code)
	return u, nil
}

// VerifyOTP activates the account when code matches the pending code.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*identity.User, error) {
	u, ok, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.OTPCode == nil {
		return nil, ErrOTPMissing
	}
	now := s.now()
	if u.OTPExpiry == nil || now.After(*u.OTPExpiry) {
		u.OTPCode, u.OTPExpiry = nil, nil
		if err := s.store.Update(ctx, u); err != nil {
			return nil, err
		}
		return nil, ErrOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(*u.OTPCode)) != 1 {
		return nil, ErrOTPInvalid
	}
	u.IsActive = true
	u.IsEmailVerified = true
	u.EmailVerifiedAt = &now
	u.OTPCode, u.OTPExpiry = nil, nil
	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", u.ID).Info("core: email verified")
	return u, nil
}

// ResendOTP replaces the pending code and emails it again.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	u, ok, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if u.IsEmailVerified {
		return ErrAlreadyVerified
	}
	code, err := s.assignOTP(u)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, u); err != nil {
		return err
	}
	s.sendOTP(ctx, u, code)
	return nil
}

// SweepExpiredOTPs clears expired codes when the store supports it.
func (s *Service) SweepExpiredOTPs(ctx context.Context) (int64, error) {
	p, ok := s.store.(OTPPurger)
	if !ok {
		return 0, nil
	}
	n, err := p.PurgeExpiredOTPs(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("core: cleared expired verification codes")
	}
	return n, nil
}

func (s *Service) assignOTP(u *identity.User) (string, error) {
	code, err := generateOTP()
	if err != nil {
		return "", fmt.Errorf("core: generate code: %w", err)
	}
	now := s.now()
	exp := now.Add(s.cfg.OTPTTL)
	u.OTPCode = &code
	u.OTPExpiry = &exp
	u.OTPSentAt = &now
	return code, nil
}

// sendOTP enqueues the email. Enqueue failures are logged; the user can ask
// for a new code.
func (s *Service) sendOTP(ctx context.Context, u *identity.User, code string) {
	log := s.log.WithField("user_id", u.ID)
	if s.emails == nil {
		log.Warn("core: no email queue configured, verification code not sent")
		return
	}
	if err := s.emails.EnqueueOTP(ctx, u.Email, code, *u.OTPExpiry); err != nil {
		log.WithError(err).Error("core: enqueue verification email failed")
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
