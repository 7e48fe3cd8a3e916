package core

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/userauth/identity"
	jwtkit "github.com/PaulFidika/userauth/jwt"
	"github.com/PaulFidika/userauth/password"
	"github.com/google/uuid"
)

// SignIn checks credentials and issues a token pair.
func (s *Service) SignIn(ctx context.Context, email, pw string, meta SignInMeta) (*identity.User, *TokenPair, error) {
	u, ok, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if !ok || !u.HasPassword() {
		return nil, nil, ErrInvalidCredentials
	}
	match, err := password.Verify(*u.PasswordHash, pw)
	if err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("core: stored password hash unusable")
		return nil, nil, ErrInvalidCredentials
	}
	if !match {
		return nil, nil, ErrInvalidCredentials
	}
	if !u.IsEmailVerified {
		return nil, nil, ErrEmailNotVerified
	}
	if !u.IsActive {
		return nil, nil, ErrAccountInactive
	}
	pair, err := s.issuePair(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.events.LogSignIn(ctx, u.ID.String(), "password", meta); err != nil {
		s.log.WithError(err).Debug("core: sign-in event not recorded")
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*identity.User, *TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, jwtkit.TokenTypeRefresh)
	if err != nil {
		return nil, nil, errors.Join(ErrInvalidToken, err)
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	fresh, err := s.used.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return nil, nil, err
	}
	if !fresh {
		s.log.WithField("user_id", claims.Subject).Warn("core: refresh token replayed")
		return nil, nil, ErrRefreshReused
	}
	u, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// AuthenticateAccess resolves a first-party access token to an active user.
func (s *Service) AuthenticateAccess(ctx context.Context, accessToken string) (*identity.User, error) {
	claims, err := s.tokens.Parse(accessToken, jwtkit.TokenTypeAccess)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return s.activeUser(ctx, claims.Subject)
}

func (s *Service) activeUser(ctx context.Context, subject string) (*identity.User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	u, ok, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	if !u.IsActive {
		return nil, ErrAccountInactive
	}
	return u, nil
}

func (s *Service) issuePair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.Issue(ctx, userID.String(), jwtkit.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, userID.String(), jwtkit.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
