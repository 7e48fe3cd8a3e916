package jwtkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("jwtkit: invalid token")
	ErrWrongTokenType = errors.New("jwtkit: wrong token type")
)

// SessionClaims are the claims of first-party access and refresh tokens.
type SessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Issued is a freshly minted token.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// SessionTokens issues and verifies the service's own session tokens.
type SessionTokens struct {
	Keys       KeySource
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s *SessionTokens) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue signs a token of tokenType for subject.
func (s *SessionTokens) Issue(ctx context.Context, subject, tokenType string) (Issued, error) {
	ttl := s.AccessTTL
	if tokenType == TokenTypeRefresh {
		ttl = s.RefreshTTL
	}
	now := s.now()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":        subject,
		"iss":        s.Issuer,
		"iat":        now.Unix(),
		"exp":        exp.Unix(),
		"jti":        jti,
		"token_type": tokenType,
	}
	tok, err := s.Keys.ActiveSigner().Sign(ctx, claims)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, ID: jti, ExpiresAt: exp}, nil
}

// Parse verifies signature, issuer, expiry and token type.
func (s *SessionTokens) Parse(raw, tokenType string) (*SessionClaims, error) {
	pubs := s.Keys.PublicKeys()
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := pubs[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: got %q", ErrWrongTokenType, claims.TokenType)
	}
	return &claims, nil
}
