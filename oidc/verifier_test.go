package oidckit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/PaulFidika/userauth/keyset"
	authtest "github.com/PaulFidika/userauth/testing"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

func newVerifier(t *testing.T) (*authtest.TestIssuer, *TokenVerifier) {
	t.Helper()
	idp := authtest.NewTestIssuer()
	t.Cleanup(idp.Close)
	l := logrus.New()
	l.SetOutput(io.Discard)
	v := NewTokenVerifier(idp.KeyCache(keyset.WithLogger(l)), ConfigForDomain(idp.Domain()))
	return idp, v
}

func TestConfigForDomain(t *testing.T) {
	cfg := ConfigForDomain("https://clerk.example.com/")
	if cfg.Issuer != "https://clerk.example.com" || cfg.Audience != "clerk.example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestVerify_Valid(t *testing.T) {
	idp, v := newVerifier(t)
	tok := idp.CreateTokenWithClaims("user_1", "", map[string]any{
		"primary_email_address": "a@example.com",
		"first_name":            "Ann",
		"family_name":           "Lee",
		"email_verified":        "true",
	})

	claims, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user_1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.GivenName != "Ann" || claims.FamilyName != "Lee" {
		t.Fatalf("name aliases not resolved: %+v", claims)
	}
	if claims.EmailVerified == nil || !*claims.EmailVerified {
		t.Fatalf("expected email_verified true")
	}
	if claims.Expiry.IsZero() || claims.Issuer != idp.URL() {
		t.Fatalf("expected expiry and issuer to be populated")
	}
}

func TestVerify_KeyRotationRefetchesOnce(t *testing.T) {
	idp, v := newVerifier(t)
	if _, err := v.Verify(context.Background(), idp.CreateToken("user_1", "a@example.com")); err != nil {
		t.Fatalf("Verify before rotation: %v", err)
	}
	before := idp.FetchCount()

	idp.Rotate()
	if _, err := v.Verify(context.Background(), idp.CreateToken("user_1", "a@example.com")); err != nil {
		t.Fatalf("Verify after rotation: %v", err)
	}
	if got := idp.FetchCount() - before; got != 1 {
		t.Fatalf("expected exactly one refetch, got %d", got)
	}
	if _, err := v.Verify(context.Background(), idp.CreateToken("user_2", "b@example.com")); err != nil {
		t.Fatalf("Verify cached: %v", err)
	}
	if got := idp.FetchCount() - before; got != 1 {
		t.Fatalf("cached key should not refetch, got %d fetches", got)
	}
}

func TestVerify_Expired(t *testing.T) {
	idp, v := newVerifier(t)
	_, err := v.Verify(context.Background(), idp.CreateExpiredToken("user_1", "a@example.com"))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_Leeway(t *testing.T) {
	idp := authtest.NewTestIssuer()
	defer idp.Close()
	cfg := ConfigForDomain(idp.Domain())
	cfg.Leeway = time.Minute
	v := NewTokenVerifier(idp.KeyCache(), cfg)
	tok := idp.CreateTokenWithExpiry("user_1", "a@example.com", time.Now().Add(-10*time.Second))
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("expected leeway to accept recently expired token: %v", err)
	}
}

func TestVerify_ClaimsInvalid(t *testing.T) {
	idp, v := newVerifier(t)
	cases := map[string]map[string]any{
		"wrong issuer":   {"iss": "https://evil.example.com"},
		"wrong audience": {"aud": "other-app"},
		"missing sub":    {"sub": nil},
		"missing exp":    {"exp": nil},
		"not yet valid":  {"nbf": time.Now().Add(time.Hour).Unix()},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			tok := idp.CreateTokenWithClaims("user_1", "a@example.com", extra)
			_, err := v.Verify(context.Background(), tok)
			if !errors.Is(err, ErrClaimsInvalid) {
				t.Fatalf("expected ErrClaimsInvalid, got %v", err)
			}
		})
	}
}

func TestVerify_EmptyAudienceSkipsCheck(t *testing.T) {
	idp := authtest.NewTestIssuer()
	defer idp.Close()
	cfg := ConfigForDomain(idp.Domain())
	cfg.Audience = ""
	v := NewTokenVerifier(idp.KeyCache(), cfg)
	tok := idp.CreateTokenWithClaims("user_1", "a@example.com", map[string]any{"aud": "anything"})
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_AuthorizedParty(t *testing.T) {
	idp := authtest.NewTestIssuer()
	defer idp.Close()
	cfg := ConfigForDomain(idp.Domain())
	cfg.AuthorizedParties = []string{"https://app.example.com"}
	v := NewTokenVerifier(idp.KeyCache(), cfg)

	ok := idp.CreateTokenWithClaims("user_1", "", map[string]any{"azp": "https://app.example.com"})
	if _, err := v.Verify(context.Background(), ok); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	bad := idp.CreateTokenWithClaims("user_1", "", map[string]any{"azp": "https://evil.example.com"})
	if _, err := v.Verify(context.Background(), bad); !errors.Is(err, ErrClaimsInvalid) {
		t.Fatalf("expected ErrClaimsInvalid, got %v", err)
	}
}

func TestVerify_SignatureInvalid(t *testing.T) {
	idp, v := newVerifier(t)

	t.Run("tampered payload", func(t *testing.T) {
		tok := idp.CreateToken("user_1", "a@example.com")
		other := idp.CreateToken("user_2", "b@example.com")
		parts := strings.Split(tok, ".")
		otherParts := strings.Split(other, ".")
		forged := parts[0] + "." + otherParts[1] + "." + parts[2]
		if _, err := v.Verify(context.Background(), forged); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("disallowed algorithm", func(t *testing.T) {
		tok := idp.SignWithMethod(jwt.SigningMethodRS512, idp.Claims("user_1", "a@example.com"))
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("foreign key with known kid", func(t *testing.T) {
		otherIdp := authtest.NewTestIssuer()
		defer otherIdp.Close()
		claims := idp.Claims("user_1", "a@example.com")
		tok := otherIdp.Sign(claims)
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})
}

func TestVerify_HeaderProblems(t *testing.T) {
	idp, v := newVerifier(t)

	if _, err := v.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "  "); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for empty token, got %v", err)
	}

	noKid := jwt.NewWithClaims(jwt.SigningMethodRS256, idp.Claims("user_1", "a@example.com"))
	signer, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	raw, err := noKid.SignedString(signer)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrMissingKeyID) {
		t.Fatalf("expected ErrMissingKeyID, got %v", err)
	}
}

func TestVerify_KeyLookupFailures(t *testing.T) {
	t.Run("unknown kid", func(t *testing.T) {
		idp, v := newVerifier(t)
		kid := idp.ActiveKeyID()
		tok := idp.CreateToken("user_1", "a@example.com")
		idp.RetireKey(kid)
		_, err := v.Verify(context.Background(), tok)
		if !errors.Is(err, ErrKeyLookupFailed) || !errors.Is(err, keyset.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyLookupFailed wrapping ErrKeyNotFound, got %v", err)
		}
	})
	t.Run("key set unavailable", func(t *testing.T) {
		idp, v := newVerifier(t)
		idp.SetUnavailable(true)
		_, err := v.Verify(context.Background(), idp.CreateToken("user_1", "a@example.com"))
		if !errors.Is(err, ErrKeyLookupFailed) || !errors.Is(err, keyset.ErrKeySetUnavailable) {
			t.Fatalf("expected ErrKeyLookupFailed wrapping ErrKeySetUnavailable, got %v", err)
		}
	})
}
