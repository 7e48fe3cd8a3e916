// Package testing provides a fake identity provider for tests: a TLS server
// publishing a rotating JWKS at /.well-known/jwks.json, helpers that mint
// session tokens the server's keys verify, and a webhook signer.
//
// Example usage:
//
//	idp := testing.NewTestIssuer()
//	defer idp.Close()
//
//	keys := idp.KeyCache()
//	verifier := oidckit.NewTokenVerifier(keys, oidckit.ConfigForDomain(idp.Domain()))
//	token := idp.CreateToken("user_123", "test@example.com")
package testing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jwtkit "github.com/PaulFidika/userauth/jwt"
	"github.com/PaulFidika/userauth/keyset"
	"github.com/PaulFidika/userauth/webhook"
	jwt "github.com/golang-jwt/jwt/v5"
)

// TestIssuer is a fake identity provider.
type TestIssuer struct {
	server   *httptest.Server
	audience string

	mu          sync.Mutex
	signers     map[string]*jwtkit.RSASigner
	active      *jwtkit.RSASigner
	unavailable bool
	keySeq      int
	fetches     atomic.Int32
}

// NewTestIssuer starts an issuer whose audience equals its domain.
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("")
}

// NewTestIssuerWithAudience starts an issuer with a specific aud claim. An
// empty audience means the issuer's domain.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	ti := &TestIssuer{signers: map[string]*jwtkit.RSASigner{}}
	ti.Rotate()

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	ti.server = httptest.NewTLSServer(mux)
	ti.audience = audience
	if ti.audience == "" {
		ti.audience = ti.Domain()
	}
	return ti
}

// Domain is the host:port the issuer listens on, without a scheme.
func (ti *TestIssuer) Domain() string {
	return strings.TrimPrefix(ti.server.URL, "https://")
}

// URL is the issuer claim value, https://{domain}.
func (ti *TestIssuer) URL() string { return ti.server.URL }

func (ti *TestIssuer) Audience() string { return ti.audience }

// Client trusts the issuer's self-signed certificate.
func (ti *TestIssuer) Client() *http.Client { return ti.server.Client() }

// KeyCache returns a key cache pointed at this issuer.
func (ti *TestIssuer) KeyCache(opts ...keyset.Option) *keyset.Cache {
	opts = append([]keyset.Option{keyset.WithHTTPClient(ti.Client())}, opts...)
	return keyset.New(ti.Domain(), opts...)
}

// FetchCount reports how many times the JWKS document was requested.
func (ti *TestIssuer) FetchCount() int { return int(ti.fetches.Load()) }

// SetUnavailable makes the JWKS endpoint answer 503.
func (ti *TestIssuer) SetUnavailable(v bool) {
	ti.mu.Lock()
	ti.unavailable = v
	ti.mu.Unlock()
}

// Rotate adds a new signing key, makes it active and returns its kid. Older
// keys stay published until RetireKey is called.
func (ti *TestIssuer) Rotate() string {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.keySeq++
	kid := fmt.Sprintf("test-key-%d", ti.keySeq)
	signer, err := jwtkit.NewRSASigner(2048, kid)
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	ti.signers[kid] = signer
	ti.active = signer
	return kid
}

// RetireKey stops publishing kid.
func (ti *TestIssuer) RetireKey(kid string) {
	ti.mu.Lock()
	delete(ti.signers, kid)
	ti.mu.Unlock()
}

// ActiveKeyID is the kid new tokens are signed with.
func (ti *TestIssuer) ActiveKeyID() string {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.active.KID()
}

// Close shuts down the server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	ti.fetches.Add(1)
	ti.mu.Lock()
	if ti.unavailable {
		ti.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ks := jwtkit.JWKS{Keys: make([]jwtkit.JWK, 0, len(ti.signers))}
	for kid, s := range ti.signers {
		ks.Keys = append(ks.Keys, jwtkit.RSAPublicToJWK(s.PublicKey(), kid, s.Algorithm()))
	}
	ti.mu.Unlock()
	jwtkit.ServeJWKS(w, r, ks)
}

// Claims returns the default claim set for subject and email.
func (ti *TestIssuer) Claims(subject, email string) jwt.MapClaims {
	now := time.Now()
	c := jwt.MapClaims{
		"sub": subject,
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"sid": "sess_test",
	}
	if email != "" {
		c["email"] = email
	}
	return c
}

// CreateToken signs a valid session token with the active key.
func (ti *TestIssuer) CreateToken(subject, email string) string {
	return ti.CreateTokenWithClaims(subject, email, nil)
}

// CreateTokenWithClaims merges extra over the default claims. A nil value
// removes the claim.
func (ti *TestIssuer) CreateTokenWithClaims(subject, email string, extra map[string]any) string {
	claims := ti.Claims(subject, email)
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return ti.Sign(claims)
}

// Sign signs arbitrary claims with the active key.
func (ti *TestIssuer) Sign(claims jwt.MapClaims) string {
	ti.mu.Lock()
	s := ti.active
	ti.mu.Unlock()
	token, err := s.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// SignWithMethod signs claims with the active key's kid but another
// algorithm, e.g. jwt.SigningMethodRS512.
func (ti *TestIssuer) SignWithMethod(m jwt.SigningMethod, claims jwt.MapClaims) string {
	ti.mu.Lock()
	s := ti.active
	ti.mu.Unlock()
	token, err := s.SignWithMethod(m, claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// CreateTokenWithExpiry signs a token with a custom exp.
func (ti *TestIssuer) CreateTokenWithExpiry(subject, email string, expiry time.Time) string {
	return ti.CreateTokenWithClaims(subject, email, map[string]any{"exp": expiry.Unix()})
}

// CreateExpiredToken signs a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(subject, email string) string {
	return ti.CreateTokenWithExpiry(subject, email, time.Now().Add(-time.Hour))
}

// SignWebhook returns a signature header value for body.
func SignWebhook(body []byte, secret string, ts time.Time) string {
	return webhook.Sign(body, secret, ts)
}
