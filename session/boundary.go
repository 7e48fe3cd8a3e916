// Package session authenticates inbound requests carrying an identity
// provider session token and resolves them to a local user.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/PaulFidika/userauth/identity"
	"github.com/sirupsen/logrus"
)

// ErrNoCredential means the request carried neither a bearer token nor a
// session cookie.
var ErrNoCredential = errors.New("session: no credential")

// Cookie names checked, in order, when no Authorization header is present.
var DefaultCookieNames = []string{"clerk_session", "__session"}

// TokenVerifier is satisfied by *oidckit.TokenVerifier.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identity.ExternalClaims, error)
}

// Result is an authenticated request.
type Result struct {
	User   *identity.User
	Token  string
	Claims *identity.ExternalClaims
}

// Boundary verifies the request's session token and reconciles its identity.
type Boundary struct {
	verifier    TokenVerifier
	reconciler  *identity.Reconciler
	cookieNames []string
	log         logrus.FieldLogger
}

type Option func(*Boundary)

func WithCookieNames(names ...string) Option {
	return func(b *Boundary) {
		if len(names) > 0 {
			b.cookieNames = names
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Boundary) {
		if l != nil {
			b.log = l
		}
	}
}

func NewBoundary(v TokenVerifier, r *identity.Reconciler, opts ...Option) *Boundary {
	b := &Boundary{verifier: v, reconciler: r, cookieNames: DefaultCookieNames, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Credential extracts the raw session token. The Authorization bearer token
// wins over cookies.
func (b *Boundary) Credential(r *http.Request) (string, bool) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			if tok := strings.TrimSpace(h[7:]); tok != "" {
				return tok, true
			}
		}
	}
	for _, name := range b.cookieNames {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Authenticate verifies the request's token and returns the local user.
// Verifier and reconciler errors are returned unchanged.
func (b *Boundary) Authenticate(ctx context.Context, r *http.Request) (*Result, error) {
	raw, ok := b.Credential(r)
	if !ok {
		return nil, ErrNoCredential
	}
	claims, err := b.verifier.Verify(ctx, raw)
	if err != nil {
		b.log.WithError(err).Debug("session: token rejected")
		return nil, err
	}
	res, err := b.reconciler.ReconcileWithRetry(ctx, *claims)
	if errors.Is(err, identity.ErrDuplicateIdentity) {
		b.log.WithField("external_id", claims.Subject).Warn("session: asserted identity conflicts with another local user")
		return nil, err
	}
	if err != nil {
		b.log.WithError(err).WithField("external_id", claims.Subject).Warn("session: reconcile failed")
		return nil, err
	}
	return &Result{User: res.User, Token: raw, Claims: claims}, nil
}

// Optional is Authenticate for routes that allow anonymous callers: a
// request without credentials yields (nil, nil).
func (b *Boundary) Optional(ctx context.Context, r *http.Request) (*Result, error) {
	res, err := b.Authenticate(ctx, r)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil
	}
	return res, err
}
