package oidckit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulFidika/userauth/identity"
	"github.com/PaulFidika/userauth/keyset"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrMalformedToken   = errors.New("oidc: malformed token")
	ErrMissingKeyID     = errors.New("oidc: token header has no kid")
	ErrKeyLookupFailed  = errors.New("oidc: signing key lookup failed")
	ErrSignatureInvalid = errors.New("oidc: token signature invalid")
	ErrTokenExpired     = errors.New("oidc: token expired")
	ErrClaimsInvalid    = errors.New("oidc: token claims invalid")
)

// KeyResolver returns the verification key for a kid. *keyset.Cache
// implements it.
type KeyResolver interface {
	Get(ctx context.Context, kid string) (keyset.SigningKey, error)
}

// Config holds the expected claim values.
type Config struct {
	Issuer string
	// Audience is compared against the aud claim; empty disables the check.
	Audience string
	// AuthorizedParties, when non-empty, restricts the azp claim if present.
	AuthorizedParties []string
	Leeway            time.Duration
	Now               func() time.Time
}

// ConfigForDomain derives issuer https://{domain} and audience {domain}.
func ConfigForDomain(domain string) Config {
	d := keyset.NormalizeDomain(domain)
	return Config{Issuer: "https://" + d, Audience: d}
}

// TokenVerifier verifies RS256 session tokens issued by the identity provider.
type TokenVerifier struct {
	keys   KeyResolver
	cfg    Config
	tracer trace.Tracer
}

func NewTokenVerifier(keys KeyResolver, cfg Config) *TokenVerifier {
	return &TokenVerifier{keys: keys, cfg: cfg, tracer: otel.Tracer("github.com/PaulFidika/userauth/oidc")}
}

// Verify checks header, signature and claims, in that order, and returns
// the asserted identity.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (claims *identity.ExternalClaims, err error) {
	ctx, span := v.tracer.Start(ctx, "oidckit.Verify")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	mc := jwt.MapClaims{}
	_, perr := jwt.ParseWithClaims(raw, mc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKeyID
		}
		span.SetAttributes(attribute.String("jwt.kid", kid))
		k, err := v.keys.Get(ctx, kid)
		if err != nil {
			return nil, err
		}
		return k.Public, nil
	}, v.parserOptions()...)
	if perr != nil {
		return nil, classify(perr)
	}

	out := extractClaims(mc)
	if out.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrClaimsInvalid)
	}
	if err := v.checkAuthorizedParty(mc); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("jwt.sub", out.Subject))
	return out, nil
}

func (v *TokenVerifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.cfg.Leeway))
	}
	if v.cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.cfg.Now))
	}
	return opts
}

func (v *TokenVerifier) checkAuthorizedParty(mc jwt.MapClaims) error {
	if len(v.cfg.AuthorizedParties) == 0 {
		return nil
	}
	azp, _ := mc["azp"].(string)
	if azp == "" {
		return nil
	}
	for _, p := range v.cfg.AuthorizedParties {
		if p == azp {
			return nil
		}
	}
	return fmt.Errorf("%w: azp %q not authorized", ErrClaimsInvalid, azp)
}

// classify maps jwt library errors onto this package's sentinels. The
// original error stays in the chain.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, ErrMissingKeyID):
		return ErrMissingKeyID
	case errors.Is(err, keyset.ErrKeySetUnavailable), errors.Is(err, keyset.ErrKeyNotFound):
		return fmt.Errorf("%w: %w", ErrKeyLookupFailed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrKeyLookupFailed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %w", ErrClaimsInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
}

func extractClaims(mc jwt.MapClaims) *identity.ExternalClaims {
	out := &identity.ExternalClaims{
		Subject:    stringClaim(mc, "sub"),
		Email:      stringClaim(mc, "email", "primary_email_address"),
		GivenName:  stringClaim(mc, "first_name", "given_name"),
		FamilyName: stringClaim(mc, "last_name", "family_name"),
		Issuer:     stringClaim(mc, "iss"),
	}
	if aud, err := mc.GetAudience(); err == nil {
		out.Audience = aud
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.Expiry = exp.Time
	}
	switch ev := mc["email_verified"].(type) {
	case bool:
		out.EmailVerified = &ev
	case string:
		if strings.EqualFold(ev, "true") {
			b := true
			out.EmailVerified = &b
		} else if strings.EqualFold(ev, "false") {
			b := false
			out.EmailVerified = &b
		}
	}
	return out
}

// stringClaim returns the first non-empty string value among names.
func stringClaim(mc jwt.MapClaims, names ...string) string {
	for _, n := range names {
		if s, ok := mc[n].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
