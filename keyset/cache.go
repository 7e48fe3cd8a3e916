// Package keyset caches an identity provider's RSA signing keys by key id and
// refetches the provider's JWKS document when an unknown key id is requested.
package keyset

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultFetchTimeout bounds a single JWKS request.
	DefaultFetchTimeout = 5 * time.Second
	// AlgorithmRS256 is the only algorithm cached keys are used with.
	AlgorithmRS256 = "RS256"

	maxDocumentBytes = 1 << 20
	jwksPath         = "/.well-known/jwks.json"
	tracerName       = "github.com/PaulFidika/userauth/keyset"
)

var (
	// ErrKeySetUnavailable covers transport failures, timeouts, non-200
	// responses and unparsable documents.
	ErrKeySetUnavailable = errors.New("keyset: key set unavailable")
	// ErrKeyNotFound is returned when kid is still unknown after a refetch.
	ErrKeyNotFound = errors.New("keyset: key not found")
)

// SigningKey is one RSA verification key published by the provider.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Public    *rsa.PublicKey
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache is safe for concurrent use. Concurrent misses may each trigger a
// fetch; the last completed fetch wins.
type Cache struct {
	url     string
	client  HTTPClient
	timeout time.Duration
	log     logrus.FieldLogger
	tracer  trace.Tracer

	mu   sync.RWMutex
	keys map[string]SigningKey
}

type Option func(*Cache)

func WithHTTPClient(c HTTPClient) Option {
	return func(k *Cache) {
		if c != nil {
			k.client = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(k *Cache) {
		if d > 0 {
			k.timeout = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(k *Cache) {
		if l != nil {
			k.log = l
		}
	}
}

// WithURL overrides the derived JWKS URL.
func WithURL(u string) Option {
	return func(k *Cache) {
		if u != "" {
			k.url = u
		}
	}
}

// New creates a cache for the provider frontend domain. Scheme prefixes and
// trailing slashes are stripped; keys are fetched from
// https://{domain}/.well-known/jwks.json.
func New(domain string, opts ...Option) *Cache {
	c := &Cache{
		url:     "https://" + NormalizeDomain(domain) + jwksPath,
		client:  http.DefaultClient,
		timeout: DefaultFetchTimeout,
		log:     logrus.StandardLogger(),
		tracer:  otel.Tracer(tracerName),
		keys:    map[string]SigningKey{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NormalizeDomain strips an http(s) scheme and trailing slashes.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}

// URL returns the JWKS document location.
func (c *Cache) URL() string { return c.url }

// Get returns the key for kid, fetching the document at most once per call
// when kid is not cached.
func (c *Cache) Get(ctx context.Context, kid string) (SigningKey, error) {
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return SigningKey{}, err
	}
	if k, ok := c.lookup(kid); ok {
		return k, nil
	}
	return SigningKey{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh fetches the document and replaces the cached set. A failed fetch
// leaves the previous set in place.
func (c *Cache) Refresh(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "keyset.Refresh", trace.WithAttributes(attribute.String("jwks.url", c.url)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	keys, err := c.fetch(ctx)
	if err != nil {
		c.log.WithError(err).WithField("url", c.url).Warn("keyset: fetch failed")
		return err
	}
	c.mu.Lock()
	c.keys = keys
	c.mu.Unlock()
	span.SetAttributes(attribute.Int("jwks.keys", len(keys)))
	c.log.WithFields(logrus.Fields{"url": c.url, "keys": len(keys)}).Debug("keyset: refreshed")
	return nil
}

// Len reports the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *Cache) lookup(kid string) (SigningKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok
}

func (c *Cache) fetch(ctx context.Context) (map[string]SigningKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrKeySetUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrKeySetUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrKeySetUnavailable, err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("%w: document too large", ErrKeySetUnavailable)
	}
	return parseDocument(body)
}

type document struct {
	Keys []json.RawMessage `json:"keys"`
}

// parseDocument keeps the RSA keys of a JWKS document. Entries that do not
// decode, keys without a kid, keys of other types and keys whose alg is set
// to something other than RS256 are skipped.
func parseDocument(body []byte) (map[string]SigningKey, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrKeySetUnavailable, err)
	}
	out := make(map[string]SigningKey, len(doc.Keys))
	for _, entry := range doc.Keys {
		key, err := jwk.ParseKey(entry)
		if err != nil {
			continue
		}
		kid := key.KeyID()
		if kid == "" || key.KeyType() != jwa.RSA {
			continue
		}
		if alg := key.Algorithm().String(); alg != "" && alg != AlgorithmRS256 {
			continue
		}
		pub, err := rsaPublic(key)
		if err != nil {
			continue
		}
		out[kid] = SigningKey{KeyID: kid, Algorithm: AlgorithmRS256, Public: pub}
	}
	return out, nil
}

func rsaPublic(key jwk.Key) (*rsa.PublicKey, error) {
	pk, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	var raw interface{}
	if err := pk.Raw(&raw); err != nil {
		return nil, err
	}
	switch k := raw.(type) {
	case *rsa.PublicKey:
		return k, nil
	case rsa.PublicKey:
		return &k, nil
	default:
		return nil, fmt.Errorf("keyset: unexpected key type %T", raw)
	}
}
