package keyset

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtkit "github.com/PaulFidika/userauth/jwt"
	"github.com/sirupsen/logrus"
)

type jwksServer struct {
	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	status  int
	body    []byte
	delay   time.Duration
	fetches atomic.Int32
	srv     *httptest.Server
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: map[string]*rsa.PublicKey{}, status: http.StatusOK}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		status, body, delay := s.status, s.body, s.delay
		doc := jwtkit.JWKS{Keys: []jwtkit.JWK{}}
		for kid, pub := range s.keys {
			doc.Keys = append(doc.Keys, jwtkit.RSAPublicToJWK(pub, kid, "RS256"))
		}
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		w.WriteHeader(status)
		if body != nil {
			_, _ = w.Write(body)
			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) add(t *testing.T, kid string) *rsa.PublicKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s.mu.Lock()
	s.keys[kid] = &k.PublicKey
	s.mu.Unlock()
	return &k.PublicKey
}

func (s *jwksServer) cache() *Cache {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New("unused.example.com", WithURL(s.srv.URL+"/.well-known/jwks.json"), WithLogger(l), WithTimeout(time.Second))
}

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"https://clerk.example.com/": "clerk.example.com",
		"http://clerk.example.com":   "clerk.example.com",
		"clerk.example.com//":        "clerk.example.com",
		" clerk.example.com ":        "clerk.example.com",
	}
	for in, want := range cases {
		if got := NormalizeDomain(in); got != want {
			t.Fatalf("NormalizeDomain(%q) = %q, want %q", in, got, want)
		}
	}
	if got := New("https://clerk.example.com/").URL(); got != "https://clerk.example.com/.well-known/jwks.json" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestGet_MissFetchesThenHits(t *testing.T) {
	s := newJWKSServer(t)
	pub := s.add(t, "k1")
	c := s.cache()

	k, err := c.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if k.KeyID != "k1" || k.Algorithm != "RS256" || k.Public.N.Cmp(pub.N) != 0 {
		t.Fatalf("unexpected key: %+v", k)
	}
	if _, err := c.Get(context.Background(), "k1"); err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if n := s.fetches.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestGet_RotationRefetchesOnce(t *testing.T) {
	s := newJWKSServer(t)
	s.add(t, "k1")
	c := s.cache()
	if _, err := c.Get(context.Background(), "k1"); err != nil {
		t.Fatalf("Get k1: %v", err)
	}

	s.add(t, "k2")
	if _, err := c.Get(context.Background(), "k2"); err != nil {
		t.Fatalf("Get k2: %v", err)
	}
	if n := s.fetches.Load(); n != 2 {
		t.Fatalf("expected exactly one refetch, got %d fetches", n)
	}
	if c.Len() != 2 {
		t.Fatalf("expected both keys cached, got %d", c.Len())
	}
}

func TestGet_UnknownKidAfterRefetch(t *testing.T) {
	s := newJWKSServer(t)
	s.add(t, "k1")
	c := s.cache()

	_, err := c.Get(context.Background(), "nope")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if n := s.fetches.Load(); n != 1 {
		t.Fatalf("expected one fetch per miss, got %d", n)
	}
}

func TestGet_Unavailable(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		s := newJWKSServer(t)
		s.mu.Lock()
		s.status = http.StatusServiceUnavailable
		s.mu.Unlock()
		_, err := s.cache().Get(context.Background(), "k1")
		if !errors.Is(err, ErrKeySetUnavailable) {
			t.Fatalf("expected ErrKeySetUnavailable, got %v", err)
		}
	})
	t.Run("malformed", func(t *testing.T) {
		s := newJWKSServer(t)
		s.mu.Lock()
		s.body = []byte(`{"keys": [not json`)
		s.mu.Unlock()
		_, err := s.cache().Get(context.Background(), "k1")
		if !errors.Is(err, ErrKeySetUnavailable) {
			t.Fatalf("expected ErrKeySetUnavailable, got %v", err)
		}
	})
	t.Run("timeout", func(t *testing.T) {
		s := newJWKSServer(t)
		s.add(t, "k1")
		s.mu.Lock()
		s.delay = 300 * time.Millisecond
		s.mu.Unlock()
		l := logrus.New()
		l.SetOutput(io.Discard)
		c := New("x", WithURL(s.srv.URL), WithLogger(l), WithTimeout(50*time.Millisecond))
		_, err := c.Get(context.Background(), "k1")
		if !errors.Is(err, ErrKeySetUnavailable) {
			t.Fatalf("expected ErrKeySetUnavailable, got %v", err)
		}
	})
}

func TestRefresh_FailureKeepsPreviousSet(t *testing.T) {
	s := newJWKSServer(t)
	s.add(t, "k1")
	c := s.cache()
	if _, err := c.Get(context.Background(), "k1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	s.mu.Lock()
	s.status = http.StatusInternalServerError
	s.mu.Unlock()
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if _, err := c.Get(context.Background(), "k1"); err != nil {
		t.Fatalf("cached key lost after failed refresh: %v", err)
	}
}

func TestParseDocument_SkipsForeignKeys(t *testing.T) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	good := jwtkit.RSAPublicToJWK(&k.PublicKey, "good", "RS256")
	other := jwtkit.RSAPublicToJWK(&k.PublicKey, "ps", "PS256")
	noKid := jwtkit.RSAPublicToJWK(&k.PublicKey, "", "RS256")
	body, _ := json.Marshal(jwtkit.JWKS{Keys: []jwtkit.JWK{good, other, noKid}})

	keys, err := parseDocument(body)
	if err != nil {
		t.Fatalf("parseDocument: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 usable key, got %d", len(keys))
	}
	if _, ok := keys["good"]; !ok {
		t.Fatalf("expected kid good")
	}
}

func TestGet_SkipsUndecodableEntries(t *testing.T) {
	s := newJWKSServer(t)
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	good, _ := json.Marshal(jwtkit.RSAPublicToJWK(&k.PublicKey, "k1", "RS256"))
	s.mu.Lock()
	s.body = []byte(`{"keys":[` + string(good) + `,{"kty":"weird","kid":"k2"},{"kty":"EC","kid":"k3","crv":"P-256"}]}`)
	s.mu.Unlock()

	c := s.cache()
	got, err := c.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Public.N.Cmp(k.PublicKey.N) != 0 {
		t.Fatalf("unexpected key returned")
	}
	if _, err := c.Get(context.Background(), "k2"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for undecodable entry, got %v", err)
	}
}
