package jwtkit

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// KeySource provides the active signer and every public key that tokens may
// still be verified against.
type KeySource interface {
	ActiveSigner() Signer
	PublicKeys() map[string]*rsa.PublicKey
}

// StaticKeySource is a fixed in-memory key source.
type StaticKeySource struct {
	Active Signer
	Pubs   map[string]*rsa.PublicKey
}

func (s StaticKeySource) ActiveSigner() Signer                  { return s.Active }
func (s StaticKeySource) PublicKeys() map[string]*rsa.PublicKey { return s.Pubs }

// NewStaticKeySource wraps a single signer.
func NewStaticKeySource(s *RSASigner) StaticKeySource {
	return StaticKeySource{Active: s, Pubs: map[string]*rsa.PublicKey{s.KID(): s.PublicKey()}}
}

// KeyConfig selects where signing keys come from.
type KeyConfig struct {
	// KeyID and PrivateKeyPEM name the active key. Both or neither.
	KeyID         string
	PrivateKeyPEM string
	// PublicKeysJSON is an optional {"kid": "PEM"} map of retired keys that
	// still verify.
	PublicKeysJSON string
	// DevKeysDir holds generated development keys; defaults to .runtime/userauth.
	DevKeysDir string
	// Production refuses to generate keys.
	Production bool
	Logger     logrus.FieldLogger
}

const (
	defaultDevKeysDir = ".runtime/userauth"
	privateKeyFile    = "private.pem"
	keyIDFile         = "kid"
)

// NewAutoKeySource loads the configured key, or outside production reuses
// or generates a development key persisted under DevKeysDir.
func NewAutoKeySource(cfg KeyConfig) (KeySource, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	kid := strings.TrimSpace(cfg.KeyID)
	pemStr := strings.TrimSpace(cfg.PrivateKeyPEM)
	switch {
	case kid != "" && pemStr != "":
		signer, err := NewRSASignerFromPEM(kid, []byte(pemStr))
		if err != nil {
			return nil, fmt.Errorf("jwtkit: parse session private key: %w", err)
		}
		src := NewStaticKeySource(signer)
		if err := addPublicKeys(src.Pubs, cfg.PublicKeysJSON, log); err != nil {
			return nil, err
		}
		return src, nil
	case kid != "" || pemStr != "":
		return nil, errors.New("jwtkit: session key id and private key must be set together")
	}
	if cfg.Production {
		return nil, errors.New("jwtkit: no session signing key configured and generation is disabled in production")
	}
	dir := cfg.DevKeysDir
	if dir == "" {
		dir = defaultDevKeysDir
	}
	if signer, ok := loadDevKey(dir); ok {
		return NewStaticKeySource(signer), nil
	}
	signer, err := NewRSASigner(2048, fmt.Sprintf("dev-%d", time.Now().Unix()))
	if err != nil {
		return nil, fmt.Errorf("jwtkit: generate development key: %w", err)
	}
	if err := persistDevKey(dir, signer); err != nil {
		log.WithError(err).Warn("jwtkit: could not persist development key")
	}
	return NewStaticKeySource(signer), nil
}

func addPublicKeys(dst map[string]*rsa.PublicKey, raw string, log logrus.FieldLogger) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("jwtkit: parse public keys json: %w", err)
	}
	for kid, p := range m {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(p))
		if err != nil {
			log.WithError(err).WithField("kid", kid).Warn("jwtkit: skipping unparsable public key")
			continue
		}
		dst[kid] = pub
	}
	return nil
}

func loadDevKey(dir string) (*RSASigner, bool) {
	pemBytes, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, false
	}
	kid := "dev"
	if b, err := os.ReadFile(filepath.Join(dir, keyIDFile)); err == nil {
		if k := strings.TrimSpace(string(b)); k != "" {
			kid = k
		}
	}
	signer, err := NewRSASignerFromPEM(kid, pemBytes)
	if err != nil {
		return nil, false
	}
	return signer, true
}

func persistDevKey(dir string, signer *RSASigner) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), signer.PEM(), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, keyIDFile), []byte(signer.KID()), 0o600)
}

// PublicJWKS renders every public key of src, sorted by kid.
func PublicJWKS(src KeySource) JWKS {
	pubs := src.PublicKeys()
	kids := make([]string, 0, len(pubs))
	for kid := range pubs {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := JWKS{Keys: make([]JWK, 0, len(kids))}
	for _, kid := range kids {
		out.Keys = append(out.Keys, RSAPublicToJWK(pubs[kid], kid, jwt.SigningMethodRS256.Alg()))
	}
	return out
}
