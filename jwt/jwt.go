package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer issues RS256 tokens under a single key id.
type Signer interface {
	Algorithm() string
	KID() string
	Sign(ctx context.Context, claims jwt.MapClaims) (string, error)
}

// RSASigner signs with an in-process RSA private key.
type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

// NewRSASigner generates a fresh key. bits defaults to 2048.
func NewRSASigner(bits int, kid string) (*RSASigner, error) {
	if bits == 0 {
		bits = 2048
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: k, kid: kid}, nil
}

// NewRSASignerFromKey wraps an existing key.
func NewRSASignerFromKey(kid string, key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key, kid: kid}
}

func (s *RSASigner) Algorithm() string           { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) KID() string                 { return s.kid }
func (s *RSASigner) PublicKey() *rsa.PublicKey   { return &s.key.PublicKey }
func (s *RSASigner) PrivateKey() *rsa.PrivateKey { return s.key }

func (s *RSASigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	return s.SignWithMethod(jwt.SigningMethodRS256, claims)
}

// SignWithMethod signs with another RSA method under the same kid. Tests use
// it to produce tokens with a disallowed algorithm.
func (s *RSASigner) SignWithMethod(m jwt.SigningMethod, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(m, claims)
	if s.kid != "" {
		token.Header["kid"] = s.kid
	}
	return token.SignedString(s.key)
}

// PEM returns the PKCS#1 PEM encoding of the private key.
func (s *RSASigner) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(s.key)})
}

// NewRSASignerFromPEM accepts PKCS#1 or PKCS#8 RSA private keys.
func NewRSASignerFromPEM(kid string, pemBytes []byte) (*RSASigner, error) {
	if len(pemBytes) == 0 {
		return nil, errors.New("jwtkit: empty RSA private key pem")
	}
	blk, _ := pem.Decode(pemBytes)
	if blk == nil {
		return nil, errors.New("jwtkit: failed to decode RSA private key pem")
	}
	switch blk.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(blk.Bytes)
		if err != nil {
			return nil, err
		}
		return &RSASigner{key: k, kid: kid}, nil
	default:
		key, err := x509.ParsePKCS8PrivateKey(blk.Bytes)
		if err != nil {
			return nil, err
		}
		k, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("jwtkit: pkcs8 key is %T, not RSA", key)
		}
		return &RSASigner{key: k, kid: kid}, nil
	}
}
