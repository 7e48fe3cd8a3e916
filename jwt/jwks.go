package jwtkit

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
)

// JWK holds the public fields of an RSA signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// RSAPublicToJWK converts an RSA public key to a JWK.
func RSAPublicToJWK(pub *rsa.PublicKey, kid, alg string) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		Alg: alg,
		N:   base64URLUint(pub.N),
		E:   base64URLUint(big.NewInt(int64(pub.E))),
	}
}

// ServeJWKS writes ks with an ETag derived from its encoding and honours
// If-None-Match.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks JWKS) {
	b, err := json.Marshal(ks)
	if err != nil {
		http.Error(w, "jwks encode failed", http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(b)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func base64URLUint(i *big.Int) string {
	// big.Int.Bytes is already minimal big-endian.
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}
