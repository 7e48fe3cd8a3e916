package authhttp

import (
	"net/http"

	jwtkit "github.com/PaulFidika/userauth/jwt"
)

// JWKSHandler serves the public JWKS document for the session signing keys.
func JWKSHandler(src jwtkit.KeySource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, jwtkit.PublicJWKS(src))
	})
}

// HealthHandler reports liveness.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
