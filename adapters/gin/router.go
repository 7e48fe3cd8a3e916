// Package authgin mounts the auth routes on a gin router and provides
// middleware for downstream handlers.
package authgin

import (
	"github.com/PaulFidika/userauth/adapters/gin/handlers"
	"github.com/PaulFidika/userauth/adapters/ginutil"
	authhttp "github.com/PaulFidika/userauth/adapters/http"
	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/session"
	"github.com/PaulFidika/userauth/webhook"
	"github.com/gin-gonic/gin"
)

// Deps are the services behind the routes. Nil services leave their routes
// unmounted.
type Deps struct {
	Boundary *session.Boundary
	Webhooks *webhook.Processor
	Local    *core.Service
	Limiter  ginutil.RateLimiter
	Cookies  handlers.CookieConfig
}

// Register mounts every route on r.
func Register(r gin.IRouter, d Deps) {
	r.GET("/health", gin.WrapH(authhttp.HealthHandler()))

	clerk := r.Group("/clerk")
	if d.Boundary != nil {
		verify := handlers.HandleClerkVerifySession(d.Boundary)
		clerk.GET("/verify-session/", verify)
		clerk.POST("/verify-session/", verify)
		clerk.GET("/user-info/", handlers.HandleClerkUserInfoGET(d.Boundary))
	}
	if d.Webhooks != nil {
		clerk.POST("/webhook/", handlers.HandleClerkWebhookPOST(d.Webhooks, d.Limiter))
	}

	if d.Local == nil {
		return
	}
	r.GET("/.well-known/jwks.json", gin.WrapH(authhttp.JWKSHandler(d.Local.Keys())))
	auth := r.Group("/auth")
	auth.POST("/sign-in/", handlers.HandleSignInPOST(d.Local, d.Limiter, d.Cookies))
	auth.POST("/sign-up/", handlers.HandleSignUpPOST(d.Local, d.Limiter))
	auth.POST("/verify-otp/", handlers.HandleVerifyOTPPOST(d.Local, d.Limiter))
	auth.POST("/resend-otp/", handlers.HandleResendOTPPOST(d.Local, d.Limiter))
	auth.POST("/refresh-token/", handlers.HandleRefreshTokenPOST(d.Local, d.Limiter, d.Cookies))
	auth.GET("/user-info/", handlers.HandleUserInfoGET(d.Local, d.Cookies))
}
