package handlers

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/gin-gonic/gin"
)

// HandleRefreshTokenPOST rotates the refresh token taken from the body, or
// from the refresh cookie when the body has none.
func HandleRefreshTokenPOST(svc *core.Service, rl ginutil.RateLimiter, cookies CookieConfig) gin.HandlerFunc {
	type refreshReq struct {
		Refresh string `json:"refresh"`
	}
	cookies = cookies.withDefaults()
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAuthRefreshToken) {
			ginutil.TooMany(c)
			return
		}
		var req refreshReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				ginutil.BadRequest(c, "invalid_request")
				return
			}
		}
		tok := strings.TrimSpace(req.Refresh)
		if tok == "" {
			tok, _ = c.Cookie(cookies.RefreshName)
		}
		if tok == "" {
			ginutil.BadRequest(c, "Refresh token is required.")
			return
		}
		u, pair, err := svc.Refresh(c.Request.Context(), tok)
		if err != nil {
			e := mapLocalError(err)
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.message})
			return
		}
		cookies.setPair(c, pair)
		c.JSON(http.StatusOK, tokenResponse(pair, u))
	}
}
