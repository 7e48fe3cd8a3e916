package handlers

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/gin-gonic/gin"
)

func HandleSignInPOST(svc *core.Service, rl ginutil.RateLimiter, cookies CookieConfig) gin.HandlerFunc {
	type signInReq struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAuthSignIn) {
			ginutil.TooMany(c)
			return
		}
		var req signInReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
			ginutil.BadRequest(c, "Email and password are required.")
			return
		}
		meta := core.SignInMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		u, pair, err := svc.SignIn(c.Request.Context(), req.Email, req.Password, meta)
		if err != nil {
			e := mapLocalError(err)
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.message})
			return
		}
		cookies.setPair(c, pair)
		c.JSON(http.StatusOK, tokenResponse(pair, u))
	}
}
