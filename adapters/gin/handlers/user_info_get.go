package handlers

import (
	"errors"
	"net/http"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/gin-gonic/gin"
)

func HandleUserInfoGET(svc *core.Service, cookies CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := LocalAccessToken(c, cookies)
		if tok == "" {
			ginutil.Unauthorized(c, "Authentication credentials were not provided.")
			return
		}
		u, err := svc.AuthenticateAccess(c.Request.Context(), tok)
		if err != nil {
			if errors.Is(err, core.ErrInvalidToken) || errors.Is(err, core.ErrAccountInactive) {
				ginutil.Unauthorized(c, "Token is invalid or expired")
				return
			}
			ginutil.ServerErr(c, "internal_error")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "User information retrieved successfully",
			"user":    NewUserJSON(u),
		})
	}
}
