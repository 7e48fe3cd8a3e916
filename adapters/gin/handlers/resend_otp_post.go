package handlers

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/identity"
	"github.com/gin-gonic/gin"
)

func HandleResendOTPPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	type resendReq struct {
		Email string `json:"email"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAuthResendOTP) {
			ginutil.TooMany(c)
			return
		}
		var req resendReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			ginutil.BadRequest(c, "Email is required.")
			return
		}
		if err := svc.ResendOTP(c.Request.Context(), req.Email); err != nil {
			e := mapLocalError(err)
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OTP resent successfully", "email": identity.NormalizeEmail(req.Email)})
	}
}
