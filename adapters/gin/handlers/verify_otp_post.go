package handlers

import (
	"net/http"
	"strings"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/gin-gonic/gin"
)

func HandleVerifyOTPPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	type verifyReq struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAuthVerifyOTP) {
			ginutil.TooMany(c)
			return
		}
		var req verifyReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
			ginutil.BadRequest(c, "Email and OTP are required.")
			return
		}
		u, err := svc.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
		if err != nil {
			e := mapLocalError(err)
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.message})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Email verified successfully. Your account is now active.",
			"email":   u.Email,
		})
	}
}
