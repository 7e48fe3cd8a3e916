package handlers

import (
	"net/http"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/gin-gonic/gin"
)

func HandleSignUpPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	type signUpReq struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		FirstName       string `json:"firstName"`
		LastName        string `json:"lastName"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAuthSignUp) {
			ginutil.TooMany(c)
			return
		}
		var req signUpReq
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		u, err := svc.SignUp(c.Request.Context(), core.SignUpInput{
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			GivenName:       req.FirstName,
			FamilyName:      req.LastName,
		})
		if err != nil {
			e := mapLocalError(err)
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.message})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "User created successfully. Please check your email for OTP verification.",
			"email":   u.Email,
		})
	}
}
