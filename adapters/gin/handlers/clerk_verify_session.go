package handlers

import (
	"net/http"

	"github.com/PaulFidika/userauth/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleClerkVerifySession serves GET and POST /clerk/verify-session/.
func HandleClerkVerifySession(b *session.Boundary) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := b.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if _, ok := ClerkAuthFailure(err); ok {
				c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "message": "No valid Clerk session found"})
				return
			}
			logrus.WithError(err).Error("clerk verify-session failed")
			c.JSON(http.StatusInternalServerError, gin.H{"authenticated": false, "message": "internal_error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": NewUserJSON(res.User)})
	}
}
