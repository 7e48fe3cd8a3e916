package handlers

import (
	"net/http"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	"github.com/PaulFidika/userauth/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func HandleClerkUserInfoGET(b *session.Boundary) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := b.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if msg, ok := ClerkAuthFailure(err); ok {
				ginutil.Unauthorized(c, msg)
				return
			}
			logrus.WithError(err).Error("clerk user-info failed")
			ginutil.ServerErr(c, "internal_error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": NewUserJSON(res.User)})
	}
}
