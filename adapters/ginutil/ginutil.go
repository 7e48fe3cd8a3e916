// Package ginutil holds response and throttling helpers shared by the gin
// handlers.
package ginutil

import (
	"net/http"

	"github.com/PaulFidika/userauth/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimiter is satisfied by the memory and redis limiters.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Bucket names used by the handlers.
const (
	RLAuthSignIn       = ratelimit.BucketSignIn
	RLAuthSignUp       = ratelimit.BucketSignUp
	RLAuthVerifyOTP    = ratelimit.BucketVerifyOTP
	RLAuthResendOTP    = ratelimit.BucketResendOTP
	RLAuthRefreshToken = ratelimit.BucketRefresh
	RLClerkWebhook     = ratelimit.BucketClerkWebhook
)

// AllowNamed applies bucket to the caller's IP. A nil limiter allows
// everything; limiter errors fail open and are logged.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		logrus.WithError(err).WithField("bucket", bucket).Warn("ginutil: rate limiter unavailable")
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "message": msg})
}

func NotFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": msg})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func ServerErr(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
}
