package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/PaulFidika/userauth/adapters/ginutil"
	"github.com/PaulFidika/userauth/webhook"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

func HandleClerkWebhookPOST(p *webhook.Processor, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLClerkWebhook) {
			ginutil.TooMany(c)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			ginutil.BadRequest(c, "Invalid payload")
			return
		}
		status, err := p.Handle(c.Request.Context(), webhook.Delivery{
			ID:        c.GetHeader("svix-id"),
			Timestamp: c.GetHeader("svix-timestamp"),
			Signature: c.GetHeader("svix-signature"),
			Body:      body,
		})
		switch {
		case errors.Is(err, webhook.ErrWebhookAuthFailed):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		case errors.Is(err, webhook.ErrMalformedWebhookPayload):
			ginutil.BadRequest(c, "Invalid payload")
			return
		case err != nil:
			logrus.WithError(err).WithField("delivery_id", c.GetHeader("svix-id")).Error("clerk webhook failed")
			ginutil.ServerErr(c, "Webhook processing failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "result": string(status)})
	}
}
