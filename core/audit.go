package core

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SignInMeta describes the client of a sign-in request.
type SignInMeta struct {
	IP        string
	UserAgent string
}

// AuthEventLogger records authentication events. Implementations should be
// best-effort and must not block the request.
type AuthEventLogger interface {
	LogSignIn(ctx context.Context, userID, method string, meta SignInMeta) error
}

// LogEventLogger writes events to a logrus logger.
type LogEventLogger struct {
	Log logrus.FieldLogger
}

func (l LogEventLogger) LogSignIn(_ context.Context, userID, method string, meta SignInMeta) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"user_id":    userID,
		"method":     method,
		"ip":         meta.IP,
		"user_agent": meta.UserAgent,
	}).Info("auth: sign-in")
	return nil
}
