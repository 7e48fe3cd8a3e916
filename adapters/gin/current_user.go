package authgin

import (
	"errors"

	"github.com/PaulFidika/userauth/adapters/gin/handlers"
	"github.com/PaulFidika/userauth/adapters/ginutil"
	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/identity"
	"github.com/PaulFidika/userauth/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by the middleware.
const (
	KeyUser   = "auth.user"
	KeyUserID = "auth.user_id"
	KeySource = "auth.source"
)

// UserView is the caller as seen by downstream handlers.
type UserView struct {
	handlers.UserJSON
	// Source is "clerk" or "local".
	Source string `json:"source"`
}

// CurrentUser returns the user stored by RequireClerkSession,
// OptionalClerkSession or RequireLocalSession.
func CurrentUser(c *gin.Context) (UserView, bool) {
	v, ok := c.Get(KeyUser)
	if !ok {
		return UserView{}, false
	}
	u, ok := v.(*identity.User)
	if !ok || u == nil {
		return UserView{}, false
	}
	return UserView{UserJSON: handlers.NewUserJSON(u), Source: c.GetString(KeySource)}, true
}

func setUser(c *gin.Context, u *identity.User, source string) {
	c.Set(KeyUser, u)
	c.Set(KeyUserID, u.ID.String())
	c.Set(KeySource, source)
}

// RequireClerkSession rejects requests without a valid identity provider
// session.
func RequireClerkSession(b *session.Boundary) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := b.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if msg, ok := handlers.ClerkAuthFailure(err); ok {
				ginutil.Unauthorized(c, msg)
				return
			}
			logrus.WithError(err).Error("authgin: session authentication failed")
			ginutil.ServerErr(c, "internal_error")
			return
		}
		setUser(c, res.User, "clerk")
		c.Next()
	}
}

// OptionalClerkSession attaches the user when a valid session is present and
// lets anonymous requests through. Invalid credentials are still rejected.
func OptionalClerkSession(b *session.Boundary) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := b.Optional(c.Request.Context(), c.Request)
		if err != nil {
			if msg, ok := handlers.ClerkAuthFailure(err); ok {
				ginutil.Unauthorized(c, msg)
				return
			}
			ginutil.ServerErr(c, "internal_error")
			return
		}
		if res != nil {
			setUser(c, res.User, "clerk")
		}
		c.Next()
	}
}

// RequireLocalSession accepts first-party access tokens.
func RequireLocalSession(svc *core.Service, cookies handlers.CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := handlers.LocalAccessToken(c, cookies)
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
		setUser(c, u, "local")
		c.Next()
	}
}
