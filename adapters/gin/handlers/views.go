package handlers

import (
	"net/http"
	"strings"
	"time"

	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/identity"
	"github.com/gin-gonic/gin"
)

// UserJSON is the public user representation.
type UserJSON struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	IsSuperuser     bool   `json:"isSuperuser"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

func NewUserJSON(u *identity.User) UserJSON {
	if u == nil {
		return UserJSON{}
	}
	return UserJSON{
		ID:              u.ID.String(),
		Email:           u.Email,
		FirstName:       u.GivenName,
		LastName:        u.FamilyName,
		IsSuperuser:     u.IsSuperuser,
		IsEmailVerified: u.IsEmailVerified,
	}
}

// CookieConfig names the first-party token cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	Secure      bool
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{AccessName: "access", RefreshName: "refresh", Secure: true}
}

func (cc CookieConfig) withDefaults() CookieConfig {
	if cc.AccessName == "" {
		cc.AccessName = "access"
	}
	if cc.RefreshName == "" {
		cc.RefreshName = "refresh"
	}
	return cc
}

func (cc CookieConfig) setPair(c *gin.Context, pair *core.TokenPair) {
	cc = cc.withDefaults()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cc.AccessName, pair.Access.Token, maxAge(pair.Access.ExpiresAt), "/", cc.Domain, cc.Secure, true)
	c.SetCookie(cc.RefreshName, pair.Refresh.Token, maxAge(pair.Refresh.ExpiresAt), "/", cc.Domain, cc.Secure, true)
}

func maxAge(exp time.Time) int {
	s := int(time.Until(exp).Seconds())
	if s < 1 {
		return 1
	}
	return s
}

func tokenResponse(pair *core.TokenPair, u *identity.User) gin.H {
	return gin.H{
		"access":  pair.Access.Token,
		"refresh": pair.Refresh.Token,
		"user":    NewUserJSON(u),
	}
}

// LocalAccessToken reads "Authorization: JWT <token>" (Bearer is accepted
// too), then the access cookie.
func LocalAccessToken(c *gin.Context, cookies CookieConfig) string {
	cookieName := cookies.withDefaults().AccessName
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && (strings.EqualFold(scheme, "JWT") || strings.EqualFold(scheme, "Bearer")) {
			if tok = strings.TrimSpace(tok); tok != "" {
				return tok
			}
		}
	}
	if v, err := c.Cookie(cookieName); err == nil {
		return v
	}
	return ""
}
