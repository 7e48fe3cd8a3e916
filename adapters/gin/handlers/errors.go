package handlers

import (
	"errors"
	"net/http"

	core "github.com/PaulFidika/userauth/core"
	"github.com/PaulFidika/userauth/identity"
	oidckit "github.com/PaulFidika/userauth/oidc"
	"github.com/PaulFidika/userauth/session"
)

// ClerkAuthFailure reports whether err means the caller is not authenticated
// and returns a message safe to show them.
func ClerkAuthFailure(err error) (string, bool) {
	switch {
	case errors.Is(err, session.ErrNoCredential):
		return "No token provided", true
	case errors.Is(err, oidckit.ErrTokenExpired):
		return "Token has expired", true
	case errors.Is(err, oidckit.ErrMalformedToken), errors.Is(err, oidckit.ErrMissingKeyID):
		return "Malformed token", true
	case errors.Is(err, oidckit.ErrKeyLookupFailed):
		return "Unable to find signing key", true
	case errors.Is(err, oidckit.ErrSignatureInvalid):
		return "Invalid token signature", true
	case errors.Is(err, oidckit.ErrClaimsInvalid):
		return "Invalid token claims", true
	case errors.Is(err, identity.ErrEmailRequired):
		return "Email not found in token", true
	case errors.Is(err, identity.ErrSubjectRequired):
		return "Subject not found in token", true
	case errors.Is(err, identity.ErrDuplicateIdentity):
		return "Identity conflicts with an existing account", true
	}
	return "", false
}

type localError struct {
	status  int
	message string
}

var localErrors = []struct {
	err error
	localError
}{
	{core.ErrInvalidInput, localError{http.StatusBadRequest, "Email and password are required."}},
	{core.ErrEmailTaken, localError{http.StatusBadRequest, "User with this email already exists."}},
	{core.ErrPasswordMismatch, localError{http.StatusBadRequest, "Passwords do not match."}},
	{core.ErrPasswordTooShort, localError{http.StatusBadRequest, "Password is too short."}},
	{core.ErrOTPMissing, localError{http.StatusBadRequest, "No OTP found. Please request a new OTP."}},
	{core.ErrOTPExpired, localError{http.StatusBadRequest, "OTP has expired. Please request a new OTP."}},
	{core.ErrOTPInvalid, localError{http.StatusBadRequest, "Invalid OTP. Please try again."}},
	{core.ErrAlreadyVerified, localError{http.StatusBadRequest, "Email is already verified."}},
	{core.ErrInvalidCredentials, localError{http.StatusBadRequest, "Invalid credentials"}},
	{core.ErrEmailNotVerified, localError{http.StatusBadRequest, "Email not verified, please verify your email first."}},
	{core.ErrAccountInactive, localError{http.StatusBadRequest, "Account is not active, please contact support."}},
	{core.ErrUserNotFound, localError{http.StatusNotFound, "User with this email does not exist."}},
	{core.ErrInvalidToken, localError{http.StatusUnauthorized, "Token is invalid or expired"}},
	{core.ErrRefreshReused, localError{http.StatusUnauthorized, "Token is invalid or expired"}},
}

func mapLocalError(err error) localError {
	for _, e := range localErrors {
		if errors.Is(err, e.err) {
			return e.localError
		}
	}
	return localError{http.StatusInternalServerError, "internal_error"}
}
