package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmailRequired is returned when a new user would have to be created
	// from an external identity that carries no email address.
	ErrEmailRequired = errors.New("identity: email required to create user")
	// ErrSubjectRequired is returned for claims without a subject.
	ErrSubjectRequired = errors.New("identity: external subject required")
	// ErrDuplicateIdentity is returned by stores when an insert or update
	// collides with an existing email or external id.
	ErrDuplicateIdentity = errors.New("identity: duplicate email or external id")
	// ErrNotFound is returned by Update when the row no longer exists.
	ErrNotFound = errors.New("identity: user not found")
)

// User is the canonical local account record shared by the local and the
// federated authentication paths.
type User struct {
	ID              uuid.UUID
	ExternalID      *string
	Email           string
	GivenName       string
	FamilyName      string
	PasswordHash    *string
	IsActive        bool
	IsEmailVerified bool
	EmailVerifiedAt *time.Time
	IsSuperuser     bool
	OTPCode         *string
	OTPExpiry       *time.Time
	OTPSentAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether the user can sign in locally.
func (u *User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

// ExternalIDValue returns the linked external id or "".
func (u *User) ExternalIDValue() string {
	if u.ExternalID == nil {
		return ""
	}
	return *u.ExternalID
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.ExternalID = cloneString(u.ExternalID)
	c.PasswordHash = cloneString(u.PasswordHash)
	c.OTPCode = cloneString(u.OTPCode)
	c.EmailVerifiedAt = cloneTime(u.EmailVerifiedAt)
	c.OTPExpiry = cloneTime(u.OTPExpiry)
	c.OTPSentAt = cloneTime(u.OTPSentAt)
	return &c
}

// ExternalClaims are the identity attributes asserted by the external
// identity provider, either from a verified session token or a webhook.
type ExternalClaims struct {
	Subject       string
	Email         string
	EmailVerified *bool
	GivenName     string
	FamilyName    string
	Issuer        string
	Audience      []string
	Expiry        time.Time
}

// Store persists users. Lookups return (nil, false, nil) when nothing
// matches. Create and Update must enforce uniqueness of email and external
// id atomically and report collisions as ErrDuplicateIdentity.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, bool, error)
	FindByEmail(ctx context.Context, email string) (*User, bool, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func strPtr(s string) *string { return &s }
