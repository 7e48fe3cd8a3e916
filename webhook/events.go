package webhook

import (
	"encoding/json"

	"github.com/PaulFidika/userauth/identity"
)

// Event types delivered by the identity provider.
const (
	EventUserCreated    = "user.created"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"
	EventSessionCreated = "session.created"
	EventSessionEnded   = "session.ended"
)

// Event is the webhook envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserData is the user object carried by user.* events.
type UserData struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	Deleted               bool           `json:"deleted"`
}

type EmailAddress struct {
	ID           string        `json:"id"`
	EmailAddress string        `json:"email_address"`
	Verification *Verification `json:"verification"`
}

type Verification struct {
	Status string `json:"status"`
}

// SessionData is the session object carried by session.* events.
type SessionData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// PrimaryEmail returns the address whose id matches primary_email_address_id,
// falling back to the first address.
func (u UserData) PrimaryEmail() (EmailAddress, bool) {
	if len(u.EmailAddresses) == 0 {
		return EmailAddress{}, false
	}
	for _, e := range u.EmailAddresses {
		if u.PrimaryEmailAddressID != "" && e.ID == u.PrimaryEmailAddressID {
			return e, true
		}
	}
	return u.EmailAddresses[0], true
}

// Claims converts the user object into reconcilable claims.
func (u UserData) Claims() identity.ExternalClaims {
	c := identity.ExternalClaims{
		Subject:    u.ID,
		GivenName:  u.FirstName,
		FamilyName: u.LastName,
	}
	if e, ok := u.PrimaryEmail(); ok {
		c.Email = e.EmailAddress
		if e.Verification != nil && e.Verification.Status != "" {
			v := e.Verification.Status == "verified"
			c.EmailVerified = &v
		}
	}
	return c
}
