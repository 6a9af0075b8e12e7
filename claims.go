package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload carried by a session token. Subject holds the
// external provider's user id (or, for provider-less flows, the internal id).
// There is deliberately no role claim: authorization state lives in the store
// and is re-read per request.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email           string `json:"email,omitempty"`
	Provider        string `json:"provider,omitempty"`
	ProviderSubject string `json:"psub,omitempty"`
}

// ExternalID returns the subject, which is the provider's user id in the
// webhook-backed flow.
func (c *SessionClaims) ExternalID() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiration time, zero when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued-at time, zero when absent.
func (c *SessionClaims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// missingField names the first required claim that is absent, empty string
// when the claims are complete.
func (c *SessionClaims) missingField() string {
	switch {
	case c.RegisteredClaims.Subject == "":
		return "sub"
	case c.Email == "":
		return "email"
	case c.Provider == "":
		return "provider"
	case c.ProviderSubject == "":
		return "psub"
	default:
		return ""
	}
}
