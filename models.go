package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider tags the OAuth provider an identity signed in through.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderApple    Provider = "apple"
	ProviderGithub   Provider = "github"
	ProviderFacebook Provider = "facebook"
)

// DefaultProvider is used when the external account list is empty; the
// provider's own user id then doubles as the subject so the unique key stays
// deterministic.
const DefaultProvider = ProviderGoogle

// providerPriority breaks ties when an external user has linked accounts from
// more than one provider. Array order from the provider API is an accident of
// linking order, so we pick by a fixed preference instead.
var providerPriority = []Provider{
	ProviderGoogle,
	ProviderApple,
	ProviderGithub,
	ProviderFacebook,
}

// IsValid checks the provider against the closed enumeration.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderApple, ProviderGithub, ProviderFacebook:
		return true
	default:
		return false
	}
}

// ParseProvider normalizes a provider account-type string, e.g. the
// "oauth_google" strings the external provider uses for linked accounts.
func ParseProvider(s string) (Provider, bool) {
	switch s {
	case "google", "oauth_google":
		return ProviderGoogle, true
	case "apple", "oauth_apple":
		return ProviderApple, true
	case "github", "oauth_github":
		return ProviderGithub, true
	case "facebook", "oauth_facebook":
		return ProviderFacebook, true
	default:
		return "", false
	}
}

// ProviderPriority returns the fixed preference order used to choose among
// multiple linked accounts.
func ProviderPriority() []Provider {
	out := make([]Provider, len(providerPriority))
	copy(out, providerPriority)
	return out
}

// User is the canonical local identity record. The (provider, subject) pair
// is unique across all rows; external_id is unique once linked.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ExternalID         string     `bun:"external_id,nullzero,unique" json:"external_id,omitempty"`
	Provider           Provider   `bun:"provider,notnull,unique:usr_provider_subject" json:"provider,omitempty"`
	ProviderSubject    string     `bun:"provider_subject,notnull,unique:usr_provider_subject" json:"provider_subject,omitempty"`
	Email              string     `bun:"email,notnull" json:"email,omitempty"`
	Role               Role       `bun:"user_role,nullzero" json:"user_role,omitempty"`
	OnboardingComplete bool       `bun:"onboarding_complete" json:"onboarding_complete"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasRole reports whether the user has chosen a role. An empty role is "not
// yet chosen" and must never be treated as an implicit default.
func (u *User) HasRole() bool {
	return u != nil && u.Role != ""
}
