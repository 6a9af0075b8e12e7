package identity

// UserIdentity adapts a User into the Identity interface for token issuance
// and context propagation.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's internal id as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// ExternalID returns the provider-side user id, empty until linked.
func (u UserIdentity) ExternalID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ExternalID
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// Provider returns the OAuth provider tag.
func (u UserIdentity) Provider() string {
	if u.user == nil {
		return ""
	}
	return string(u.user.Provider)
}

// Role returns the user's role, empty when not yet chosen.
func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return string(u.user.Role)
}
