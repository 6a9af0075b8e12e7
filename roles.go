package identity

// Role is the marketplace role a user picks during onboarding. The zero
// value means no role has been chosen yet.
type Role string

const (
	// RoleArtist is a performing artist account
	RoleArtist Role = "artist"
	// RoleVenue is a venue/booker account
	RoleVenue Role = "venue"
	// RoleFan is a regular audience account
	RoleFan Role = "fan"
	// RoleCollective is a multi-member artist collective account
	RoleCollective Role = "collective"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleArtist, RoleVenue, RoleFan, RoleCollective:
		return true
	default:
		return false
	}
}

// In reports whether the role is a member of the allowed set. The unset role
// is never a member of any set.
func (r Role) In(allowed ...Role) bool {
	if r == "" {
		return false
	}
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleArtist,
		RoleVenue,
		RoleFan,
		RoleCollective,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// RoleStrings converts a role set to plain strings for error payloads.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
