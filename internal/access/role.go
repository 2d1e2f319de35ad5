package access

import "strings"

// Role is one of a small closed set of user categories determining default
// permissions.
type Role string

const (
	RoleIndividual Role = "individual"
	RoleBusiness   Role = "business"
	RoleVerifier   Role = "verifier"
	RoleAdmin      Role = "admin"
)

// DefaultRole is the role assigned when a profile carries no recognizable
// account type.
const DefaultRole = RoleIndividual

// Roles lists the closed role set.
func Roles() []Role {
	return []Role{RoleIndividual, RoleBusiness, RoleVerifier, RoleAdmin}
}

// ParseRole maps a raw account-type value onto the closed role set.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleIndividual:
		return RoleIndividual, true
	case RoleBusiness:
		return RoleBusiness, true
	case RoleVerifier:
		return RoleVerifier, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}
