package access

import (
	"strings"
	"time"

	"carbex.org/internal/auth"
)

// Reason tags explain an access decision.
type Reason string

const (
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonRoleMismatch       Reason = "role-mismatch"
	ReasonPermissionMismatch Reason = "permission-mismatch"
	ReasonAllowed            Reason = "allowed"
)

// Decision is the transient result of one access check. It is computed per
// check and never persisted.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"reason"`
	Role      Role      `json:"role,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Requirement describes what a guarded region demands.
type Requirement struct {
	RequireAuth  bool
	AllowRoles   []Role
	RequirePerms []Permission
}

// Resolver evaluates role and permission checks against a static table.
// All methods are total over possibly-malformed input and never panic past
// the package boundary.
type Resolver struct {
	perms map[Role]map[Permission]struct{}
	pages map[string]PageRule
}

// NewResolver builds a resolver from a role→permission table and page rules.
// Nil arguments fall back to the builtin defaults.
func NewResolver(table Table, pages map[string]PageRule) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	if pages == nil {
		pages = DefaultPages()
	}
	perms := make(map[Role]map[Permission]struct{}, len(table))
	for role, list := range table {
		set := make(map[Permission]struct{}, len(list))
		for _, p := range list {
			set[p] = struct{}{}
		}
		perms[role] = set
	}
	return &Resolver{perms: perms, pages: pages}
}

// ResolveRole returns the user's role, or the default role when the profile
// is absent or carries an unrecognized account type. Unknown input resolves
// open to the default role on purpose: permission lookups still fail closed,
// so an unknown account type never gains more than the individual set.
func (r *Resolver) ResolveRole(u *auth.User) Role {
	if u == nil {
		return DefaultRole
	}
	if role, ok := ParseRole(u.AccountType); ok {
		return role
	}
	return DefaultRole
}

// IsInRole reports whether the user's resolved role equals the queried one,
// case-insensitively.
func (r *Resolver) IsInRole(u *auth.User, role string) bool {
	return string(r.ResolveRole(u)) == strings.TrimSpace(strings.ToLower(role))
}

// HasPermission reports whether the user's role grants the permission.
// A missing role entry means no grant: permission checks fail closed.
func (r *Resolver) HasPermission(u *auth.User, perm Permission) bool {
	set, ok := r.perms[r.ResolveRole(u)]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAnyPermission reports whether at least one permission holds.
// An empty list is vacuously false.
func (r *Resolver) HasAnyPermission(u *auth.User, perms []Permission) bool {
	for _, p := range perms {
		if r.HasPermission(u, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every permission holds.
// An empty list is vacuously true.
func (r *Resolver) HasAllPermissions(u *auth.User, perms []Permission) bool {
	for _, p := range perms {
		if !r.HasPermission(u, p) {
			return false
		}
	}
	return true
}

// Decide evaluates a requirement in guard order: authentication, then role,
// then permissions.
func (r *Resolver) Decide(u *auth.User, req Requirement) Decision {
	now := time.Now().UTC()
	if req.RequireAuth && !u.Authenticated() {
		return Decision{Reason: ReasonUnauthenticated, CheckedAt: now}
	}
	role := r.ResolveRole(u)
	if len(req.AllowRoles) > 0 && !containsRole(req.AllowRoles, role) {
		return Decision{Reason: ReasonRoleMismatch, Role: role, CheckedAt: now}
	}
	if !r.HasAllPermissions(u, req.RequirePerms) {
		return Decision{Reason: ReasonPermissionMismatch, Role: role, CheckedAt: now}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Role: role, CheckedAt: now}
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
