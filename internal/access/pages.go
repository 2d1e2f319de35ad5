package access

import "carbex.org/internal/auth"

// PageRule gates one named view. An empty AllowedRoles list means no role
// restriction; RequiredPermissions must all hold.
type PageRule struct {
	AllowedRoles        []Role
	RequiredPermissions []Permission
}

// DefaultPages returns the builtin page configuration.
func DefaultPages() map[string]PageRule {
	return map[string]PageRule{
		"dashboard":   {},
		"upload":      {RequiredPermissions: []Permission{PermUploadDocument}},
		"marketplace": {RequiredPermissions: []Permission{PermViewMarketplace}},
		"portfolio":   {RequiredPermissions: []Permission{PermViewPortfolioAnalytics}},
		"verify": {
			AllowedRoles:        []Role{RoleVerifier, RoleAdmin},
			RequiredPermissions: []Permission{PermViewAllDocuments},
		},
		"admin": {AllowedRoles: []Role{RoleAdmin}},
	}
}

// CanAccessPage decides whether the user may view the named page.
// Unauthenticated users are denied regardless of page configuration;
// pages without a rule default to allow.
func (r *Resolver) CanAccessPage(pageID string, u *auth.User) bool {
	return r.DecidePage(pageID, u).Allowed
}

// DecidePage is CanAccessPage with the reason tag preserved.
func (r *Resolver) DecidePage(pageID string, u *auth.User) Decision {
	rule, configured := r.pages[pageID]
	req := Requirement{RequireAuth: true}
	if configured {
		req.AllowRoles = rule.AllowedRoles
		req.RequirePerms = rule.RequiredPermissions
	}
	return r.Decide(u, req)
}
