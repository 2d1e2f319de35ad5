package httpapi

import (
	"net/http"

	"carbex.org/internal/access"
	"carbex.org/internal/auth"
	"carbex.org/internal/obs"
)

// guard wraps a handler with an access requirement. Denied requests get 401
// (unauthenticated) or 403 (role or permission mismatch) with the decision
// reason in the body; the handler itself runs only for allowed requests.
func (a *API) guard(req access.Requirement, h http.HandlerFunc) http.HandlerFunc {
	return a.guardWith(req, h, nil)
}

// guardWith is guard with a custom denial handler. A panic inside the
// fallback is recovered and the plain denial written instead, so a broken
// fallback cannot take the request goroutine down.
func (a *API) guardWith(req access.Requirement, h, fallback http.HandlerFunc) http.HandlerFunc {
	req.RequireAuth = true
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		d := a.access.Decide(u, req)
		if d.Allowed {
			h(w, r)
			return
		}
		if fallback == nil {
			writeDecision(w, r, d)
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				obs.LogEntry(map[string]any{
					"level": "error",
					"msg":   "guard_fallback_panic",
					"panic": rec,
				})
				writeDecision(w, r, d)
			}
		}()
		fallback(w, r)
	}
}

// currentUser returns the request principal or nil.
func currentUser(r *http.Request) *auth.User {
	if u, ok := auth.UserFromContext(r.Context()); ok {
		return &u
	}
	return nil
}

func writeDecision(w http.ResponseWriter, r *http.Request, d access.Decision) {
	code := http.StatusForbidden
	if d.Reason == access.ReasonUnauthenticated {
		code = http.StatusUnauthorized
	}
	payload := map[string]any{
		"error":  "access denied",
		"reason": d.Reason,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// requirePerm is the single-permission shorthand used by most handlers.
func requirePerm(perms ...access.Permission) access.Requirement {
	return access.Requirement{RequirePerms: perms}
}
