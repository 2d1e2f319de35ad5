package httpapi

import (
	"errors"
	"net/http"

	"carbex.org/internal/access"
	"carbex.org/internal/auth"
	"carbex.org/internal/dashboard"
)

// newSynchronizer binds a synchronizer to the request principal. Each stream
// connection gets its own instance; one-shot endpoints build and discard one.
func (a *API) newSynchronizer(u auth.User) *dashboard.Synchronizer {
	s := dashboard.NewSynchronizer(dashboard.Sources{
		Users:     auth.NewSession(u),
		Balances:  a.credits,
		Documents: a.documents,
		Holdings:  a.registry,
		Notifier:  a.notifier,
	}, a.pollInterval)
	s.SetFetchTimeout(a.fetchTimeout)
	return s
}

func (a *API) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.guard(access.Requirement{}, func(w http.ResponseWriter, r *http.Request) {
		s := a.newSynchronizer(*currentUser(r))
		sum := s.Summary(r.Context())
		if sum == nil {
			// Degraded sources render as an empty header, not an error.
			writeJSON(w, http.StatusOK, map[string]any{"summary": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": sum})
	})(w, r)
}

func (a *API) handleDashboardSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.guard(access.Requirement{}, func(w http.ResponseWriter, r *http.Request) {
		s := a.newSynchronizer(*currentUser(r))
		if err := s.ForceRefresh(r.Context()); err != nil {
			switch {
			case errors.Is(err, auth.ErrNotAuthenticated):
				writeError(w, r, http.StatusUnauthorized, err.Error())
			case errors.Is(err, dashboard.ErrNoWallet):
				writeError(w, r, http.StatusConflict, err.Error())
			default:
				writeError(w, r, http.StatusBadGateway, "snapshot fetch failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshot":   s.CachedSnapshot(),
			"fetched_at": s.LastUpdate(),
		})
	})(w, r)
}
