package httpapi

import (
	"net/http"
	"strings"
)

// handlePageAccess evaluates whether the caller may view the named page and
// returns the full decision, reason tag included. Anonymous callers get an
// unauthenticated denial rather than a 401 so clients can render redirects.
func (a *API) handlePageAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	pageID := strings.TrimPrefix(r.URL.Path, "/v1/access/pages/")
	if pageID == "" || strings.Contains(pageID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	d := a.access.DecidePage(pageID, currentUser(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"page_id":  pageID,
		"decision": d,
	})
}
