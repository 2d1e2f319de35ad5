package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"carbex.org/internal/access"
	"carbex.org/internal/document"
)

type submitDocumentRequest struct {
	ProjectName      string `json:"project_name"`
	ProjectType      string `json:"project_type"`
	EstimatedCredits int64  `json:"estimated_credits"`
}

type setStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.guard(requirePerm(access.PermUploadDocument), a.submitDocument)(w, r)
	case http.MethodGet:
		a.listDocuments(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/status"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "document not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.guard(requirePerm(access.PermAttestDocument), func(w http.ResponseWriter, r *http.Request) {
			a.setDocumentStatus(w, r, id)
		})(w, r)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getDocument(w, r, path)
}

func (a *API) submitDocument(w http.ResponseWriter, r *http.Request) {
	var req submitDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u := currentUser(r)

	doc, err := a.documents.Submit(r.Context(), u.ID, req.ProjectName, req.ProjectType, req.EstimatedCredits)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	a.audit(r.Context(), "document.submit", "document", doc.ID, map[string]string{
		"project_name": doc.ProjectName,
	})

	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

// listDocuments returns the caller's own documents; the full review queue
// (?all=true, optional ?status=) requires the view_all_documents permission.
func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		a.guard(requirePerm(access.PermViewAllDocuments), func(w http.ResponseWriter, r *http.Request) {
			docs, err := a.documents.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("status")))
			if err != nil {
				handleDocumentError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": docs})
		})(w, r)
		return
	}

	a.guard(requirePerm(access.PermViewOwnDocuments), func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		docs, err := a.documents.ListByOwner(r.Context(), u.ID)
		if err != nil {
			handleDocumentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": docs})
	})(w, r)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	a.guard(access.Requirement{}, func(w http.ResponseWriter, r *http.Request) {
		doc, err := a.documents.Get(r.Context(), id)
		if err != nil {
			handleDocumentError(w, r, err)
			return
		}
		u := currentUser(r)
		if doc.Owner != u.ID && !a.access.HasPermission(u, access.PermViewAllDocuments) {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})(w, r)
}

func (a *API) setDocumentStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := a.documents.Get(r.Context(), id)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	from := doc.Status

	doc, err = a.documents.SetStatus(r.Context(), id, strings.TrimSpace(req.Status), strings.TrimSpace(req.Note))
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	a.audit(r.Context(), "document.status.set", "document", doc.ID, map[string]string{
		"from": from,
		"to":   doc.Status,
	})
	writeJSON(w, http.StatusOK, doc)
}

func handleDocumentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, document.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
