package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"carbex.org/internal/access"
	"carbex.org/internal/document"
)

type issueAttestationRequest struct {
	DocumentID  string `json:"document_id"`
	Beneficiary string `json:"beneficiary"`
	Amount      uint64 `json:"amount"`
}

func (a *API) handleAttestationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.attestations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "attestations disabled")
		return
	}
	a.guard(requirePerm(access.PermAttestDocument), a.issueAttestation)(w, r)
}

func (a *API) handleAttestationResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/attestations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.attestations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "attestations disabled")
		return
	}
	a.guard(requirePerm(access.PermAttestDocument), func(w http.ResponseWriter, r *http.Request) {
		att, ok := a.attestations.Get(r.Context(), id)
		if !ok {
			writeError(w, r, http.StatusNotFound, "attestation not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"attestation": att,
			"domain":      a.attestations.Domain(),
			"current":     a.attestations.Current(att),
		})
	})(w, r)
}

// issueAttestation produces the signable typed-data digest for an attested
// document. The document must already have passed review.
func (a *API) issueAttestation(w http.ResponseWriter, r *http.Request) {
	var req issueAttestationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := a.documents.Get(r.Context(), strings.TrimSpace(req.DocumentID))
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	if doc.Status != document.StatusAttested {
		writeError(w, r, http.StatusConflict, "document is not attested")
		return
	}

	att, err := a.attestations.Issue(r.Context(), doc.ID, strings.TrimSpace(req.Beneficiary), req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	a.audit(r.Context(), "attest.issue", "attestation", att.ID, map[string]string{
		"document_id": doc.ID,
		"amount":      strconv.FormatUint(req.Amount, 10),
		"nonce":       strconv.FormatUint(att.Nonce, 10),
	})

	w.Header().Set("Location", "/v1/attestations/"+att.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"attestation": att,
		"domain":      a.attestations.Domain(),
	})
}
