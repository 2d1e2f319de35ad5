package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carbex.org/internal/access"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
)

type allocateRequest struct {
	AccountID      string `json:"account_id"`
	DocumentID     string `json:"document_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type retireRequest struct {
	Amount int64 `json:"amount"`
}

type listAllocationsResponse struct {
	Items     []credit.Allocation `json:"items"`
	NextAfter uint64              `json:"next_after"`
	AsOf      time.Time           `json:"as_of"`
}

func (a *API) handleAllocationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.guard(requirePerm(access.PermMintCredits), a.createAllocation)(w, r)
	case http.MethodGet:
		a.guard(access.Requirement{}, a.listAllocations)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleAllocationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/allocations/")
	id, ok := strings.CutSuffix(path, "/complete")
	id = strings.TrimSuffix(id, "/")
	if !ok || id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.guard(requirePerm(access.PermMintCredits), func(w http.ResponseWriter, r *http.Request) {
		a.completeAllocation(w, r, id)
	})(w, r)
}

// createAllocation records a pending mint for an attested document.
func (a *API) createAllocation(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if req.IdempotencyKey != "" {
		bodyKey := strings.TrimSpace(req.IdempotencyKey)
		if idem == "" {
			idem = bodyKey
		} else if idem != bodyKey {
			writeError(w, r, http.StatusBadRequest, "Idempotency-Key header and body value must match")
			return
		}
	}
	if len(idem) > 128 {
		writeError(w, r, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}

	accountID := strings.TrimSpace(req.AccountID)
	documentID := strings.TrimSpace(req.DocumentID)
	if accountID == "" || documentID == "" {
		writeError(w, r, http.StatusBadRequest, "account_id and document_id are required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, http.StatusBadRequest, "amount must be > 0")
		return
	}

	doc, err := a.documents.Get(r.Context(), documentID)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	if doc.Status != document.StatusAttested {
		writeError(w, r, http.StatusConflict, "document is not attested")
		return
	}

	alloc, err := a.credits.Allocate(r.Context(), accountID, documentID, req.Amount, idem)
	if err != nil {
		handleCreditError(w, r, err)
		return
	}

	if idem != "" {
		w.Header().Set("Idempotency-Key", idem)
	}
	a.audit(r.Context(), "credit.allocation.create", "allocation", alloc.ID, map[string]string{
		"account_id":  accountID,
		"document_id": documentID,
		"amount":      strconv.FormatInt(req.Amount, 10),
	})
	writeJSON(w, http.StatusCreated, alloc)
}

// completeAllocation credits the balance and marks the document minted.
func (a *API) completeAllocation(w http.ResponseWriter, r *http.Request, id string) {
	alloc, err := a.credits.Complete(r.Context(), id)
	if err != nil {
		handleCreditError(w, r, err)
		return
	}

	if _, err := a.documents.SetStatus(r.Context(), alloc.DocumentID, document.StatusMinted, ""); err != nil &&
		!errors.Is(err, document.ErrInvalidTransition) {
		handleDocumentError(w, r, err)
		return
	}

	if a.notifier != nil {
		a.notifier.AllocationCompleted(r.Context(), alloc.AccountID, alloc.ID, alloc.Amount)
	}
	a.audit(r.Context(), "credit.allocation.complete", "allocation", alloc.ID, map[string]string{
		"account_id": alloc.AccountID,
		"amount":     strconv.FormatInt(alloc.Amount, 10),
	})
	writeJSON(w, http.StatusOK, alloc)
}

func (a *API) listAllocations(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	afterParam := strings.TrimSpace(r.URL.Query().Get("after"))
	var after uint64
	if afterParam != "" {
		v, err := strconv.ParseUint(afterParam, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = v
	}

	// Regular users see their own allocations; verifiers and admins may
	// query any account.
	u := currentUser(r)
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
	if accountID == "" {
		accountID = u.ID
	} else if accountID != u.ID && !a.access.HasPermission(u, access.PermMintCredits) {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}

	items, next, err := a.credits.ListAllocations(r.Context(), accountID, limit, after)
	if err != nil {
		handleCreditError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listAllocationsResponse{
		Items:     items,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) handleRetire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.guard(requirePerm(access.PermRetireCredits), func(w http.ResponseWriter, r *http.Request) {
		var req retireRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Amount <= 0 {
			writeError(w, r, http.StatusBadRequest, "amount must be > 0")
			return
		}
		u := currentUser(r)
		acc, err := a.credits.Retire(r.Context(), u.ID, req.Amount)
		if err != nil {
			handleCreditError(w, r, err)
			return
		}
		a.audit(r.Context(), "credit.retire", "account", acc.ID, map[string]string{
			"amount": strconv.FormatInt(req.Amount, 10),
		})
		writeJSON(w, http.StatusOK, acc)
	})(w, r)
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	id, ok := strings.CutSuffix(path, "/balance")
	id = strings.TrimSuffix(id, "/")
	if !ok || id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.guard(access.Requirement{}, func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if id != u.ID && !a.access.HasPermission(u, access.PermViewAllDocuments) {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		info, err := a.credits.BalanceInfo(r.Context(), id)
		if err != nil {
			handleCreditError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})(w, r)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCreditError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, credit.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, credit.ErrInsufficientCredits), errors.Is(err, credit.ErrInvalidStatus):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, credit.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
