package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"carbex.org/internal/access"
	"carbex.org/internal/auth"
)

func TestGuardDeniesAnonymous(t *testing.T) {
	api := New(ReadyProbe{}, "test", Deps{})

	h := api.guard(requirePerm(access.PermUploadDocument), func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for anonymous caller")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Reason != string(access.ReasonUnauthenticated) {
		t.Fatalf("reason=%q", body.Reason)
	}
}

func TestGuardWithFallback(t *testing.T) {
	api := New(ReadyProbe{}, "test", Deps{})

	individual := auth.User{ID: "u1", AccountType: "individual"}
	req := httptest.NewRequest(http.MethodPost, "/v1/allocations", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), individual))

	h := api.guardWith(requirePerm(access.PermMintCredits),
		func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without mint permission")
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusSeeOther)
		})

	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("fallback not invoked, status=%d", rec.Code)
	}
}

func TestGuardFallbackPanicIsolated(t *testing.T) {
	api := New(ReadyProbe{}, "test", Deps{})

	h := api.guardWith(requirePerm(access.PermMintCredits),
		func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run for anonymous caller")
		},
		func(w http.ResponseWriter, r *http.Request) {
			panic("broken fallback")
		})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/v1/allocations", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want plain denial after fallback panic", rec.Code)
	}
}
