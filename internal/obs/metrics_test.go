package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/documents/abc":              "/v1/documents/:id",
		"/v1/documents/abc/status":       "/v1/documents/:id/status",
		"/v1/documents/abc/extra":        "/v1/documents/abc/extra",
		"/v1/accounts/acc-1/balance":     "/v1/accounts/:id/balance",
		"/v1/accounts/acc-1":             "/v1/accounts/:id",
		"/v1/access/pages/dashboard":     "/v1/access/pages/:id",
		"/v1/dashboard/summary":          "/v1/dashboard/summary",
		"/v1/dashboard/summary?force=1":  "/v1/dashboard/summary",
		"/v1/allocations":                "/v1/allocations",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
