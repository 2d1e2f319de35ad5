package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"carbex.org/internal/access"
	"carbex.org/internal/attest"
	"carbex.org/internal/audit"
	"carbex.org/internal/auth"
	"carbex.org/internal/chain"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
	"carbex.org/internal/notify"
	"carbex.org/internal/obs"
)

// ReadyProbe checks backing dependencies for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the marketplace services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth         *auth.Service
	access       *access.Resolver
	documents    document.Service
	credits      credit.Service
	attestations *attest.Service
	registry     chain.Registry
	notifier     notify.Notifier

	pollInterval time.Duration
	fetchTimeout time.Duration
	rateBurst    int
	ratePerSec   int
	maxBodySize  int64
}

// Deps bundles the services the API serves.
type Deps struct {
	Auth         *auth.Service
	Access       *access.Resolver
	Documents    document.Service
	Credits      credit.Service
	Attestations *attest.Service
	Registry     chain.Registry
	Notifier     notify.Notifier
	PollInterval time.Duration
	FetchTimeout time.Duration

	// Rate limiting; zero values fall back to the builtin defaults.
	RatePerSecond int
	RateBurst     int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		auth:         deps.Auth,
		access:       deps.Access,
		documents:    deps.Documents,
		credits:      deps.Credits,
		attestations: deps.Attestations,
		registry:     deps.Registry,
		notifier:     deps.Notifier,
		pollInterval: deps.PollInterval,
		fetchTimeout: deps.FetchTimeout,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodySize:  1 << 20,
	}
	if deps.RateBurst > 0 {
		a.rateBurst = deps.RateBurst
	}
	if deps.RatePerSecond > 0 {
		a.ratePerSec = deps.RatePerSecond
	}
	if a.access == nil {
		a.access = access.NewResolver(nil, nil)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// access decisions
	a.mux.HandleFunc("/v1/access/pages/", a.handlePageAccess)

	// documents
	a.mux.HandleFunc("/v1/documents", a.handleDocumentsCollection)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentResource)

	// credits
	a.mux.HandleFunc("/v1/allocations", a.handleAllocationsCollection)
	a.mux.HandleFunc("/v1/allocations/", a.handleAllocationResource)
	a.mux.HandleFunc("/v1/credits/retire", a.handleRetire)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	// attestations
	a.mux.HandleFunc("/v1/attestations", a.handleAttestationsCollection)
	a.mux.HandleFunc("/v1/attestations/", a.handleAttestationResource)

	// dashboard
	a.mux.HandleFunc("/v1/dashboard/summary", a.handleDashboardSummary)
	a.mux.HandleFunc("/v1/dashboard/snapshot", a.handleDashboardSnapshot)
	a.mux.HandleFunc("/v1/dashboard/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler: metrics outermost, then request
// id, logging, hardening, rate limiting and authentication.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodySize)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "carbex-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "carbex-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) audit(ctx context.Context, event, entity, entityID string, meta map[string]string) {
	fields := map[string]any{
		"entity":    entity,
		"entity_id": entityID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}
