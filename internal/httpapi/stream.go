package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"carbex.org/internal/dashboard"
)

// streamInterval parses the client-requested poll interval in seconds.
// Clients may slow their stream down but never below the configured
// interval, so one connection cannot poll harder than the service allows.
func streamInterval(raw string, configured time.Duration) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if d < configured {
		d = configured
	}
	return d, true
}

// Stream serves dashboard snapshots over Server-Sent Events. A synchronizer
// is created per connection; subscribing starts its poll timer and closing
// the connection tears everything down.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	u := currentUser(r)
	if u == nil {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s := a.newSynchronizer(*u)
	defer s.Cleanup()

	if d, ok := streamInterval(r.URL.Query().Get("interval"), a.pollInterval); ok {
		s.SetPollInterval(d)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshots := make(chan dashboard.Snapshot, 8)
	unsubscribe := s.Subscribe(func(snap dashboard.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			// Drop when the client cannot keep up; the next poll
			// publishes a fresh snapshot anyway.
		}
	})
	defer unsubscribe()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-snapshots:
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: snapshot\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
