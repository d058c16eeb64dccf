package health

import (
	"encoding/json"
	"net/http"
)

// response is the JSON body served at /healthz.
type response struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// Handler returns an http.Handler serving the tracker's current state as
// JSON, with a 200 for Healthy/Degraded/ReadOnly and 503 for Unavailable so
// a load balancer or systemd watchdog can act on it directly.
func (t *Tracker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		overall := t.Overall()

		w.Header().Set("Content-Type", "application/json")
		if overall == StateUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		body := response{Status: overall.String(), Components: t.Snapshot()}
		_ = json.NewEncoder(w).Encode(body)
	})
}
