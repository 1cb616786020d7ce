package vehicles

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/resqroute/core/tracking"
)

// NewTrackingHandler returns an HTTP handler exposing tracked emergency
// vehicles via GET /api/vehicles. Results can be narrowed with the type and
// incident_id query parameters.
func NewTrackingHandler(tracker *tracking.Tracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := tracking.Filter{
			Type:       r.URL.Query().Get("type"),
			IncidentID: r.URL.Query().Get("incident_id"),
		}
		entries := tracker.List(f)
		if entries == nil {
			entries = []tracking.Vehicle{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
