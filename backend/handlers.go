package backend

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

func (s *Server) route() {
	s.r = mux.NewRouter().StrictSlash(true)
	s.r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	s.r.Path("/healthz").Handler(instrument("healthz", http.HandlerFunc(s.handleProbe)))
	s.r.Path("/metrics").Handler(instrument("metrics", promhttp.Handler()))

	s.r.Path(s.http.Path).Methods("GET").Handler(instrumentSocket("ws", s.handleSocket))

	s.r.Path("/sessions").Methods("GET").Handler(instrument("sessions", http.HandlerFunc(s.handleSessions)))

	s.r.Path("/records").Methods("GET").Handler(instrument("records_list", http.HandlerFunc(s.handleListRecords)))
	s.r.Path("/records/stats").Methods("GET").Handler(instrument("records_stats", http.HandlerFunc(s.handleRecordStats)))
	s.r.Path("/records/weekly").Methods("GET").Handler(instrument("records_weekly", http.HandlerFunc(s.handleWeekly)))
	s.r.Path("/records/{id}").Methods("GET").Handler(instrument("records_get", http.HandlerFunc(s.handleGetRecord)))
	s.r.Path("/records/{id}").Methods("DELETE").Handler(instrument("records_delete", http.HandlerFunc(s.handleDeleteRecord)))
	s.r.Path("/records/{id}/events").Methods("GET").Handler(instrument("events_list", http.HandlerFunc(s.handleListEvents)))
	s.r.Path("/records/{id}/events").Methods("POST").Handler(instrument("events_add", http.HandlerFunc(s.handleAddEvent)))
	s.r.Path("/records/{id}/events/page").Methods("GET").Handler(instrument("events_page", http.HandlerFunc(s.handlePageEvents)))

	if s.blobH != nil {
		s.r.PathPrefix("/blobs/").Handler(instrument("blobs", http.StripPrefix("/blobs/", s.blobH)))
	}
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "sessions": s.registry.Len()})
}

// handleSessions lists the caller's live connections.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	views := []SessionView{}
	for _, view := range s.registry.Views() {
		if id, ok := view.Identity.UID(); ok && id == uid {
			views = append(views, view)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

// authorize resolves the bearer credential of r. Anonymous callers get a
// 401 and ok is false.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	identity, err := s.auth.Bearer(r.Header.Get("Authorization"))
	if err != nil {
		logging.Logger(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("unauthorized request")
		w.Header().Set("WWW-Authenticate", `Bearer realm="drivingcoach"`)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	uid, ok := identity.UID()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure means the client
	// went away.
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
