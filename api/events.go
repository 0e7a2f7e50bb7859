package api

import (
	"net/http"
	"strconv"
)

func (s *Server) registerEventRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/events/recent", s.handleRecentEvents)
	mux.HandleFunc("GET /api/v1/events/live", s.handleLiveEventsSSE)
	mux.HandleFunc("GET /api/v1/events/ws/live", s.handleLiveEventsWS)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.deps.Events.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleLiveEventsSSE serves newly broadcast events as Server-Sent
// Events; subscribers receive only events after their connection time.
func (s *Server) handleLiveEventsSSE(w http.ResponseWriter, r *http.Request) {
	s.deps.Broker.ServeSSE(w, r)
}

// handleLiveEventsWS upgrades to WebSocket and relays newline-delimited
// LiveEvent frames after connect.
func (s *Server) handleLiveEventsWS(w http.ResponseWriter, r *http.Request) {
	s.deps.Broker.ServeWS(w, r)
}
