package api

import "net/http"

func (s *Server) registerDashboardRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/dashboard/summary", s.handleDashboardSummary)
}

type dashboardSummary struct {
	TotalTrackedWhales int64   `json:"total_tracked_whales"`
	ActiveWhales24h    int64   `json:"active_whales_24h"`
	TotalVolume24hUSD  float64 `json:"total_volume_24h_usd"`
	PerpWhales         int64   `json:"perp_whales"`
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Whales.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	volume, err := s.deps.Metrics.TotalVolume24h()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardSummary{
		TotalTrackedWhales: stats.TotalTrackedWhales,
		ActiveWhales24h:    stats.ActiveWhales24h,
		TotalVolume24hUSD:  volume,
		PerpWhales:         stats.PerpWhales,
	})
}
