package api

import (
	"net/http"
	"strconv"

	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
)

func (s *Server) registerWalletRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/wallets/{chain}/{address}", s.handleWalletDetail)
	mux.HandleFunc("GET /api/v1/wallets/{chain}/{address}/roi-history", s.handleROIHistory)
	mux.HandleFunc("GET /api/v1/wallets/{chain}/{address}/portfolio-history", s.handlePortfolioHistory)
	mux.HandleFunc("GET /api/v1/wallets/{chain}/{address}/trades", s.handleWalletTrades)
	mux.HandleFunc("GET /api/v1/wallets/{chain}/{address}/positions", s.handleWalletPositions)
}

func (s *Server) resolveWallet(w http.ResponseWriter, r *http.Request) (*models.Whale, bool) {
	chain := models.Chain(r.PathValue("chain"))
	address := r.PathValue("address")
	whale, err := s.deps.Whales.GetByChainAddress(chain, address)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return whale, true
}

func (s *Server) handleWalletDetail(w http.ResponseWriter, r *http.Request) {
	whale, ok := s.resolveWallet(w, r)
	if !ok {
		return
	}
	current, err := s.deps.Metrics.Current(whale.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	holdingsRows, err := s.deps.Holdings.ForWhale(whale.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":   toWhaleOut(*whale, 0, 0, 0),
		"metrics":  current,
		"holdings": holdingsRows,
		"notes":    []string{}, // notes are an external presentation-layer concern; no Notes entity in the data model
	})
}

func daysParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

type roiPoint struct {
	Timestamp  string  `json:"timestamp"`
	ROIPercent float64 `json:"roi_percent"`
}

func (s *Server) handleROIHistory(w http.ResponseWriter, r *http.Request) {
	whale, ok := s.resolveWallet(w, r)
	if !ok {
		return
	}
	if err := s.deps.MetricsEngine.RebuildIfEmpty(r.Context(), whale.ID); err != nil {
		writeError(w, err)
		return
	}
	days := daysParam(r, 30)
	rows, err := s.deps.Metrics.ROIHistory(whale.ID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	points := make([]roiPoint, len(rows))
	for i, row := range rows {
		points[i] = roiPoint{Timestamp: row.Date.Format("2006-01-02T15:04:05Z"), ROIPercent: row.ROIPercent}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

type portfolioPoint struct {
	Timestamp string  `json:"timestamp"`
	ValueUSD  float64 `json:"value_usd"`
}

func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	whale, ok := s.resolveWallet(w, r)
	if !ok {
		return
	}
	if err := s.deps.MetricsEngine.RebuildIfEmpty(r.Context(), whale.ID); err != nil {
		writeError(w, err)
		return
	}
	days := daysParam(r, 30)
	rows, err := s.deps.Metrics.ROIHistory(whale.ID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	points := make([]portfolioPoint, len(rows))
	for i, row := range rows {
		points[i] = portfolioPoint{Timestamp: row.Date.Format("2006-01-02T15:04:05Z"), ValueUSD: row.PortfolioValueUSD}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

func (s *Server) handleWalletTrades(w http.ResponseWriter, r *http.Request) {
	whale, ok := s.resolveWallet(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := trades.QueryFilters{
		Source:    models.TradeSource(q.Get("source")),
		Direction: models.TradeDirection(q.Get("direction")),
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, next, total, err := s.deps.Trades.QueryTrades(whale.ID, f, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "next_cursor": next, "total": total})
}

func (s *Server) handleWalletPositions(w http.ResponseWriter, r *http.Request) {
	whale, ok := s.resolveWallet(w, r)
	if !ok {
		return
	}
	rows, err := s.deps.Holdings.ForWhale(whale.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	// positions snapshot is authoritative for open positions; a closed
	// position nets to zero amount and is never surfaced here
	open := make([]models.Holding, 0, len(rows))
	for _, h := range rows {
		if h.Chain == models.ChainPerp && h.Amount != 0 {
			open = append(open, h)
		}
	}
	writeJSON(w, http.StatusOK, open)
}
