package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/models"
)

func (s *Server) registerCopierRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/backtest/copier", s.handleBacktest)
	mux.HandleFunc("POST /api/v1/backtest/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /api/v1/backtest/live/stop", s.handleLiveStop)
	mux.HandleFunc("GET /api/v1/backtest/live/status", s.handleLiveStatus)
	mux.HandleFunc("GET /api/v1/backtest/live/active", s.handleLiveActive)
	mux.HandleFunc("GET /api/v1/backtest/live-trades", s.handleLiveTrades)
}

// whaleRef lets a request identify a whale either by its opaque id or
// by (chain, address), since both the UI's wallet page and a saved
// preset may only have one of the two on hand.
type whaleRef struct {
	WhaleID string       `json:"whale_id,omitempty"`
	Chain   models.Chain `json:"chain,omitempty"`
	Address string       `json:"address,omitempty"`
}

func (s *Server) resolveWhaleRef(ref whaleRef) (string, error) {
	if ref.WhaleID != "" {
		return ref.WhaleID, nil
	}
	if ref.Chain == "" || ref.Address == "" {
		return "", apperr.New(apperr.KindInvariant, "resolveWhaleRef", "whale_id or chain+address required", nil)
	}
	whale, err := s.deps.Whales.GetByChainAddress(ref.Chain, ref.Address)
	if err != nil {
		return "", err
	}
	return whale.ID, nil
}

type backtestRequest struct {
	whaleRef
	InitialDepositUSD float64    `json:"initial_deposit_usd"`
	PositionPct       float64    `json:"position_pct"`
	FeeBps            float64    `json:"fee_bps"`
	SlippageBps       float64    `json:"slippage_bps"`
	Leverage          float64    `json:"leverage"`
	AssetsFilter      []string   `json:"assets_filter,omitempty"`
	WindowStart       *time.Time `json:"window_start,omitempty"`
	WindowEnd         *time.Time `json:"window_end,omitempty"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvariant, "handleBacktest", "malformed request body", err))
		return
	}
	whaleID, err := s.resolveWhaleRef(req.whaleRef)
	if err != nil {
		writeError(w, err)
		return
	}

	run, curve, usedTrades, err := s.deps.Copier.Backtest(r.Context(), BacktestParams{
		WhaleID:           whaleID,
		InitialDepositUSD: req.InitialDepositUSD,
		PositionPct:       req.PositionPct,
		FeeBps:            req.FeeBps,
		SlippageBps:       req.SlippageBps,
		Leverage:          req.Leverage,
		AssetsFilter:      req.AssetsFilter,
		WindowStart:       req.WindowStart,
		WindowEnd:         req.WindowEnd,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":      run,
		"trades":       usedTrades,
		"equity_curve": curve,
	})
}

type liveStartRequest struct {
	whaleRef
	RunID               string   `json:"run_id"`
	PositionPctOverride *float64 `json:"position_pct_override,omitempty"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvariant, "handleLiveStart", "malformed request body", err))
		return
	}
	whaleID, err := s.resolveWhaleRef(req.whaleRef)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := s.deps.LiveCopier.StartSession(whaleID, req.RunID, req.PositionPctOverride)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, apperr.New(apperr.KindInvariant, "handleLiveStop", "session_id is required", nil))
		return
	}
	if err := s.deps.LiveCopier.StopSession(sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, apperr.New(apperr.KindInvariant, "handleLiveStatus", "session_id is required", nil))
		return
	}
	session, err := s.deps.LiveCopier.GetSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLiveActive(w http.ResponseWriter, r *http.Request) {
	whaleID, err := s.resolveWhaleRef(whaleRef{
		Chain:   models.Chain(r.URL.Query().Get("chain")),
		Address: r.URL.Query().Get("address"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.deps.LiveCopier.ListActive(whaleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleLiveTrades(w http.ResponseWriter, r *http.Request) {
	whaleID, err := s.resolveWhaleRef(whaleRef{
		Chain:   models.Chain(r.URL.Query().Get("chain")),
		Address: r.URL.Query().Get("address"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	var since time.Time
	if v := q.Get("since"); v != "" {
		since, _ = time.Parse(time.RFC3339, v)
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.deps.Trades.Since(whaleID, since, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, rows)
}
