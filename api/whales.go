package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/whaletrack/core/apperr"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/helpers"
)

func (s *Server) registerWhaleRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/whales", s.handleListWhales)
	mux.HandleFunc("GET /api/v1/whales/top", s.handleTopWhales)
	mux.HandleFunc("POST /api/v1/whales", s.handleCreateWhale)
	mux.HandleFunc("PATCH /api/v1/whales/{id}", s.handlePatchWhale)
	mux.HandleFunc("DELETE /api/v1/whales/{id}", s.handleDeleteWhale)
	mux.HandleFunc("GET /api/v1/whales/{id}/backfill_status", s.handleBackfillStatus)
	mux.HandleFunc("POST /api/v1/whales/{id}/backfill", s.handleStartBackfill)
	mux.HandleFunc("POST /api/v1/whales/{id}/reset_hyperliquid", s.handleResetBackfill)
}

func (s *Server) handleListWhales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := whales.ListFilters{
		Chain:   models.Chain(q.Get("chain")),
		Type:    models.WhaleType(q.Get("type")),
		Search:  q.Get("search"),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
	}
	if v := q.Get("minRoi"); v != "" {
		if roi, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinROIPercent = &roi
		}
	}
	if v := q.Get("activityWindow"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			f.ActivityWindow = d
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	rows, total, err := s.deps.Whales.List(f)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]whaleOut, len(rows))
	for i, row := range rows {
		items[i] = toWhaleOutSummary(row)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "total": total})
}

func (s *Server) handleTopWhales(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.deps.Whales.Top(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]whaleOut, len(rows))
	for i, row := range rows {
		items[i] = toWhaleOutSummary(row)
	}
	writeJSON(w, http.StatusOK, items)
}

type createWhaleRequest struct {
	Chain   models.Chain     `json:"chain"`
	Address string           `json:"address"`
	Labels  []string         `json:"labels,omitempty"`
	Type    *models.WhaleType `json:"type,omitempty"`
}

func (s *Server) handleCreateWhale(w http.ResponseWriter, r *http.Request) {
	var req createWhaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvariant, "handleCreateWhale", "malformed request body", err))
		return
	}
	if req.Chain == "" || req.Address == "" {
		writeError(w, apperr.New(apperr.KindInvariant, "handleCreateWhale", "chain and address are required", nil))
		return
	}

	classification := models.WhaleTypeUnclassified
	if req.Type != nil {
		classification = *req.Type
	}
	now := time.Now().UTC()
	whale := &models.Whale{
		ID:             uuid.NewString(),
		Chain:          req.Chain,
		Address:        req.Address,
		Classification: classification,
		Labels:         helpers.EncodeLabels(req.Labels),
		FirstSeenAt:    now,
		LastActiveAt:   now,
	}
	if err := s.deps.Whales.Create(whale); err != nil {
		writeError(w, err)
		return
	}

	// triggers async backfill; the orchestrator runs it in its own goroutine
	if _, err := s.deps.Backfill.StartBackfill(whale.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWhaleOut(*whale, 0, 0, 0))
}

type patchWhaleRequest struct {
	Labels *[]string         `json:"labels,omitempty"`
	Type   *models.WhaleType `json:"type,omitempty"`
}

func (s *Server) handlePatchWhale(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req patchWhaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvariant, "handlePatchWhale", "malformed request body", err))
		return
	}
	var labels *string
	if req.Labels != nil {
		encoded := helpers.EncodeLabels(*req.Labels)
		labels = &encoded
	}
	if err := s.deps.Whales.Patch(id, labels, req.Type); err != nil {
		writeError(w, err)
		return
	}
	whale, err := s.deps.Whales.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWhaleOut(*whale, 0, 0, 0))
}

func (s *Server) handleDeleteWhale(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.deps.LiveCopier != nil {
		_ = s.deps.LiveCopier.StopSessionsForWhale(id)
	}
	if err := s.deps.Whales.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type backfillStatusOut struct {
	Status    models.BackfillState `json:"status"`
	Progress  int                  `json:"progress"`
	Message   string               `json:"message,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func toBackfillStatusOut(st models.BackfillStatus) backfillStatusOut {
	return backfillStatusOut{Status: st.State, Progress: st.Progress, Message: st.Message, UpdatedAt: st.UpdatedAt}
}

func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Backfill.GetStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBackfillStatusOut(st))
}

func (s *Server) handleStartBackfill(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Backfill.StartBackfill(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleResetBackfill(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Backfill.StartReset(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}
