package api

import (
	"context"
	"time"

	"github.com/whaletrack/core/database/models"
)

// BackfillService is the subset of BackfillOrchestrator the API surfaces
// through start_backfill/start_reset/get_status.
type BackfillService interface {
	StartBackfill(whaleID string) (models.BackfillStatus, error)
	StartReset(whaleID string) (models.BackfillStatus, error)
	GetStatus(whaleID string) (models.BackfillStatus, error)
}

// MetricsService is the subset of MetricsEngine the API needs: rebuilding
// a blank ROI/portfolio series on demand before serving it.
type MetricsService interface {
	RebuildIfEmpty(ctx context.Context, whaleID string) error
}

// BacktestParams are the inputs of a copier backtest request, defined
// here (not in the app package) so both app and api can share the type
// without an import cycle: app imports api for this and the service
// interfaces below, api never imports app.
type BacktestParams struct {
	WhaleID           string
	InitialDepositUSD float64
	PositionPct       float64
	FeeBps            float64
	SlippageBps       float64
	Leverage          float64
	AssetsFilter      []string
	WindowStart       *time.Time
	WindowEnd         *time.Time
}

// EquityPoint is one sample of a backtest's simulated equity curve.
type EquityPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Equity         float64   `json:"equity"`
	CumulativePnL  float64   `json:"cumulative_pnl"`
	CumulativeFees float64   `json:"cumulative_fees"`
	Unrealized     float64   `json:"unrealized"`
}

// CopierService runs and reads back copier backtests.
type CopierService interface {
	Backtest(ctx context.Context, p BacktestParams) (*models.BacktestRun, []EquityPoint, []models.Trade, error)
	GetRun(id string) (*models.BacktestRun, error)
}

// LiveCopierService manages live-shadow copier sessions.
type LiveCopierService interface {
	StartSession(whaleID, runID string, positionPctOverride *float64) (*models.CopierSession, error)
	StopSession(sessionID string) error
	StopSessionsForWhale(whaleID string) error
	GetSession(sessionID string) (*models.CopierSession, error)
	ListActive(whaleID string) ([]models.CopierSession, error)
}
