package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/whaletrack/core/api"
	"github.com/whaletrack/core/database/copierdb"
	"github.com/whaletrack/core/database/models"
	"github.com/whaletrack/core/database/trades"
	"github.com/whaletrack/core/database/whales"
	"github.com/whaletrack/core/priceoracle"
)

// BacktestParams and EquityPoint are shared with the api package (see
// api.BacktestParams / api.EquityPoint) to avoid an import cycle: app
// already imports api for its service interfaces, so the request/result
// shapes of a backtest live there too instead of being duplicated here.
type BacktestParams = api.BacktestParams
type EquityPoint = api.EquityPoint

type simPosition struct {
	amount  float64
	costUSD float64
}

// CopierSimulator runs backtests and live-shadow sessions, grounded on
// the teacher's RunningTradeHandler worker-goroutine shape for the
// live-polling side and its own equity-curve arithmetic for backtests,
// since the teacher never simulated a copy-trading ledger itself.
type CopierSimulator struct {
	whales *whales.Repository
	trades *trades.Repository
	prices *priceoracle.Oracle
	runs   *copierdb.Repository
}

func NewCopierSimulator(w *whales.Repository, t *trades.Repository, p *priceoracle.Oracle, runs *copierdb.Repository) *CopierSimulator {
	return &CopierSimulator{whales: w, trades: t, prices: p, runs: runs}
}

// Backtest replays the whale's trade history under the copy-trade
// sizing/cost model and returns the persisted run plus its equity curve.
func (c *CopierSimulator) Backtest(ctx context.Context, p BacktestParams) (*models.BacktestRun, []EquityPoint, []models.Trade, error) {
	if p.Leverage <= 0 {
		p.Leverage = 1
	}
	whale, err := c.whales.Get(p.WhaleID)
	if err != nil {
		return nil, nil, nil, err
	}

	all, err := c.trades.All(whale.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	assetOK := func(asset string) bool {
		if len(p.AssetsFilter) == 0 {
			return true
		}
		for _, a := range p.AssetsFilter {
			if a == asset {
				return true
			}
		}
		return false
	}

	var windowed []models.Trade
	for _, t := range all {
		if p.WindowStart != nil && t.Timestamp.Before(*p.WindowStart) {
			continue
		}
		if p.WindowEnd != nil && t.Timestamp.After(*p.WindowEnd) {
			continue
		}
		if !assetOK(t.BaseAsset) {
			continue
		}
		windowed = append(windowed, t)
	}

	equity := p.InitialDepositUSD
	positions := make(map[string]*simPosition)
	var cumPnL, cumFees, peakEquity, maxDrawdownUSD float64
	var wins, losses int
	var lossSum float64
	var curve []EquityPoint
	peakEquity = equity

	lastSample := time.Time{}
	sampleIfDue := func(ts time.Time) {
		if !lastSample.IsZero() && ts.Sub(lastSample) < time.Minute {
			return
		}
		unrealized := 0.0
		for asset, pos := range positions {
			if pos.amount == 0 {
				continue
			}
			if price, ok := c.prices.Historical(ctx, asset, ts); ok {
				unrealized += pos.amount*price - pos.costUSD
			}
		}
		curve = append(curve, EquityPoint{Timestamp: ts, Equity: equity + unrealized, CumulativePnL: cumPnL, CumulativeFees: cumFees, Unrealized: unrealized})
		lastSample = ts
		if equity+unrealized > peakEquity {
			peakEquity = equity + unrealized
		}
		dd := peakEquity - (equity + unrealized)
		if dd > maxDrawdownUSD {
			maxDrawdownUSD = dd
		}
	}

	for _, t := range windowed {
		notional := equity * p.PositionPct * p.Leverage
		fee := notional * p.FeeBps / 10000
		slippage := notional * p.SlippageBps / 10000
		cost := fee + slippage
		cumFees += cost
		equity -= cost

		pos, exists := positions[t.BaseAsset]
		if !exists {
			pos = &simPosition{}
			positions[t.BaseAsset] = pos
		}

		oppositeSign := pos.amount != 0 && (pos.amount > 0) != (t.BaseAmount > 0)
		isClose := t.Direction == models.DirCloseLong || t.Direction == models.DirCloseShort || oppositeSign
		if isClose && pos.amount != 0 {
			unitCost := pos.costUSD / pos.amount
			realized := notional - pos.amount*unitCost
			cumPnL += realized
			equity += realized
			if realized > 0 {
				wins++
			} else {
				losses++
				lossSum += -realized
			}
			pos.amount = 0
			pos.costUSD = 0
		} else {
			direction := 1.0
			if t.BaseAmount < 0 {
				direction = -1.0
			}
			size := notional
			pos.amount += direction * size
			pos.costUSD += size
		}

		sampleIfDue(t.Timestamp)
	}
	sampleIfDue(time.Now().UTC())

	roi := 0.0
	if p.InitialDepositUSD > 0 {
		roi = cumPnL / p.InitialDepositUSD * 100
	}
	maxDrawdownPct := 0.0
	if peakEquity > 0 {
		maxDrawdownPct = maxDrawdownUSD / peakEquity * 100
	}

	recommended := recommendedPositionPct(wins, losses, lossSum)

	run := &models.BacktestRun{
		ID:                     uuid.NewString(),
		WhaleID:                whale.ID,
		InitialDepositUSD:      p.InitialDepositUSD,
		PositionPct:            p.PositionPct,
		FeeBps:                 p.FeeBps,
		SlippageBps:            p.SlippageBps,
		Leverage:               p.Leverage,
		WindowStart:            p.WindowStart,
		WindowEnd:              p.WindowEnd,
		ROIPercent:             roi,
		NetPnLUSD:              cumPnL - cumFees,
		MaxDrawdownPct:         maxDrawdownPct,
		MaxDrawdownUSD:         maxDrawdownUSD,
		RecommendedPositionPct: recommended,
		TradeCount:             len(windowed),
	}
	if err := c.runs.SaveRun(run); err != nil {
		return nil, nil, nil, err
	}
	return run, curve, windowed, nil
}

// recommendedPositionPct approximates a Kelly fraction from observed
// win-rate and average loss, clipped to [0, 50] per the specification.
func recommendedPositionPct(wins, losses int, lossSum float64) float64 {
	total := wins + losses
	if total == 0 || losses == 0 {
		return 0
	}
	winRate := float64(wins) / float64(total)
	avgLossFrac := (lossSum / float64(losses)) / 100 // crude normalization; avgLoss expressed as a fraction of notional
	if avgLossFrac <= 0 {
		return 0
	}
	kelly := winRate - (1-winRate)/avgLossFrac
	pct := kelly * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 50 {
		pct = 50
	}
	return pct
}

// GetRun fetches a persisted backtest run by id.
func (c *CopierSimulator) GetRun(id string) (*models.BacktestRun, error) {
	run, err := c.runs.GetRun(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}
